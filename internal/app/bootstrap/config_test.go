package bootstrap

import (
	"testing"

	"github.com/dalemusser/waffle/config"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func validAppConfig() AppConfig {
	return AppConfig{
		MongoURI:       "mongodb://localhost:27017",
		MongoDatabase:  "stratadrive",
		JWTSecret:      "9c1f0e7a4b2d48c6a3e5f7b9d1c3e5a7",
		StorageType:    "local",
		CreditsPerFile: 1,
		SignupCredits:  100,
		AuditLogAuth:   "all",
	}
}

func TestValidateConfig(t *testing.T) {
	dev := &config.CoreConfig{Env: "dev"}
	prod := &config.CoreConfig{Env: "prod"}

	tests := []struct {
		name    string
		core    *config.CoreConfig
		mutate  func(*AppConfig)
		wantErr bool
	}{
		{"valid", dev, func(*AppConfig) {}, false},
		{"valid prod", prod, func(*AppConfig) {}, false},
		{"bad mongo uri", dev, func(c *AppConfig) { c.MongoURI = "postgres://nope" }, true},
		{"negative cost", dev, func(c *AppConfig) { c.CreditsPerFile = -1 }, true},
		{"free uploads", dev, func(c *AppConfig) { c.CreditsPerFile = 0 }, false},
		{"negative signup credits", dev, func(c *AppConfig) { c.SignupCredits = -5 }, true},
		{"unknown storage", dev, func(c *AppConfig) { c.StorageType = "ftp" }, true},
		{"s3 without bucket", dev, func(c *AppConfig) { c.StorageType = "s3"; c.StorageS3Region = "us-east-1" }, true},
		{"bad audit mode", dev, func(c *AppConfig) { c.AuditLogAuth = "sometimes" }, true},
		{"weak secret in dev", dev, func(c *AppConfig) { c.JWTSecret = "short" }, false},
		{"weak secret in prod", prod, func(c *AppConfig) { c.JWTSecret = "short" }, true},
		{"empty secret", dev, func(c *AppConfig) { c.JWTSecret = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validAppConfig()
			tt.mutate(&cfg)
			err := ValidateConfig(tt.core, cfg, zap.NewNop())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Nil(t, splitList(" , "))
	assert.Equal(t,
		[]string{"https://a.example.com", "https://b.example.com"},
		splitList(" https://a.example.com ,,https://b.example.com"))
}
