package timeouts

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestConfigure(t *testing.T) {
	t.Cleanup(Reset)

	assert.Equal(t, Config{Ping: DefaultPing, Short: DefaultShort, Long: DefaultLong}, Current())

	Configure(Config{Short: time.Second})
	assert.Equal(t, time.Second, Short())
	assert.Equal(t, DefaultPing, Ping(), "zero fields are left unchanged")
	assert.Equal(t, DefaultLong, Long())

	Configure(Config{Ping: -time.Second})
	assert.Equal(t, DefaultPing, Ping(), "negative values are ignored")

	Reset()
	assert.Equal(t, DefaultShort, Short())
}

func TestWithTimeout_LogsDeadline(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	ctx, cancel := WithTimeout(context.Background(), time.Millisecond, zap.New(core), "purge")
	<-ctx.Done()
	cancel()

	entries := logs.FilterMessage("operation timed out").All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "purge", entries[0].ContextMap()["operation"])
	}
}

func TestWithTimeout_QuietWhenCancelledEarly(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	_, cancel := WithTimeout(context.Background(), time.Hour, zap.New(core), "lookup")
	cancel()

	assert.Zero(t, logs.Len())
}
