// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"
	"errors"

	"github.com/dalemusser/stratadrive/internal/app/system/timeouts"
	"github.com/dalemusser/stratadrive/internal/app/system/txn"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Startup runs once after DB connections and schema/index setup are complete,
// but before the HTTP handler is built and requests are served.
//
// It applies the configured timeouts and checks whether MongoDB can run
// multi-document transactions. Without them drive writes fall back to
// compensating writes, unless require_transactions is set, in which case
// startup fails.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(timeouts.Config{
		Ping:  appCfg.TimeoutPing,
		Short: appCfg.TimeoutShort,
		Long:  appCfg.TimeoutLong,
	})
	cur := timeouts.Current()
	logger.Info("timeouts configured",
		zap.Duration("ping", cur.Ping),
		zap.Duration("short", cur.Short),
		zap.Duration("long", cur.Long),
	)

	supported, err := txn.Supported(ctx, deps.MongoClient)
	if err != nil {
		logger.Warn("could not determine transaction support", zap.Error(err))
		return nil
	}
	if !supported {
		if appCfg.RequireTransactions {
			return errors.New("require_transactions is set but MongoDB is not a replica set or sharded cluster")
		}
		logger.Warn("MongoDB does not support transactions; drive writes will use compensating rollback")
		return nil
	}
	logger.Info("MongoDB transactions available")
	return nil
}
