// Package logger builds zerolog loggers from configuration and moves them
// through contexts.
//
// Library code never reaches for a global logger. It logs through
// zerolog.Ctx(ctx), which is disabled unless the caller attached one:
//
//	log := logger.New(cfg.Logging, "participants")
//	ctx := logger.WithContext(context.Background(), log)
//	reactive.Range(1, 10).Subscribe(ctx, sub)
package logger
