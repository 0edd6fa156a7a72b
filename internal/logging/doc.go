// Package logging provides structured logging for specforge.
//
// # Overview
//
// Logging package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Automatic context field injection (run ID, issue, mode, trace_id)
//   - Secret redaction by field name and value pattern
//   - An adapter so Temporal workers log through the same pipeline
//
// # Usage
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg)
//	if err != nil {
//	    return err
//	}
//	defer func() { _ = logger.Sync() }()
//
//	ctx = logging.WithRun(ctx, logging.Run{ID: runID, Issue: 42, Mode: "implement"})
//	logger.Info(ctx, "attempt finished", zap.Int("exit_code", 1))
//
// Output includes automatic correlation:
//
//	{
//	  "ts": "2026-10-18T10:15:30Z",
//	  "level": "info",
//	  "msg": "attempt finished",
//	  "run.id": "5b0e…",
//	  "issue": 42,
//	  "mode": "implement",
//	  "exit_code": 1
//	}
//
// # Testing
//
// Use TestLogger for assertions:
//
//	tl := logging.NewTestLogger()
//	tl.Info(ctx, "test message", zap.String("key", "value"))
//	tl.AssertLogged(t, zapcore.InfoLevel, "test message")
//	tl.AssertField(t, "test message", "key", "value")
package logging
