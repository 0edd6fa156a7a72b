package logging

import (
	"go.temporal.io/sdk/log"
	"go.uber.org/zap"
)

// TemporalLogger adapts Logger to the Temporal SDK log.Logger interface.
type TemporalLogger struct {
	s *zap.SugaredLogger
}

var _ log.Logger = (*TemporalLogger)(nil)

// NewTemporalLogger routes SDK logs through l, so redaction applies to them.
func NewTemporalLogger(l *Logger) *TemporalLogger {
	return &TemporalLogger{s: l.zap.WithOptions(zap.AddCallerSkip(1)).Named("temporal").Sugar()}
}

func (t *TemporalLogger) Debug(msg string, keyvals ...interface{}) { t.s.Debugw(msg, keyvals...) }
func (t *TemporalLogger) Info(msg string, keyvals ...interface{})  { t.s.Infow(msg, keyvals...) }
func (t *TemporalLogger) Warn(msg string, keyvals ...interface{})  { t.s.Warnw(msg, keyvals...) }
func (t *TemporalLogger) Error(msg string, keyvals ...interface{}) { t.s.Errorw(msg, keyvals...) }
