package obs

import (
	"go.uber.org/zap"
)

// ZapLogger bridges a *zap.Logger to the Logger interface so the engine
// can stay backend-agnostic while deployments keep structured output.
type ZapLogger struct {
	s *zap.SugaredLogger
}

// NewZapLogger wraps l. A nil l yields a logger that discards everything.
func NewZapLogger(l *zap.Logger) ZapLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return ZapLogger{s: l.Sugar()}
}

func (z ZapLogger) Logf(level Level, format string, args ...interface{}) {
	if z.s == nil {
		return
	}
	switch level {
	case Debug:
		z.s.Debugf(format, args...)
	case Info:
		z.s.Infof(format, args...)
	case Warn:
		z.s.Warnf(format, args...)
	default:
		z.s.Errorf(format, args...)
	}
}
