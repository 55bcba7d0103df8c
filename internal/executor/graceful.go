package executor

// graceful.go provides helpers for the nil-tolerant logging pattern used by the
// scheduler: a missing logger silences output but never fails a run.

// Logger is the leveled logger the scheduler writes to. It must be safe for
// concurrent use because the walker goroutine and the collector both log.
type Logger interface {
	Warnf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// GracefulWarn logs a warning if logger is non-nil.
//
// Usage:
//
//	if err != nil {
//	    GracefulWarn(s.logger, "Walk: %v", err)
//	    continue
//	}
func GracefulWarn(logger Logger, format string, args ...interface{}) {
	if logger != nil {
		logger.Warnf(format, args...)
	}
}

// GracefulInfo logs an info message if logger is non-nil.
func GracefulInfo(logger Logger, format string, args ...interface{}) {
	if logger != nil {
		logger.Infof(format, args...)
	}
}

// GracefulDebug logs a debug message if logger is non-nil.
func GracefulDebug(logger Logger, format string, args ...interface{}) {
	if logger != nil {
		logger.Debugf(format, args...)
	}
}
