package observability

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog for structured logging.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new Logger.
func NewLogger(level, format string) *Logger {
	var output io.Writer = os.Stdout

	logLevel := parseLogLevel(level)
	zerolog.SetGlobalLevel(logLevel)

	if format == "text" || format == "console" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	logger := zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()

	return &Logger{logger: logger}
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *Logger) Debug(msg string)                           { l.logger.Debug().Msg(msg) }
func (l *Logger) Debugf(format string, args ...interface{})  { l.logger.Debug().Msgf(format, args...) }
func (l *Logger) Info(msg string)                            { l.logger.Info().Msg(msg) }
func (l *Logger) Infof(format string, args ...interface{})   { l.logger.Info().Msgf(format, args...) }
func (l *Logger) Warn(msg string)                            { l.logger.Warn().Msg(msg) }
func (l *Logger) Warnf(format string, args ...interface{})   { l.logger.Warn().Msgf(format, args...) }
func (l *Logger) Error(msg string)                           { l.logger.Error().Msg(msg) }
func (l *Logger) Errorf(format string, args ...interface{})  { l.logger.Error().Msgf(format, args...) }

// ErrorWithErr logs an error with the error object attached.
func (l *Logger) ErrorWithErr(err error, msg string) {
	l.logger.Error().Err(err).Msg(msg)
}

func (l *Logger) Fatal(msg string)                           { l.logger.Fatal().Msg(msg) }
func (l *Logger) Fatalf(format string, args ...interface{})  { l.logger.Fatal().Msgf(format, args...) }

// WithField adds a field to the logger.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{logger: l.logger.With().Interface(key, value).Logger()}
}

// WithFields adds multiple fields to the logger.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	logger := l.logger.With()
	for k, v := range fields {
		logger = logger.Interface(k, v)
	}
	return &Logger{logger: logger.Logger()}
}

// WithContext adds a request id from context to the logger.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if requestID, ok := ctx.Value("request_id").(string); ok {
		return l.WithField("request_id", requestID)
	}
	return l
}

// GetZerologLogger returns the underlying zerolog.Logger.
func (l *Logger) GetZerologLogger() zerolog.Logger {
	return l.logger
}

// SetGlobalLogger sets the package-level zerolog logger.
func SetGlobalLogger(logger *Logger) {
	log.Logger = logger.logger
}

// BatchLogger creates a logger scoped to a single batch.
func BatchLogger(batchID string, batchType string) *Logger {
	return &Logger{
		logger: log.With().
			Str("batch_id", batchID).
			Str("batch_type", batchType).
			Str("component", "batchmgr").
			Logger(),
	}
}

// ChainLogger creates a logger scoped to chain-step advance.
func ChainLogger(batchID string, position int) *Logger {
	return &Logger{
		logger: log.With().
			Str("batch_id", batchID).
			Int("position", position).
			Str("component", "chain_processor").
			Logger(),
	}
}

// WorkerLogger creates a logger for worker operations.
func WorkerLogger(workerID int, jobID string) *Logger {
	return &Logger{
		logger: log.With().
			Int("worker_id", workerID).
			Str("job_id", jobID).
			Str("component", "worker").
			Logger(),
	}
}
