package logsvc

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trezcool/colegio/core"
)

const callerSkipFrames = 1

// ZapLogger writes structured entries with zap.
// args may hold errors (logged under "error"), map[string]interface{} extras (one field per key) or any value.
type ZapLogger struct {
	logger *zap.Logger
}

var _ core.Logger = (*ZapLogger)(nil)

// NewZapLogger builds a console (DEV) or json logger depending on conf.LogFormat.
// Entries are tagged with name, eg. "API" or "DB", when it is not empty.
func NewZapLogger(conf *core.Config, name string) (*ZapLogger, error) {
	var cfg zap.Config
	if conf.Debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Encoding = "console"
	if conf.LogFormat == "json" {
		cfg.Encoding = "json"
	}
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.DisableStacktrace = true
	cfg.InitialFields = map[string]interface{}{"app": conf.AppName, "env": conf.Env, "build": conf.Build}

	logger, err := cfg.Build(zap.AddCallerSkip(callerSkipFrames))
	if err != nil {
		return nil, errors.Wrap(err, "building zap logger")
	}
	if name != "" {
		logger = logger.Named(name)
	}
	return &ZapLogger{logger: logger}, nil
}

// NewZapLoggerFrom wraps an existing zap logger.
func NewZapLoggerFrom(logger *zap.Logger) *ZapLogger {
	return &ZapLogger{logger: logger}
}

func (l *ZapLogger) Sync() error {
	return l.logger.Sync()
}

func fields(args []interface{}) []zap.Field {
	flds := make([]zap.Field, 0, len(args))
	var extra []interface{}
	for _, arg := range args {
		switch a := arg.(type) {
		case error:
			flds = append(flds, zap.Error(a))
		case map[string]interface{}:
			for k, v := range a {
				flds = append(flds, zap.Any(k, v))
			}
		default:
			extra = append(extra, a)
		}
	}
	if len(extra) > 0 {
		flds = append(flds, zap.Any("args", extra))
	}
	return flds
}

func (l *ZapLogger) Debug(msg string, args ...interface{}) { l.logger.Debug(msg, fields(args)...) }
func (l *ZapLogger) Info(msg string, args ...interface{})  { l.logger.Info(msg, fields(args)...) }
func (l *ZapLogger) Warn(msg string, args ...interface{})  { l.logger.Warn(msg, fields(args)...) }
func (l *ZapLogger) Error(msg string, args ...interface{}) { l.logger.Error(msg, fields(args)...) }
func (l *ZapLogger) Fatal(msg string, args ...interface{}) { l.logger.Fatal(msg, fields(args)...) }
