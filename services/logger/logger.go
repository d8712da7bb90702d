package logsvc

import "github.com/trezcool/colegio/core"

// New returns the logger of the configured environment: zap locally, zap behind rollbar
// when a rollbar token is set.
func New(conf *core.Config, name string) (core.Logger, error) {
	local, err := NewZapLogger(conf, name)
	if err != nil {
		return nil, err
	}
	if conf.RollbarToken == "" || conf.TestMode {
		return local, nil
	}
	rl := NewRollbarLogger(local, conf)
	rl.Enable(!conf.Debug)
	return rl, nil
}

type syncer interface {
	Sync() error
}

// Sync flushes the buffered entries of logger, if it buffers any.
func Sync(logger core.Logger) error {
	if s, ok := logger.(syncer); ok {
		return s.Sync()
	}
	return nil
}
