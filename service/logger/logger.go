package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls where log output goes and at what level.
type Config struct {
	Path    string
	Mode    FileMode
	Level   zapcore.Level
	DevMode bool
}

// New builds a logger writing JSON-encoded entries to cfg.Path.
func New(cfg Config) (*zap.Logger, error) {
	ws, err := OpenFile(cfg.Path, cfg.Mode)
	if err != nil {
		return nil, err
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), ws, cfg.Level)
	opts := []zap.Option{zap.AddCaller()}
	if cfg.DevMode {
		opts = append(opts, zap.Development())
	}
	return zap.New(core, opts...), nil
}
