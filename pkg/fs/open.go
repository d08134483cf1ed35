package fs

import (
	"os"

	"go.uber.org/zap/zapcore"
)

// Open opens name for reading.
func Open(name string) (*os.File, error) {
	return os.Open(name)
}

// OpenFile opens name with flag and perm, wrapping the result as a
// zapcore.WriteSyncer so it can back a logger core directly.
func OpenFile(name string, flag int, perm os.FileMode) (zapcore.WriteSyncer, error) {
	f, err := os.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return zapcore.AddSync(f), nil
}
