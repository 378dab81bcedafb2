package testutil

import (
	"io"

	"github.com/dtroode/taq-server/internal/logger"
)

func MakeNoopLogger() *logger.Logger {
	return logger.NewWithWriter(io.Discard, 0, "text")
}
