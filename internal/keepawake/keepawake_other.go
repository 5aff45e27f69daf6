//go:build !windows

package keepawake

import (
	"runtime"

	"go.uber.org/zap"
)

func platformHolder(logger *zap.Logger) func() holder {
	return processHolder(Command(runtime.GOOS), logger)
}
