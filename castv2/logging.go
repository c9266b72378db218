package castv2

import "go.uber.org/zap"

// nopLogger is used whenever NewChannel is not given a logger, following
// the "accept an interface, default to silence" shape common to
// libraries that want structured logging without forcing a dependency
// on their embedders' logging configuration.
func nopLogger() *zap.Logger {
	return zap.NewNop()
}
