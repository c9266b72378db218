// Command castctl drives a Cast receiver from the command line: query
// its status, launch or stop an application, adjust volume, and load
// media, all against a device named in a YAML registry.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "castctl: failed to initialize logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := newRootCmd(logger).Execute(); err != nil {
		os.Exit(1)
	}
}
