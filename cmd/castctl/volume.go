package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newVolumeCmd(logger *zap.Logger, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "volume <0.0-1.0>",
		Short: "Set the receiver's output volume",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("castctl: invalid volume level %q: %w", args[0], err)
			}

			ctx := cmd.Context()
			ch, err := resolve(ctx, logger, flags)
			if err != nil {
				return err
			}
			defer ch.Close()

			status, err := ch.SetVolume(ctx, level)
			if err != nil {
				return err
			}
			return printJSON(cmd, status)
		},
	}
}
