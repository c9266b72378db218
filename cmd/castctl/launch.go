package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newLaunchCmd(logger *zap.Logger, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "launch <app-id>",
		Short: "Launch an application on the receiver",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ch, err := resolve(ctx, logger, flags)
			if err != nil {
				return err
			}
			defer ch.Close()

			status, err := ch.Launch(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, status)
		},
	}
}

func newStopCmd(logger *zap.Logger, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop <session-id>",
		Short: "Stop a running application session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ch, err := resolve(ctx, logger, flags)
			if err != nil {
				return err
			}
			defer ch.Close()

			status, err := ch.Stop(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, status)
		},
	}
}
