package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newStatusCmd(logger *zap.Logger, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the receiver's current status as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ch, err := resolve(ctx, logger, flags)
			if err != nil {
				return err
			}
			defer ch.Close()

			status, err := ch.GetStatus(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, status)
		},
	}
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}
