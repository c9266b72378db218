package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nyxlabs/castlink/castv2"
)

func newLoadCmd(logger *zap.Logger, flags *globalFlags) *cobra.Command {
	var (
		destinationID string
		sessionID     string
		contentType   string
		streamType    string
		autoplay      bool
	)

	cmd := &cobra.Command{
		Use:   "load <content-url>",
		Short: "Load media into a running application's session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ch, err := resolve(ctx, logger, flags)
			if err != nil {
				return err
			}
			defer ch.Close()

			media := castv2.MediaInformation{
				ContentID:   args[0],
				ContentType: contentType,
				StreamType:  streamType,
			}
			status, err := ch.Load(ctx, destinationID, sessionID, media, autoplay, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd, status)
		},
	}

	cmd.Flags().StringVar(&destinationID, "transport-id", "", "application transport id (from status.applications[].transportId)")
	cmd.Flags().StringVar(&sessionID, "session-id", "", "application session id (from status.applications[].sessionId)")
	cmd.Flags().StringVar(&contentType, "content-type", "video/mp4", "MIME type of the content")
	cmd.Flags().StringVar(&streamType, "stream-type", "BUFFERED", "BUFFERED, LIVE, or NONE")
	cmd.Flags().BoolVar(&autoplay, "autoplay", true, "start playback immediately once loaded")
	cmd.MarkFlagRequired("transport-id")
	cmd.MarkFlagRequired("session-id")

	return cmd
}
