package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nyxlabs/castlink/castv2"
	"github.com/nyxlabs/castlink/internal/config"
)

// globalFlags carries the options every subcommand needs to dial a
// device, whether that device comes from the registry or from raw
// --host/--port flags.
type globalFlags struct {
	registryPath string
	device       string
	host         string
	port         int
	senderID     string
	remoteName   string
	timeout      time.Duration
}

func newRootCmd(logger *zap.Logger) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "castctl",
		Short:         "Control a Cast receiver over the v2 control protocol",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.registryPath, "registry", "", "path to a YAML device registry")
	pf.StringVar(&flags.device, "device", "", "device name to look up in --registry")
	pf.StringVar(&flags.host, "host", "", "receiver host or IP (overrides --device)")
	pf.IntVar(&flags.port, "port", 0, "receiver port (default 8009)")
	pf.StringVar(&flags.senderID, "sender-id", "", "sender id presented during handshake")
	pf.StringVar(&flags.remoteName, "remote-name", "", "label used on this channel's metrics and logs")
	pf.DurationVar(&flags.timeout, "timeout", 0, "per-request timeout (default 30s)")

	root.AddCommand(
		newStatusCmd(logger, flags),
		newLaunchCmd(logger, flags),
		newStopCmd(logger, flags),
		newVolumeCmd(logger, flags),
		newLoadCmd(logger, flags),
	)
	return root
}

// resolve turns the flag set into a connected Channel, consulting the
// registry only when --host was not given directly.
func resolve(ctx context.Context, logger *zap.Logger, flags *globalFlags) (*castv2.Channel, error) {
	opts := castv2.Options{
		Host:           flags.host,
		Port:           flags.port,
		SenderID:       flags.senderID,
		RemoteName:     flags.remoteName,
		RequestTimeout: flags.timeout,
		Logger:         logger,
	}

	if opts.Host == "" {
		if flags.registryPath == "" || flags.device == "" {
			return nil, fmt.Errorf("castctl: specify either --host or both --registry and --device")
		}
		reg, err := config.Load(flags.registryPath)
		if err != nil {
			return nil, err
		}
		d, ok := reg.Lookup(flags.device)
		if !ok {
			return nil, fmt.Errorf("castctl: device %q not found in %s", flags.device, flags.registryPath)
		}
		opts.Host = d.Host
		if opts.Port == 0 {
			opts.Port = d.Port
		}
		if opts.SenderID == "" {
			opts.SenderID = d.SenderID
		}
		if opts.RemoteName == "" {
			opts.RemoteName = d.RemoteName
		}
		if opts.RequestTimeout == 0 {
			opts.RequestTimeout = reg.RequestTimeout
		}
	}
	if opts.SenderID == "" {
		opts.SenderID = "sender-0"
	}
	if opts.RemoteName == "" {
		opts.RemoteName = opts.Host
	}

	ch, err := castv2.NewChannel(opts)
	if err != nil {
		return nil, err
	}
	if err := ch.Connect(ctx); err != nil {
		return nil, err
	}
	return ch, nil
}
