package devices

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tphakala/audiorouter/internal/audiocore"
	"github.com/tphakala/audiorouter/internal/audiocore/malgo"
)

// Command creates the device listing command.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "devices",
		Aliases: []string{"list-devices"},
		Short:   "List audio devices reported by the system",
		Long:    "Print every capture and playback device. Use a part of the name as devices.<alias>.name in config.yaml.",
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := malgo.New(nil)
			if err != nil {
				return err
			}
			defer backend.Close()

			return List(cmd.Context(), backend, cmd.OutOrStdout())
		},
	}

	return cmd
}

// List enumerates devices once and prints them as a numbered list.
func List(ctx context.Context, enum audiocore.Enumerator, w io.Writer) error {
	devices, err := enum.ListDevices(ctx)
	if err != nil {
		return err
	}
	if len(devices) == 0 {
		fmt.Fprintln(w, "No audio devices found!")
		return nil
	}

	fmt.Fprintln(w, "Available audio devices:")
	for i, d := range devices {
		fmt.Fprintf(w, "%d: %s (%s)\n", i+1, d.SystemName, d.Kind)
	}
	return nil
}
