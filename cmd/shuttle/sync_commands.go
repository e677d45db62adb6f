package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"shuttle/internal/ipc"
	"shuttle/internal/phase"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Control the image and product sync phases",
	}

	var batchSize int
	startCmd := &cobra.Command{
		Use:   "start [phase]",
		Short: "Start a sync phase (images when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := string(phase.Images)
			if len(args) == 1 {
				target = args[0]
			}
			if batchSize < 0 {
				return fmt.Errorf("batch size must be positive, got %d", batchSize)
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.PhaseStart(target, batchSize)
				if err != nil {
					return err
				}
				printPhaseResponse(cmd, resp)
				if resp.RequestID != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "Request ID: %s\n", resp.RequestID)
				}
				return nil
			})
		},
	}
	startCmd.Flags().IntVarP(&batchSize, "batch-size", "b", 0, "Items per batch (defaults to the configured size)")
	syncCmd.AddCommand(startCmd)

	controls := []struct {
		use   string
		short string
		call  func(*ipc.Client, string) (*ipc.PhaseResponse, error)
	}{
		{"reset", "Return a phase to pending and forget its progress", (*ipc.Client).PhaseReset},
		{"cancel", "Cancel a running phase on the server", (*ipc.Client).PhaseCancel},
		{"pause", "Pause polling for the products phase", (*ipc.Client).PhasePause},
		{"resume", "Resume a paused products phase", (*ipc.Client).PhaseResume},
		{"nudge", "Ask the server to process the next batch now", (*ipc.Client).PhaseNudge},
	}
	for _, control := range controls {
		syncCmd.AddCommand(&cobra.Command{
			Use:   control.use + " <phase>",
			Short: control.short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return ctx.withClient(func(client *ipc.Client) error {
					resp, err := control.call(client, args[0])
					if err != nil {
						return err
					}
					printPhaseResponse(cmd, resp)
					return nil
				})
			},
		})
	}

	return syncCmd
}

func printPhaseResponse(cmd *cobra.Command, resp *ipc.PhaseResponse) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s (state: %s)\n", resp.Message, stateLabel(resp.State))
}
