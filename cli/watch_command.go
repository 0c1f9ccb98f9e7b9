package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"voicecaption/watcher"
)

const manifestSettle = 500 * time.Millisecond

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Process caption manifests dropped into the inbox directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := ctx.app(cmd.Context())
			if err != nil {
				return err
			}

			processor, err := watcher.NewProcessor(app.Pipeline, app.Config.OutboxDir, app.Config.PipelineTimeout, app.Log)
			if err != nil {
				return err
			}
			w, err := watcher.New(app.Config.InboxDir, processor.Handle, app.Log, app.Config.MaxConcurrentJobs, manifestSettle)
			if err != nil {
				return err
			}
			defer w.Stop()

			if err := w.Start(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
