package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"voicecaption/models"
	"voicecaption/watcher"
)

func newComposeCommand(ctx *commandContext) *cobra.Command {
	var (
		videoPath string
		text      string
		voice     string
		requestID string
	)

	cmd := &cobra.Command{
		Use:   "compose",
		Short: "Caption one video file and print the resulting asset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			video, err := os.Open(videoPath)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("video does not exist: %s", videoPath)
				}
				return fmt.Errorf("open video: %w", err)
			}
			defer video.Close()

			app, err := ctx.app(cmd.Context())
			if err != nil {
				return err
			}

			runCtx := cmd.Context()
			if app.Config.PipelineTimeout > 0 {
				var cancel context.CancelFunc
				runCtx, cancel = context.WithTimeout(runCtx, app.Config.PipelineTimeout)
				defer cancel()
			}

			result, runErr := app.Pipeline.Run(runCtx, models.CaptionRequest{
				RequestID: requestID,
				Video:     video,
				Text:      text,
				Voice:     models.VoiceStyleFromSelector(voice),
			})
			if runErr != nil && result.Failure == nil {
				return runErr
			}

			out, err := yaml.Marshal(watcher.ResultFrom(result))
			if err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(out))
			return runErr
		},
	}

	cmd.Flags().StringVar(&videoPath, "video", "", "Video file to caption")
	cmd.Flags().StringVar(&text, "text", "", "Caption text, also spoken by the synthesized voice")
	cmd.Flags().StringVar(&voice, "voice", "male", "Voice selector (male/default or female/alternate)")
	cmd.Flags().StringVar(&requestID, "request-id", "", "Request ID used in asset names")
	_ = cmd.MarkFlagRequired("video")
	_ = cmd.MarkFlagRequired("text")

	return cmd
}
