package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"voicecaption/config"
	"voicecaption/logging"
	"voicecaption/utils"
)

// Execute runs the voicecaption command line until it finishes or is interrupted
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := NewRootCommand(utils.NewExecutor())
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		return 1
	}
	return 0
}

type commandContext struct {
	envFile  *string
	executor utils.Executor

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var files []string
		if c.envFile != nil && strings.TrimSpace(*c.envFile) != "" {
			files = append(files, strings.TrimSpace(*c.envFile))
		}
		c.config, c.configErr = config.LoadConfig(files...)
	})
	return c.config, c.configErr
}

// app loads configuration and wires the services
func (c *commandContext) app(ctx context.Context) (*App, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	log.Debug().Str("config", cfg.String()).Msg("configuration loaded")
	return NewApp(ctx, cfg, log, c.executor)
}

// NewRootCommand builds the command tree. exec runs ffmpeg and ffprobe.
func NewRootCommand(exec utils.Executor) *cobra.Command {
	var envFile string
	ctx := &commandContext{envFile: &envFile, executor: exec}

	rootCmd := &cobra.Command{
		Use:           "voicecaption",
		Short:         "Caption a video and replace its audio with synthesized speech",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to a .env file (defaults to ./.env)")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))
	rootCmd.AddCommand(newComposeCommand(ctx))

	return rootCmd
}
