package main

import (
	"fmt"

	"story-weaver/internal/config"
	"story-weaver/internal/controller"
	"story-weaver/internal/logger"
	"story-weaver/internal/service"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	envFile string
	logFile string

	cfg *config.Config
	log *zap.Logger

	rootCmd = &cobra.Command{
		Use:   "weaver",
		Short: "Co-write a branching interactive story with an AI narrator",
		Long: `Story Weaver grows a tree of story segments: every choice you make
asks the AI narrator for the next paragraph and a fresh set of choices.
Run "weaver play" in a terminal or "weaver serve" for the HTTP API.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env необязателен
			_ = godotenv.Load(envFile)

			var err error
			cfg, err = config.LoadConfig()
			if err != nil {
				return err
			}
			log, err = logger.New(logger.Config{
				Level:      cfg.LogLevel,
				Encoding:   cfg.LogEncoding,
				OutputPath: logFile,
				Mode:       cmd.Name(),
			})
			if err != nil {
				return err
			}
			log.Info("Configuration loaded", cfg.LogFields()...)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if log != nil {
				_ = log.Sync()
			}
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file with configuration")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to this file instead of stdout (play defaults to "+logger.DefaultPlayLogFile+")")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(playCmd)
}

// newController собирает цепочку AI клиент -> рассказчик -> контроллер.
func newController() (*controller.Controller, error) {
	aiClient, err := service.NewAIClient(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create AI client: %w", err)
	}
	narrator := service.NewNarrator(aiClient, cfg, log)
	return controller.New(narrator, log), nil
}
