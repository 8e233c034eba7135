package main

import (
	"fmt"
	"os"

	"github.com/mikepea/succession/pkg/succession/config"
	"github.com/mikepea/succession/pkg/succession/logging"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	_ "github.com/mikepea/succession/api/swagger"
)

// @title Succession API
// @version 1.0
// @description HR succession planning: organizational roles, succession plans, candidates and access approval.

// @contact.name Succession Support
// @contact.url https://github.com/mikepea/succession

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:5000
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT token. Format: "Bearer {token}"

const programName = "succession-server"

var (
	globalFlags = struct {
		debug bool
	}{}
	configFile string
)

// setup loads configuration and builds the process logger shared by every
// subcommand
func setup() (*config.Config, *zap.Logger, error) {
	if globalFlags.debug {
		os.Setenv(config.EnvPrefix+"_DEBUG", "true")
	}
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logging.Init(cfg.LogLevel, cfg.Debug)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	if _, err := maxprocs.Set(maxprocs.Logger(log.Sugar().Infof)); err != nil {
		log.Warn("failed to set GOMAXPROCS", zap.Error(err))
	}
	return cfg, log.With(zap.String("component", programName)), nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:          programName,
		Short:        "HR succession planning API server",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveRun(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")
	rootCmd.PersistentFlags().
		StringVar(&configFile, "config", "", "path to config file")

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(migrateCommand())
	rootCmd.AddCommand(seedCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
