package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"mu-scheduler/internal/config"
	"mu-scheduler/internal/logging"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const Version = "0.3.0"

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "mu-scheduler",
	Short: "OFDMA multi-user scheduler simulator",
	Long:  "Drives the downlink/uplink OFDMA scheduler against a simulated set of stations and records every transmission decision",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if logLevel != "" {
			if err := logging.SetLogLevel(logLevel); err != nil {
				return fmt.Errorf("invalid log level: %w", err)
			}
			if err := logging.SetSchedulerLogLevel(logLevel); err != nil {
				return fmt.Errorf("invalid log level: %w", err)
			}
		}
		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newAllocCmd())
	rootCmd.AddCommand(newReportCmd())
}

// Execute runs the root command.
func Execute() error {
	loadEnvironment()
	return rootCmd.Execute()
}

func loadEnvironment() {
	logger := logging.GetLogger()

	// Try the working directory first, then the binary's directory
	candidates := []string{".env"}
	if execPath, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(execPath), ".env"))
	}
	for _, envFile := range candidates {
		if _, err := os.Stat(envFile); err != nil {
			continue
		}
		if err := godotenv.Load(envFile); err != nil {
			logger.WithField("file", envFile).WithError(err).Warn("Error loading .env file")
		} else {
			logger.WithField("file", envFile).Debug("Loaded environment variables")
		}
		return
	}
}

func newValidateCmd() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a simulation configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(configFile)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to simulation configuration file")
	cmd.MarkFlagRequired("config")
	return cmd
}

func validateConfig(configFile string) error {
	logger := logging.GetLogger()

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		logger.WithField("config_file", configFile).WithError(err).Error("Configuration validation failed")
		return err
	}
	if _, err := cfg.SchedulerOptions(); err != nil {
		logger.WithField("config_file", configFile).WithError(err).Error("Configuration validation failed")
		return err
	}
	logger.WithField("config_file", configFile).Info("Configuration is valid")
	return nil
}
