package main

import (
	"fmt"
	"os"

	"imagedupes/config"
	"imagedupes/logging"

	"github.com/spf13/cobra"
)

var (
	configPath string
	debugMode  bool
	logPath    string
	logLevel   string

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "imagedupes",
	Short: "Find duplicate and near-duplicate images",
	Long: `imagedupes fingerprints every image under the given folders and reports
duplicates: byte-identical files, pixel-identical images, rotated copies and
perceptually similar pictures.

Fingerprints are cached between runs, so re-running on an unchanged folder
only compares, it never decodes again.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}

		level := cfg.Log.Level
		if cmd.Flags().Changed("log-level") {
			level = logLevel
		}
		if debugMode {
			level = "debug"
		}
		if err := logging.SetLevel(level); err != nil {
			return err
		}

		file := cfg.Log.File
		if logPath != "" {
			file = logPath
		}
		if debugMode && file == "" {
			file = "imagedupes.log"
		}
		if file != "" {
			if err := logging.SetupLogger(file); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: Failed to setup logging: %v\n", err)
			} else if debugMode {
				fmt.Printf("Debug mode enabled. Logging to: %s\n", file)
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseLogger()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logPath, "logfile", "", "Write logs to this file instead of stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(scanCmd, groupsCmd, nearestCmd, searchCmd, statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logging.CloseLogger()
		os.Exit(1)
	}
}
