package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X main.version=..." at build time.
var version = "dev"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "imagehost",
	Short:         "Upload, resize and serve images as WebP",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config_folder", "config", "path to folder with configs")
	rootCmd.AddCommand(serveCmd, inspectCmd, sizesCmd)
}
