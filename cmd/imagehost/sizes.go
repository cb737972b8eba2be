package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/itchan-dev/imagehost/internal/config"
)

var sizesCmd = &cobra.Command{
	Use:   "sizes",
	Short: "Print the configured resize targets",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Default()
		configFolder, _ := cmd.Flags().GetString("config_folder")
		// Fall back to the built-in table when no config folder exists.
		if _, err := os.Stat(filepath.Join(configFolder, "public.yaml")); err == nil {
			loaded, err := config.Load(configFolder)
			if err != nil {
				return err
			}
			cfg = *loaded
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tWIDTH\tPATH")
		for _, size := range cfg.Public.DomainSizes() {
			fmt.Fprintf(tw, "%s\t%d\t/api/images/download/{id}/%s\n", size.Name, size.Width, strings.ToLower(size.Name))
		}
		return tw.Flush()
	},
}
