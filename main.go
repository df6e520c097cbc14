package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "ekaya-grounding",
		Short:         "Grounds entity mentions in natural-language questions to values stored in your database",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "config.yaml", "path to the YAML configuration file")
	root.PersistentFlags().String("profiles", "", "index from a JSON file of column profiles instead of the configured datasource")

	root.AddCommand(newServeCommand(), newIndexCommand(), newResolveCommand())
	return root
}
