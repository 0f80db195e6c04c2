package main

import (
	"io"

	"github.com/spf13/cobra"
	"github.com/use-agent/maprank/tabular"
)

var templateOut string

var templateCommand = &cobra.Command{
	Use:   "template",
	Short: "Write an example input CSV",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if templateOut == "" {
			return tabular.WritePairsTemplate(cmd.OutOrStdout())
		}
		return writeFile(templateOut, func(w io.Writer) error { return tabular.WritePairsTemplate(w) })
	},
}

func init() {
	templateCommand.Flags().StringVarP(&templateOut, "out", "o", "", "File to write (default stdout)")
	rootCmd.AddCommand(templateCommand)
}
