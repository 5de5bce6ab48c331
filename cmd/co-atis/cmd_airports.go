package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newAirportsCommand(opts *globalOptions) *cobra.Command {
	var showURLs bool

	cmd := &cobra.Command{
		Use:   "airports",
		Short: "List the configured airports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			airports, err := newAirportDirectory(cfg)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			if showURLs {
				fmt.Fprintln(w, "CODE\tNAME\tSTREAM")
			} else {
				fmt.Fprintln(w, "CODE\tNAME")
			}
			for _, freq := range airports.All() {
				if showURLs {
					fmt.Fprintf(w, "%s\t%s\t%s\n", freq.Airport, freq.Name, freq.StreamURL)
				} else {
					fmt.Fprintf(w, "%s\t%s\n", freq.Airport, freq.Name)
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&showURLs, "urls", false, "Include the stream URLs")

	return cmd
}
