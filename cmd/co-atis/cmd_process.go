package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/yegors/co-atis/internal/api"
)

func newProcessCommand(opts *globalOptions) *cobra.Command {
	var pretty bool

	cmd := &cobra.Command{
		Use:   "process <AIRPORT_CODE>",
		Short: "Run the ATIS pipeline once and print the result as JSON",
		Long: `Run the ATIS pipeline once for the given airport and print the same
JSON body the HTTP API would return. Logs go to stderr.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			log, err := newLogger(cfg, os.Stderr)
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			app, err := newApplication(cfg, log)
			if err != nil {
				return err
			}
			defer app.Close() //nolint:errcheck

			encoder := json.NewEncoder(cmd.OutOrStdout())
			if pretty {
				encoder.SetIndent("", "  ")
			}

			code := strings.ToUpper(strings.TrimSpace(args[0]))
			result, err := app.orchestrator.Process(cmd.Context(), code)
			if err != nil {
				status, message := api.ErrorStatus(err, code)
				if encErr := encoder.Encode(api.ErrorResponse{Status: "error", Message: message}); encErr != nil {
					return encErr
				}
				return &runFailedError{err: fmt.Errorf("ATIS run failed (%d): %w", status, err)}
			}

			return encoder.Encode(api.NewProcessResponse(result))
		},
	}

	cmd.Flags().BoolVar(&pretty, "pretty", false, "Indent the JSON output")

	return cmd
}
