package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/webfetch-archive/internal/webfetch"
)

type fetchFailure struct {
	URL    string `json:"url"`
	Error  string `json:"error"`
	Status int    `json:"status,omitempty"`
}

func newFetchCmd() *cobra.Command {
	var pretty bool
	cmd := &cobra.Command{
		Use:   "fetch <url>...",
		Short: "Fetch URLs once and print the results as JSON",
		Long: `Runs the fetch pipeline for each URL in order and writes one JSON result
per URL to stdout. Failures are written to stderr; the command exits non-zero
if any URL could not be served live or from the archive.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			out := json.NewEncoder(cmd.OutOrStdout())
			errOut := json.NewEncoder(cmd.ErrOrStderr())
			if pretty {
				out.SetIndent("", "  ")
				errOut.SetIndent("", "  ")
			}

			failed := 0
			for _, rawURL := range args {
				outcome, err := appInstance.Fetch(cmd.Context(), rawURL)
				if err != nil {
					failed++
					failure := fetchFailure{URL: rawURL, Error: err.Error()}
					var fetchErr *webfetch.FetchError
					if errors.As(err, &fetchErr) {
						failure.Status = fetchErr.StatusCode
					}
					if encErr := errOut.Encode(failure); encErr != nil {
						return fmt.Errorf("write failure: %w", encErr)
					}
					continue
				}
				result := outcome.Result
				if result.Links == nil {
					result.Links = []string{}
				}
				if err := out.Encode(result); err != nil {
					return fmt.Errorf("write result: %w", err)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d fetches failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent JSON output")
	return cmd
}
