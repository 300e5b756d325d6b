package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/profilex/service"
)

func newExtractCmd(a *app) *cobra.Command {
	var (
		req       service.ExtractRequest
		sources   []string
		out       string
		noHistory bool
		compact   bool
	)
	cmd := &cobra.Command{
		Use:   "extract --name <name> [--profile-url <url>] [--username <login>]",
		Short: "Extract one profile and print it as JSON.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(sources) > 0 {
				a.cfg.Sources = sources
				if err := a.cfg.Validate(); err != nil {
					return err
				}
			}
			svc, closeFn, err := a.newService(!noHistory)
			if err != nil {
				return err
			}
			defer closeFn()

			resp, err := svc.Extract(cmd.Context(), req)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("extract: %w", err)
				}
				defer f.Close()
				w = f
			}
			enc := json.NewEncoder(w)
			if !compact {
				enc.SetIndent("", "  ")
			}
			if err := enc.Encode(resp); err != nil {
				return fmt.Errorf("extract: write: %w", err)
			}
			if resp.Error != "" {
				return fmt.Errorf("run %s incomplete: %s", resp.RunID, resp.Error)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.Name, "name", "", "display name of the person")
	f.StringVar(&req.ProfileURL, "profile-url", "", "social profile URL")
	f.StringVar(&req.Username, "username", "", "code host login")
	f.StringSliceVar(&sources, "sources", nil, "sources to query (overrides config)")
	f.StringVarP(&out, "out", "o", "", "write JSON to this file instead of stdout")
	f.BoolVar(&noHistory, "no-history", false, "do not archive the run")
	f.BoolVar(&compact, "compact", false, "single-line JSON")
	return cmd
}
