package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newFunctionsCmd(root *rootOptions) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "functions",
		Short: "List the functions the server can run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			defs, err := a.client.ListFunctions(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(defs) == 0 {
				printf(out, "The server offers no functions.\n")
				return nil
			}

			if verbose {
				for _, def := range defs {
					printf(out, "%s\n  %s\n", def.Name, def.Description)
					if def.Parameters != "" {
						printf(out, "  parameters: %s\n", compactJSON(def.Parameters))
					}
					printf(out, "\n")
				}
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			printf(w, "NAME\tDESCRIPTION\n")
			for _, def := range defs {
				printf(w, "%s\t%s\n", def.Name, def.Description)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show parameter schemas")
	return cmd
}

func compactJSON(raw string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(raw)); err != nil {
		return raw
	}
	return buf.String()
}

func newHealthCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the server is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(root)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.client.Ping(cmd.Context()); err != nil {
				return fmt.Errorf("server at %s is not healthy: %w", a.client.BaseURL(), err)
			}
			printf(cmd.OutOrStdout(), "Server at %s is up\n", a.client.BaseURL())
			return nil
		},
	}
}
