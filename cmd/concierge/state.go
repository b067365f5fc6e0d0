package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"basegraph.app/concierge/internal/state"
)

func newStateCmd(_ *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect conversation state embedded in bot comments",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "decode [comment-file]",
		Short: "Print the state stored in a comment body (stdin when no file is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				body []byte
				err  error
			)
			if len(args) == 1 {
				body, err = os.ReadFile(args[0])
			} else {
				body, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return fmt.Errorf("reading comment: %w", err)
			}

			st, ok := state.Decode(string(body))
			if !ok {
				return errors.New("no decodable state marker found")
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		},
	})
	return cmd
}
