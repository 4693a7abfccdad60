package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dep2p/go-simdht/internal/dht"
	"github.com/dep2p/go-simdht/pkg/types"
)

func newPutCmd(ro *rootOptions) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "put <key> <value> [<value> ...]",
		Short: "Store values under a key and print the values already present",
		Long: `put stores the values under the key on the responsible nodes of the overlay.
With a persistent directory in --config the values survive across runs.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return ro.withOverlay(cmd.Context(), func(o *overlay) error {
				key, err := types.ParseID(args[0], o.idSize())
				if err != nil {
					return fmt.Errorf("key %q: %w", args[0], err)
				}
				req := []dht.PutRequest[string]{{Key: key, Values: args[1:]}}
				opts := dht.PutOptions{TTL: ttl, Secret: ro.hashedSecret()}
				r := o.entry().PutWith(cmd.Context(), req, opts)[0]

				fmt.Fprintf(out, "key: %s\n", key)
				if r.Err != nil {
					return r.Err
				}
				if len(r.Value) == 0 {
					fmt.Fprintln(out, "no previous values")
					return nil
				}
				writeValues(out, r.Value, time.Now())
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "time to live, 0 uses the configured default")
	return cmd
}
