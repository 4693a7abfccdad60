package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dep2p/go-simdht/pkg/types"
)

func newGetCmd(ro *rootOptions) *cobra.Command {
	var status bool
	cmd := &cobra.Command{
		Use:   "get <key> [<key> ...]",
		Short: "Print the values stored under each key",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			return ro.withOverlay(cmd.Context(), func(o *overlay) error {
				size := o.idSize()
				keys := make([]types.ID, len(args))
				for i, a := range args {
					key, err := types.ParseID(a, size)
					if err != nil {
						return fmt.Errorf("key %q: %w", a, err)
					}
					keys[i] = key
				}

				n := o.entry()
				results := n.DHT().GetBatch(cmd.Context(), keys)
				now := time.Now()
				for i, key := range keys {
					fmt.Fprintf(out, "key: %s\n", key)
					switch r := results[i]; {
					case !r.OK():
						fmt.Fprintf(out, "routing failed: %s\n", args[i])
					case len(r.Value) == 0:
						fmt.Fprintln(out, "no values returned")
					default:
						writeValues(out, r.Value, now)
					}
				}
				if status {
					writeStatus(out, n)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&status, "status", false, "print the routing table and last routes afterwards")
	return cmd
}
