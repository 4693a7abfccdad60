package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/dep2p/go-simdht/internal/dht"
	"github.com/dep2p/go-simdht/internal/routing"
	"github.com/dep2p/go-simdht/pkg/types"
)

const getSimilarUsage = "get-similar [--status] [--hops <num-hops>] <key> <threshold> [<key> <threshold> ...]"

func newGetSimilarCmd(ro *rootOptions) *cobra.Command {
	var (
		status bool
		hops   int
	)
	cmd := &cobra.Command{
		Use:   getSimilarUsage,
		Short: "Find values stored under keys similar to each given key",
		Long: `get-similar looks up every <key> <threshold> pair and prints the content keys
whose similarity to the search key is at least the threshold, with their values.
Keys are hex IDs of exactly the ID length, any other string is hashed with SHA-1.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) < 2 || len(args)%2 != 0 {
				fmt.Fprintf(out, "usage: %s\n", getSimilarUsage)
				return nil
			}
			return ro.withOverlay(cmd.Context(), func(o *overlay) error {
				size := o.idSize()
				queries := make([]dht.SimilarQuery, 0, len(args)/2)
				for i := 0; i < len(args); i += 2 {
					key, err := types.ParseID(args[i], size)
					if err != nil {
						return fmt.Errorf("key %q: %w", args[i], err)
					}
					threshold, err := strconv.ParseFloat(args[i+1], 64)
					if err != nil {
						return fmt.Errorf("threshold %q: %w", args[i+1], err)
					}
					queries = append(queries, dht.SimilarQuery{Key: key, Threshold: threshold})
				}

				n := o.entry()
				extra := n.DHT().Config().ExtraHops
				if hops >= 0 {
					extra = hops
				}
				results := n.DHT().GetSimilarBatch(cmd.Context(), queries, extra)
				now := time.Now()
				for i, q := range queries {
					fmt.Fprintf(out, "search key: %s\n", q.Key)
					fmt.Fprintf(out, "threshold:  %s\n", args[2*i+1])
					fmt.Fprintln(out, "results: ")
					if err := results[i].Err; err != nil {
						if !errors.Is(err, routing.ErrRoutingFailed) {
							logger.Warn("相似性查询失败", "key", q.Key.ShortString(), "error", err)
						}
						fmt.Fprintf(out, "routing failed: %s\n", args[2*i])
						continue
					}
					writeSimilar(out, results[i].Value, now)
				}
				if status {
					writeStatus(out, n)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&status, "status", false, "print the routing table and last routes afterwards")
	cmd.Flags().IntVar(&hops, "hops", -1, "extra similarity hops, negative uses the configured value")
	return cmd
}
