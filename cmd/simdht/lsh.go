package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dep2p/go-simdht/internal/lsh"
	"github.com/dep2p/go-simdht/internal/similarity"
	"github.com/dep2p/go-simdht/pkg/types"
)

func newLSHCmd(ro *rootOptions) *cobra.Command {
	var (
		seed   int64
		vector bool
	)
	cmd := &cobra.Command{
		Use:   "lsh <content> [<content> ...]",
		Short: "Print the locality-sensitive content key of each argument",
		Long: `lsh maps each argument to an ID with random hyperplane projection and prints
its similarity to the previous argument's ID. With --vector every argument is a
comma separated list of numbers; when lsh.dimensions is 1 the dimension is taken
from the first vector.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ro.loadConfig()
			if err != nil {
				return err
			}
			cmp, err := similarity.ForID(cfg.DHT.SimilarityMetric)
			if err != nil {
				return err
			}
			lcfg := lsh.ConfigFromUnified(cfg)
			if cmd.Flags().Changed("seed") {
				lcfg.Seed = seed
			}

			var g *lsh.Generator
			generator := func(dims int) (*lsh.Generator, error) {
				if g != nil {
					return g, nil
				}
				if vector && lcfg.Dimensions == 1 {
					lcfg.Dimensions = dims
				}
				var err error
				g, err = lsh.New(lcfg)
				return g, err
			}

			out := cmd.OutOrStdout()
			var prev types.ID
			for i, a := range args {
				var id types.ID
				if vector {
					v, err := parseVector(a)
					if err != nil {
						return err
					}
					gen, err := generator(len(v))
					if err != nil {
						return err
					}
					if id, err = gen.HashFloats(v); err != nil {
						return err
					}
				} else {
					gen, err := generator(1)
					if err != nil {
						return err
					}
					if id, err = gen.HashBytes([]byte(a)); err != nil {
						return err
					}
				}
				fmt.Fprintf(out, "%s %s", id, a)
				if i > 0 {
					fmt.Fprintf(out, " similarity=%.3f", cmp.Similarity(prev, id))
				}
				fmt.Fprintln(out)
				prev = id
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 1, "projection seed, overrides lsh.seed")
	cmd.Flags().BoolVar(&vector, "vector", false, "arguments are comma separated float vectors")
	return cmd
}

func parseVector(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	v := make([]float64, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("vector %q: %w", s, err)
		}
		v[i] = f
	}
	return v, nil
}
