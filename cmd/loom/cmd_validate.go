package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"loom/internal/catalog"
	"loom/pkg/taskset"
)

var validateFlags struct {
	parallel int
}

var validateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Validate task set definition files",
	Long: `Parses each YAML file, checks the definition structure and builds its
dependency graph, so unknown references and cycles surface before the
definition is ever registered.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().IntVar(&validateFlags.parallel, "parallel", 4, "Validation workers")
}

func runValidate(cmd *cobra.Command, args []string) error {
	defs := make([]*taskset.Definition, len(args))
	layers := make([]int, len(args))
	errs := make([]error, len(args))

	g, _ := errgroup.WithContext(cmd.Context())
	g.SetLimit(validateFlags.parallel)
	for i, path := range args {
		g.Go(func() error {
			def, err := catalog.LoadFile(path)
			if err != nil {
				errs[i] = err
				return nil
			}
			dg, err := taskset.BuildGraph(def)
			if err != nil {
				errs[i] = err
				return nil
			}
			defs[i] = def
			layers[i] = len(dg.Layers())
			return nil
		})
	}
	// Workers record per-file failures instead of returning them, so one
	// bad file never cancels the rest of the batch.
	_ = g.Wait()

	out := cmd.OutOrStdout()
	bad := 0
	for i, path := range args {
		if errs[i] != nil {
			bad++
			fmt.Fprintf(out, "FAIL %s\n     %v\n", path, errs[i])
			continue
		}
		def := defs[i]
		fmt.Fprintf(out, "OK   %s (%s v%d, %d tasks, %d layers)\n",
			path, def.ID, def.Version, len(def.Tasks), layers[i])
	}
	if bad > 0 {
		return fmt.Errorf("%d of %d files invalid", bad, len(args))
	}
	return nil
}
