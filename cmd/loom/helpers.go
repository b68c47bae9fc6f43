package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"loom/adapters/store"
	"loom/internal/wiring"
	"loom/pkg/taskset"
)

var engineFlags struct {
	dbPath    string
	defsDir   string
	snapshots string
}

// addEngineFlags registers the store and catalog flags shared by every
// command that opens an engine.
func addEngineFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&engineFlags.dbPath, "db", store.DefaultDBPath, "Graph DB path (empty keeps the graph in memory)")
	f.StringVar(&engineFlags.defsDir, "defs-dir", "", "Directory of extra definition YAML files")
	f.StringVar(&engineFlags.snapshots, "snapshots", "", "Instance snapshot directory (default .loom/instances)")
}

func openEngine() (*wiring.Engine, error) {
	return wiring.Open(wiring.Options{
		DBPath:      engineFlags.dbPath,
		DefsDir:     engineFlags.defsDir,
		SnapshotDir: engineFlags.snapshots,
	})
}

// availableIDs lists the instance's available tasks in authored order.
func availableIDs(eng *wiring.Engine, in *taskset.Instance) []string {
	var avail []string
	def, err := eng.Manager.Definition(in.DefinitionID, in.Version)
	if err != nil {
		for id, t := range in.Tasks {
			if t.Status == taskset.TaskAvailable {
				avail = append(avail, id)
			}
		}
		sort.Strings(avail)
		return avail
	}
	for _, t := range def.Tasks {
		if ti := in.Task(t.ID); ti != nil && ti.Status == taskset.TaskAvailable {
			avail = append(avail, t.ID)
		}
	}
	return avail
}

// parseValues merges a JSON object string with key=value pairs. Pair
// values parse as JSON scalars when they can (8 is a number, true a
// bool), otherwise they stay strings.
func parseValues(jsonStr string, pairs []string) (map[string]any, error) {
	vals := map[string]any{}
	if jsonStr != "" {
		if err := json.Unmarshal([]byte(jsonStr), &vals); err != nil {
			return nil, fmt.Errorf("parse --values: %w", err)
		}
	}
	for _, p := range pairs {
		key, raw, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("bad value %q, want key=value", p)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		vals[key] = v
	}
	if len(vals) == 0 {
		return nil, nil
	}
	return vals, nil
}
