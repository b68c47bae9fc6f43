// Package wiring assembles a working engine from its parts: a graph
// store, a task manager over it, definitions from the embedded catalog
// plus an optional user directory, and saved instance snapshots. The CLI
// and the MCP server both open an Engine and operate through it.
package wiring

import (
	"fmt"
	"io"
	"log/slog"

	"loom/adapters/store"
	"loom/internal/catalog"
	"loom/internal/logging"
	"loom/internal/workdir"
	"loom/pkg/taskset"
)

// Options configures Open. The zero value wires an in-memory store with
// the embedded sample definitions and the default snapshot directory.
type Options struct {
	DBPath      string // SQLite file; empty keeps the graph in memory
	DefsDir     string // extra definition YAML directory, optional
	SnapshotDir string // instance snapshot directory
	SkipSamples bool   // leave the embedded samples unregistered
	SkipRestore bool   // do not load saved snapshots
	Logger      *slog.Logger
	Sink        taskset.Sink
}

// Engine bundles everything one process operates on.
type Engine struct {
	Graph       store.Graph
	Manager     *taskset.Manager
	SnapshotDir string

	log    *slog.Logger
	closer io.Closer
}

// Open builds the engine: store, manager, definitions, snapshots.
// Snapshots whose definition is no longer registered are skipped with a
// warning rather than failing the whole startup.
func Open(o Options) (*Engine, error) {
	log := o.Logger
	if log == nil {
		log = logging.New("wiring")
	}

	var g store.Graph
	var closer io.Closer
	if o.DBPath != "" {
		s, err := store.Open(o.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		g, closer = s, s
	} else {
		g = store.NewMemStore()
	}

	mopts := []taskset.ManagerOption{taskset.WithLogger(log)}
	if o.Sink != nil {
		mopts = append(mopts, taskset.WithSink(o.Sink))
	}

	eng := &Engine{
		Graph:       g,
		Manager:     taskset.NewManager(g, mopts...),
		SnapshotDir: o.SnapshotDir,
		log:         log,
		closer:      closer,
	}
	if eng.SnapshotDir == "" {
		eng.SnapshotDir = workdir.DefaultBasePath
	}

	if err := eng.loadDefinitions(o); err != nil {
		eng.Close()
		return nil, err
	}
	if !o.SkipRestore {
		if err := eng.restoreSnapshots(); err != nil {
			eng.Close()
			return nil, err
		}
	}
	return eng, nil
}

func (e *Engine) loadDefinitions(o Options) error {
	if !o.SkipSamples {
		for _, name := range catalog.ListSamples() {
			def, err := catalog.LoadSample(name)
			if err != nil {
				return fmt.Errorf("load sample %s: %w", name, err)
			}
			if err := e.Manager.Register(def); err != nil {
				return fmt.Errorf("register sample %s: %w", name, err)
			}
		}
	}
	if o.DefsDir != "" {
		defs, err := catalog.LoadDir(o.DefsDir)
		if err != nil {
			return fmt.Errorf("load definitions from %s: %w", o.DefsDir, err)
		}
		for _, def := range defs {
			if err := e.Manager.Register(def); err != nil {
				return fmt.Errorf("register %s v%d: %w", def.ID, def.Version, err)
			}
		}
		e.log.Info("definitions loaded", "dir", o.DefsDir, "count", len(defs))
	}
	return nil
}

func (e *Engine) restoreSnapshots() error {
	saved, err := workdir.LoadAll(e.SnapshotDir)
	if err != nil {
		return fmt.Errorf("load snapshots: %w", err)
	}
	restored := 0
	for _, in := range saved {
		if err := e.Manager.RestoreInstance(in); err != nil {
			e.log.Warn("snapshot skipped",
				"instance", in.ID, "definition", in.DefinitionID, "error", err)
			continue
		}
		restored++
	}
	if restored > 0 {
		e.log.Info("instances restored", "count", restored, "dir", e.SnapshotDir)
	}
	return nil
}

// SaveSnapshot persists an instance under the snapshot directory.
func (e *Engine) SaveSnapshot(in *taskset.Instance) error {
	return workdir.SaveInstance(e.SnapshotDir, in)
}

// Close releases the underlying store when it holds external resources.
func (e *Engine) Close() error {
	if e.closer != nil {
		return e.closer.Close()
	}
	return nil
}
