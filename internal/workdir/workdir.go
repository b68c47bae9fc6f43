// Package workdir manages the .loom working directory where the engine
// keeps its state between invocations: the graph database and one JSON
// snapshot per TaskSet instance.
package workdir

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"loom/pkg/taskset"
)

// DefaultBasePath is the default root directory for instance snapshots.
const DefaultBasePath = ".loom/instances"

// SnapshotPath returns the snapshot file for an instance.
func SnapshotPath(basePath, instanceID string) string {
	return filepath.Join(basePath, instanceID+".json")
}

// SaveInstance writes an instance snapshot, creating the directory on
// first use.
func SaveInstance(basePath string, in *taskset.Instance) error {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	raw, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal instance %s: %w", in.ID, err)
	}
	if err := os.WriteFile(SnapshotPath(basePath, in.ID), raw, 0644); err != nil {
		return fmt.Errorf("write instance %s: %w", in.ID, err)
	}
	return nil
}

// LoadInstance reads one snapshot. Returns nil, nil when none exists.
func LoadInstance(basePath, instanceID string) (*taskset.Instance, error) {
	data, err := os.ReadFile(SnapshotPath(basePath, instanceID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read instance %s: %w", instanceID, err)
	}
	var in taskset.Instance
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("parse instance %s: %w", instanceID, err)
	}
	return &in, nil
}

// LoadAll reads every snapshot under basePath. A missing directory is an
// empty result, not an error.
func LoadAll(basePath string) ([]*taskset.Instance, error) {
	entries, err := os.ReadDir(basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	var out []*taskset.Instance
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		in, err := LoadInstance(basePath, strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			return nil, err
		}
		if in != nil {
			out = append(out, in)
		}
	}
	return out, nil
}

// RemoveInstance deletes a snapshot. Removing an absent one is not an
// error.
func RemoveInstance(basePath, instanceID string) error {
	err := os.Remove(SnapshotPath(basePath, instanceID))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
