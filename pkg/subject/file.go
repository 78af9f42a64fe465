package subject

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a list of subject snapshots from a YAML or JSON file
// (chosen by extension; anything without a .yaml/.yml suffix is treated
// as JSON) and stores them in the provider. The whole file is validated
// before anything is stored, so a bad entry never leaves the provider
// half-loaded. Returns the number of snapshots loaded.
//
// The run command wires this to subject.snapshots_path so the server has
// subject state to decide against; unknown subjects still fail
// snapshot-dependent checks closed.
func (p *StaticProvider) LoadFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading snapshots file: %w", err)
	}

	var snaps []*Snapshot
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &snaps)
	default:
		err = json.Unmarshal(data, &snaps)
	}
	if err != nil {
		return 0, fmt.Errorf("parsing snapshots file %s: %w", path, err)
	}

	for i, snap := range snaps {
		if snap == nil || snap.SubjectID == "" {
			return 0, fmt.Errorf("snapshot %d in %s has no subject_id", i, path)
		}
		if snap.Lifecycle != "" && !snap.Lifecycle.Valid() {
			return 0, fmt.Errorf("snapshot %d in %s: unknown lifecycle stage %q", i, path, snap.Lifecycle)
		}
		if snap.EngagementScore < 0 || snap.EngagementScore > 1 {
			return 0, fmt.Errorf("snapshot %d in %s: engagement score %.2f outside [0,1]", i, path, snap.EngagementScore)
		}
	}

	for _, snap := range snaps {
		p.Put(snap)
	}
	return len(snaps), nil
}
