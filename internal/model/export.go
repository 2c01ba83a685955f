package model

import (
	"fmt"
	"strings"
	"time"
)

// ExportVersion is the current model snapshot format version.
const ExportVersion = "1.0.0"

// ModelExport is a serializable rule snapshot used for backup and cold-start
// transfer. Round-tripping export→import reproduces an equivalent rule set.
type ModelExport struct {
	ExportedAt time.Time         `json:"exported_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	ModuleID   string            `json:"module_id"`
	Version    string            `json:"version"`
	Rules      []Rule            `json:"rules"`
}

// Validate checks the snapshot before import. Only snapshots sharing the
// current major version are accepted.
func (e *ModelExport) Validate() error {
	if e.ModuleID == "" {
		return fmt.Errorf("export module ID is required")
	}
	if e.Version == "" {
		return fmt.Errorf("export version is required")
	}
	if major(e.Version) != major(ExportVersion) {
		return fmt.Errorf("incompatible export version %q (current %q)", e.Version, ExportVersion)
	}
	for i := range e.Rules {
		if err := e.Rules[i].Validate(); err != nil {
			return fmt.Errorf("invalid rule %d in export: %w", i, err)
		}
	}
	return nil
}

func major(version string) string {
	if idx := strings.Index(version, "."); idx > 0 {
		return version[:idx]
	}
	return version
}
