// Package audit records the provisioning trail: one entry per platform
// mutation and one per finished run. The trail is for operators reconstructing
// what a run did to the platform, separate from the structured logs.
package audit

import (
	"fmt"

	"github.com/snowbind/snowbind/internal/config"
	"github.com/snowbind/snowbind/internal/core"
)

// NewFromConfig builds the trail backend selected by the tool configuration.
// Auditing is off by default; runs still log, they just leave no trail.
func NewFromConfig(cfg config.AuditConfig) (core.Auditor, error) {
	if !cfg.Enabled {
		return Discard(), nil
	}
	switch cfg.Type {
	case "file":
		if cfg.Path == "" {
			return nil, fmt.Errorf("audit.path is required for the file trail")
		}
		return NewFileTrail(cfg.Path)
	case "memory":
		return NewMemoryTrail(), nil
	case "", "noop":
		return Discard(), nil
	default:
		return nil, fmt.Errorf("unknown audit trail type %q", cfg.Type)
	}
}

type discard struct{}

// Discard returns an auditor that drops every entry.
func Discard() core.Auditor { return discard{} }

func (discard) Log(core.AuditEntry) error { return nil }
func (discard) Close() error              { return nil }
