package config

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"github.com/snowbind/snowbind/internal/core"
	"github.com/snowbind/snowbind/internal/federation"
	"github.com/snowbind/snowbind/internal/validation"
)

// DefaultSchema is used when a target names no schemas of its own.
const DefaultSchema = "PUBLIC"

// LoadTarget reads, defaults and validates a TargetState artifact.
// Validation happens here, before anything touches the network.
func LoadTarget(path string) (core.TargetState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.TargetState{}, fmt.Errorf("reading target state file: %w", err)
	}
	return ParseTarget(data)
}

// ParseTarget parses a TargetState from YAML bytes.
func ParseTarget(data []byte) (core.TargetState, error) {
	var target core.TargetState
	if err := yaml.Unmarshal(data, &target); err != nil {
		return core.TargetState{}, core.Validationf("parsing target state: %v", err)
	}
	target = ApplyTargetDefaults(target)
	if err := validation.ValidateTarget(target); err != nil {
		return core.TargetState{}, err
	}
	return target, nil
}

// ApplyTargetDefaults fills the defaulted fields of a target state.
func ApplyTargetDefaults(target core.TargetState) core.TargetState {
	if len(target.SchemaNames) == 0 {
		target.SchemaNames = []string{DefaultSchema}
	}
	target.FederatedIdentity = federation.Normalize(target.FederatedIdentity)
	return target
}
