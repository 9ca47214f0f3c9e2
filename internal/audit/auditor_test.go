package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/snowbind/snowbind/internal/config"
	"github.com/snowbind/snowbind/internal/core"
)

func sampleEntry(runID, action string) core.AuditEntry {
	return core.AuditEntry{
		ID:      runID,
		Time:    time.Now().UTC(),
		Action:  action,
		Object:  "role SA_ROLE",
		State:   core.StateExecuting,
		Success: true,
	}
}

func TestFileTrailAppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trail.jsonl")

	trail, err := NewFileTrail(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := trail.Log(sampleEntry("run-1", "op.create")); err != nil {
		t.Fatal(err)
	}
	if err := trail.Log(sampleEntry("run-1", "run.converged")); err != nil {
		t.Fatal(err)
	}
	if err := trail.Close(); err != nil {
		t.Fatal(err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()

	var actions []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry core.AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("line is not a JSON entry: %v", err)
		}
		actions = append(actions, entry.Action)
	}
	if len(actions) != 2 || actions[0] != "op.create" || actions[1] != "run.converged" {
		t.Errorf("actions = %v", actions)
	}
}

func TestMemoryTrailIndexesByRun(t *testing.T) {
	trail := NewMemoryTrail()
	_ = trail.Log(sampleEntry("run-1", "op.create"))
	_ = trail.Log(sampleEntry("run-2", "op.grant"))
	_ = trail.Log(sampleEntry("run-1", "run.converged"))

	if got := len(trail.All()); got != 3 {
		t.Fatalf("All() = %d entries, want 3", got)
	}
	run1 := trail.ByRun("run-1")
	if len(run1) != 2 || run1[1].Action != "run.converged" {
		t.Errorf("ByRun(run-1) = %+v", run1)
	}
	if len(trail.ByRun("run-3")) != 0 {
		t.Error("unknown run should yield no entries")
	}
}

func TestNewFromConfig(t *testing.T) {
	auditor, err := NewFromConfig(config.AuditConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := auditor.(discard); !ok {
		t.Errorf("disabled auditing should discard, got %T", auditor)
	}

	auditor, err = NewFromConfig(config.AuditConfig{Enabled: true, Type: "memory"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := auditor.(*MemoryTrail); !ok {
		t.Errorf("memory type should build a memory trail, got %T", auditor)
	}

	if _, err := NewFromConfig(config.AuditConfig{Enabled: true, Type: "file"}); err == nil {
		t.Error("file trail without a path should fail")
	}
	if _, err := NewFromConfig(config.AuditConfig{Enabled: true, Type: "syslog"}); err == nil {
		t.Error("unknown trail type should fail")
	}
}
