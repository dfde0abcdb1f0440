package main

import (
	"os"
	"path/filepath"
	"testing"
)

const minimalScenario = `
duration_seconds: 0.2
seed: 1
nodes:
  - name: object-a
    kind: object
    autospawn: true
    physics:
      variant: unicycle
      params:
        period: 0.1
`

func writeScenario(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write scenario fixture: %v", err)
	}
	//1.- Keep rotated log output inside the test's own temp dir rather than
	// the repository root.
	t.Setenv("SIMKERNEL_LOG_PATH", filepath.Join(t.TempDir(), "simkernel.log"))
	return path
}

func TestRunRequiresScenarioFlag(t *testing.T) {
	if code := run(nil); code != exitConfigError {
		t.Fatalf("expected exitConfigError without -scenario, got %d", code)
	}
}

func TestRunDumpConfigValidatesWithoutSimulating(t *testing.T) {
	path := writeScenario(t, minimalScenario)
	code := run([]string{"-scenario", path, "-dump-config"})
	if code != exitClean {
		t.Fatalf("expected exitClean for -dump-config, got %d", code)
	}
}

func TestRunRejectsMissingScenarioFile(t *testing.T) {
	code := run([]string{"-scenario", filepath.Join(t.TempDir(), "missing.yaml")})
	if code != exitConfigError {
		t.Fatalf("expected exitConfigError for a missing scenario file, got %d", code)
	}
}

func TestRunCompletesACleanScenario(t *testing.T) {
	path := writeScenario(t, minimalScenario)
	recordDir := filepath.Join(t.TempDir(), "records")
	code := run([]string{"-scenario", path, "-record-dir", recordDir})
	if code != exitClean {
		t.Fatalf("expected exitClean for a well-formed scenario, got %d", code)
	}
	if _, err := os.Stat(filepath.Join(recordDir, "manifest.json")); err != nil {
		t.Fatalf("expected a record-log manifest to be written: %v", err)
	}
}
