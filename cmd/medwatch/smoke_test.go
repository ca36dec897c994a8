package main

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

var binaryPath string

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "medwatch-bin-*")
	if err != nil {
		panic("Failed to create temp dir: " + err.Error())
	}

	binaryPath = filepath.Join(dir, "medwatch_test")

	// Build the binary once
	cmd := exec.Command("go", "build", "-o", binaryPath, ".")
	output, err := cmd.CombinedOutput()
	if err != nil {
		panic("Failed to build test binary: " + err.Error() + "\n" + string(output))
	}

	exitCode := m.Run()

	os.RemoveAll(dir)
	os.Exit(exitCode)
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	cmd := exec.Command(binaryPath, args...)
	cmd.Env = append(os.Environ(), "MEDWATCH_LOG_LEVEL=error")
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("%v failed: %v\n%s", args, err, output)
	}
	return string(output)
}

func TestBinaryVersion(t *testing.T) {
	out := run(t, "version")
	if !strings.Contains(out, "medwatch version") {
		t.Fatalf("unexpected version output: %q", out)
	}
}

func TestBinaryHelp(t *testing.T) {
	out := run(t, "help")
	if !strings.Contains(out, "run-once") {
		t.Fatalf("help does not list run-once: %q", out)
	}
}

func TestBinaryUnknownCommand(t *testing.T) {
	cmd := exec.Command(binaryPath, "frobnicate")
	if err := cmd.Run(); err == nil {
		t.Fatal("expected non-zero exit for unknown command")
	}
}

func TestBinarySeedAndRunOnce(t *testing.T) {
	dataDir := t.TempDir()
	fixtures := filepath.Join(dataDir, "fixtures.yaml")
	content := `
users:
  - id: p1
    fullName: Alice
groups:
  - id: g1
    patient_uid: p1
    caregivers: [p1]
    tablets:
      - id: tab1
        medication: {name: Aspirin}
        schedule: {daysOfWeek: [Mo], times: ["9:00 AM"]}
        caregiverSettings: {notifyCaregivers: false, lateWindow: "30 minutes"}
`
	if err := os.WriteFile(fixtures, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	run(t, "seed", "-data", dataDir, "-f", fixtures)

	out := run(t, "run-once", "-data", dataDir)
	start := strings.Index(out, "{")
	if start < 0 {
		t.Fatalf("run-once printed no summary: %q", out)
	}

	var summary struct {
		Groups         int  `json:"groups"`
		TabletsSkipped int  `json:"tablets_skipped"`
		Aborted        bool `json:"aborted"`
	}
	if err := json.Unmarshal([]byte(out[start:]), &summary); err != nil {
		t.Fatalf("bad summary JSON: %v\n%s", err, out)
	}
	if summary.Aborted || summary.Groups != 1 || summary.TabletsSkipped != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestBinaryToken(t *testing.T) {
	out := run(t, "token", "-data", t.TempDir(), "-sub", "cg1")
	if strings.Count(strings.TrimSpace(lastLine(out)), ".") != 2 {
		t.Fatalf("token output is not a JWT: %q", out)
	}
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return lines[len(lines)-1]
}
