package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/imagerecovery/internal/store"
)

func TestSelectRunsForDeletion_ByAge(t *testing.T) {
	now := time.Now()
	infos := []store.RecordInfo{
		{RunID: "run1", Timestamp: now.AddDate(0, 0, -10)}, // 10 days old
		{RunID: "run2", Timestamp: now.AddDate(0, 0, -5)},  // 5 days old
		{RunID: "run3", Timestamp: now.AddDate(0, 0, -1)},  // 1 day old
		{RunID: "run4", Timestamp: now.AddDate(0, 0, -30)}, // 30 days old
	}

	toDelete := selectRunsForDeletion(infos, 0, 7, now)

	if len(toDelete) != 2 {
		t.Fatalf("Expected 2 runs to delete, got %d", len(toDelete))
	}
	if !containsRun(toDelete, "run1") || !containsRun(toDelete, "run4") {
		t.Error("Expected run1 and run4 to be selected for deletion")
	}
}

func TestSelectRunsForDeletion_ByCount(t *testing.T) {
	now := time.Now()
	infos := []store.RecordInfo{
		{RunID: "run1", Timestamp: now.AddDate(0, 0, -10)},
		{RunID: "run2", Timestamp: now.AddDate(0, 0, -5)},
		{RunID: "run3", Timestamp: now.AddDate(0, 0, -1)},
		{RunID: "run4", Timestamp: now.AddDate(0, 0, -30)},
	}

	toDelete := selectRunsForDeletion(infos, 2, 0, now)

	if len(toDelete) != 2 {
		t.Fatalf("Expected 2 runs to delete, got %d", len(toDelete))
	}
	if !containsRun(toDelete, "run4") || !containsRun(toDelete, "run1") {
		t.Error("Expected run4 and run1 to be selected for deletion (oldest)")
	}
}

func TestSelectRunsForDeletion_Combined(t *testing.T) {
	now := time.Now()
	infos := []store.RecordInfo{
		{RunID: "run1", Timestamp: now.AddDate(0, 0, -10)},
		{RunID: "run2", Timestamp: now.AddDate(0, 0, -5)},
		{RunID: "run3", Timestamp: now.AddDate(0, 0, -1)},
		{RunID: "run4", Timestamp: now.AddDate(0, 0, -30)},
		{RunID: "run5", Timestamp: now.AddDate(0, 0, -2)},
	}

	// Age selects run4 and run1; keeping 2 adds run2 without duplicates
	toDelete := selectRunsForDeletion(infos, 2, 7, now)

	if len(toDelete) != 3 {
		t.Fatalf("Expected 3 runs to delete, got %d", len(toDelete))
	}
	for _, id := range []string{"run1", "run2", "run4"} {
		if !containsRun(toDelete, id) {
			t.Errorf("Expected %s to be selected", id)
		}
	}
}

func TestSelectRunsForDeletion_NothingToDo(t *testing.T) {
	now := time.Now()
	infos := []store.RecordInfo{{RunID: "run1", Timestamp: now}}

	if got := selectRunsForDeletion(infos, 5, 7, now); len(got) != 0 {
		t.Errorf("Expected no deletions, got %d", len(got))
	}
}

func containsRun(infos []store.RecordInfo, id string) bool {
	for _, info := range infos {
		if info.RunID == id {
			return true
		}
	}
	return false
}

func TestGetDirSize(t *testing.T) {
	tmpDir := t.TempDir()

	content := []byte("Hello, World!")
	if err := os.WriteFile(filepath.Join(tmpDir, "test.txt"), content, 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	size, err := getDirSize(tmpDir)
	if err != nil {
		t.Fatalf("getDirSize failed: %v", err)
	}
	if size < int64(len(content)) {
		t.Errorf("Expected size >= %d, got %d", len(content), size)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		bytes    int64
		expected string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{1073741824, "1.0 GB"},
	}

	for _, tt := range tests {
		if result := formatBytes(tt.bytes); result != tt.expected {
			t.Errorf("formatBytes(%d) = %s, expected %s", tt.bytes, result, tt.expected)
		}
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID(abc) = %s", got)
	}
	if got := shortID("0123456789abcdef"); got != "0123456789ab..." {
		t.Errorf("shortID truncated to %s", got)
	}
}

// useRunStore points the runs commands at dir for the duration of the test.
func useRunStore(t *testing.T, dir, backend string) {
	t.Helper()
	origDir, origBackend := runsDataDir, runsStoreName
	runsDataDir, runsStoreName = dir, backend
	t.Cleanup(func() { runsDataDir, runsStoreName = origDir, origBackend })
}

func saveTestRun(t *testing.T, st store.Store, runID string, age time.Duration) {
	t.Helper()
	cfg := store.RunConfig{ProblemType: "recovering", Optimizer: "mayfly", Iters: 10, PopSize: 20, Passes: 1}
	record := store.NewRecord(runID, []float64{1, 2, 3}, 10, 100, 1, 40, false, cfg)
	record.Timestamp = record.Timestamp.Add(-age)
	if err := st.SaveRecord(runID, record); err != nil {
		t.Fatalf("Failed to save record: %v", err)
	}
}

func TestRunsListCommand_NoRuns(t *testing.T) {
	useRunStore(t, t.TempDir(), store.BackendFS)

	var buf bytes.Buffer
	listRunsCmd.SetOut(&buf)
	defer listRunsCmd.SetOut(nil)

	if err := runListRuns(listRunsCmd, nil); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !strings.Contains(buf.String(), "No runs found.") {
		t.Errorf("Unexpected output: %q", buf.String())
	}
}

func TestRunsListCommand_WithRuns(t *testing.T) {
	for _, backend := range []string{store.BackendFS, store.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			tmpDir := t.TempDir()
			st, err := store.Open(backend, tmpDir)
			if err != nil {
				t.Fatalf("Failed to open store: %v", err)
			}
			saveTestRun(t, st, "test-run-id", 0)
			st.Close()

			useRunStore(t, tmpDir, backend)

			var buf bytes.Buffer
			listRunsCmd.SetOut(&buf)
			defer listRunsCmd.SetOut(nil)

			if err := runListRuns(listRunsCmd, nil); err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			out := buf.String()
			if !strings.Contains(out, "test-run-id") || !strings.Contains(out, "Total runs: 1") {
				t.Errorf("Unexpected output: %q", out)
			}
		})
	}
}

func TestRunsShowCommand(t *testing.T) {
	tmpDir := t.TempDir()
	st, _ := store.NewFSStore(tmpDir)
	saveTestRun(t, st, "shown", 0)
	st.AppendTrace("shown", store.TraceEntry{Pass: 1, PassLoss: 10, BestLoss: 10})

	useRunStore(t, tmpDir, store.BackendFS)
	origFormat, origTrace := outputFormat, showTrace
	defer func() { outputFormat, showTrace = origFormat, origTrace }()

	var buf bytes.Buffer
	showRunCmd.SetOut(&buf)
	defer showRunCmd.SetOut(nil)

	outputFormat, showTrace = formatJSON, true
	if err := runShowRun(showRunCmd, []string{"shown"}); err != nil {
		t.Fatalf("show failed: %v", err)
	}

	var view struct {
		RunID string             `json:"runId"`
		Loss  float64            `json:"loss"`
		Trace []store.TraceEntry `json:"trace"`
	}
	if err := json.Unmarshal(buf.Bytes(), &view); err != nil {
		t.Fatalf("Output is not JSON: %v\n%s", err, buf.String())
	}
	if view.RunID != "shown" || view.Loss != 10 || len(view.Trace) != 1 {
		t.Errorf("Unexpected view: %+v", view)
	}

	buf.Reset()
	outputFormat, showTrace = formatYAML, false
	if err := runShowRun(showRunCmd, []string{"shown"}); err != nil {
		t.Fatalf("show failed: %v", err)
	}
	if !strings.Contains(buf.String(), "runId: shown") || strings.Contains(buf.String(), "trace:") {
		t.Errorf("Unexpected YAML: %s", buf.String())
	}

	if err := runShowRun(showRunCmd, []string{"missing"}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected not found error, got %v", err)
	}
}

func TestRunsExportCommand(t *testing.T) {
	tmpDir := t.TempDir()
	st, _ := store.NewFSStore(tmpDir)
	saveTestRun(t, st, "exported", 0)
	st.SaveArtifact("exported", store.ArtifactBest, []byte("png-bytes"))

	useRunStore(t, tmpDir, store.BackendFS)
	origOut := exportOut
	defer func() { exportOut = origOut }()

	exportOut = filepath.Join(t.TempDir(), "best.png")
	if err := runExportArtifact(nil, []string{"exported", store.ArtifactBest}); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	data, err := os.ReadFile(exportOut)
	if err != nil || string(data) != "png-bytes" {
		t.Errorf("Unexpected exported data %q (%v)", data, err)
	}

	if err := runExportArtifact(nil, []string{"exported", store.ArtifactDiff}); err == nil {
		t.Error("Expected error for missing artifact")
	}
}

func TestRunsCompareCommand(t *testing.T) {
	tmpDir := t.TempDir()
	st, _ := store.NewFSStore(tmpDir)
	saveTestRun(t, st, "first", time.Hour)

	better := store.NewRecord("second", []float64{1, 2, 3}, 4, 100, 1, 40, false,
		store.RunConfig{ProblemType: "recovering", Optimizer: "mayfly", Iters: 50, PopSize: 20, Passes: 1})
	st.SaveRecord("second", better)

	other := store.NewRecord("other-target", []float64{1}, 1, 100, 1, 40, false,
		store.RunConfig{AssetDir: "elsewhere", ProblemType: "recovering", Optimizer: "mayfly", Passes: 1})
	st.SaveRecord("other-target", other)

	useRunStore(t, tmpDir, store.BackendFS)

	var buf bytes.Buffer
	compareRunsCmd.SetOut(&buf)
	defer compareRunsCmd.SetOut(nil)

	if err := runCompareRuns(compareRunsCmd, []string{"first", "second"}); err != nil {
		t.Fatalf("compare failed: %v", err)
	}
	if !strings.Contains(buf.String(), "second is better by 6") {
		t.Errorf("Unexpected output: %q", buf.String())
	}

	err := runCompareRuns(compareRunsCmd, []string{"first", "other-target"})
	var cerr *store.CompatibilityError
	if !errors.As(err, &cerr) {
		t.Fatalf("Expected CompatibilityError, got %v", err)
	}
	if cerr.Field != "AssetDir" {
		t.Errorf("Expected AssetDir mismatch, got %s", cerr.Field)
	}

	if err := runCompareRuns(compareRunsCmd, []string{"first", "missing"}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected not found error, got %v", err)
	}
}

func TestRunsDeleteCommand(t *testing.T) {
	tmpDir := t.TempDir()
	st, _ := store.NewFSStore(tmpDir)
	saveTestRun(t, st, "a", 0)
	saveTestRun(t, st, "b", 0)

	useRunStore(t, tmpDir, store.BackendFS)

	if err := runDeleteRuns(nil, []string{"a", "b"}); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if infos, _ := st.ListRecords(); len(infos) != 0 {
		t.Errorf("Expected no runs left, got %d", len(infos))
	}
	if err := runDeleteRuns(nil, []string{"a"}); err == nil {
		t.Error("Expected error deleting a missing run")
	}
}

func TestRunsCleanCommand_NoFlags(t *testing.T) {
	useRunStore(t, t.TempDir(), store.BackendFS)

	keepLast = 0
	olderThanDays = 0

	if err := runCleanRuns(nil, nil); err == nil {
		t.Error("Expected error when no flags specified")
	}
}

func TestRunsCleanCommand_WithForce(t *testing.T) {
	tmpDir := t.TempDir()
	st, err := store.NewFSStore(tmpDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	saveTestRun(t, st, "old-run", 30*24*time.Hour)
	saveTestRun(t, st, "new-run", 0)

	useRunStore(t, tmpDir, store.BackendFS)
	defer func() { keepLast, olderThanDays, forceClean = 0, 0, false }()

	keepLast = 0
	olderThanDays = 7
	forceClean = true

	if err := runCleanRuns(nil, nil); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if _, err := st.LoadRecord("old-run"); err == nil {
		t.Error("Expected old run to be deleted")
	}
	if _, err := st.LoadRecord("new-run"); err != nil {
		t.Errorf("Expected new run to survive, got %v", err)
	}
}
