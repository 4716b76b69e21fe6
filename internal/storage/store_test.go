package storage

import (
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"
)

func TestStoreSaveLoad(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	series := &Series{Columns: []string{"DISPLACEMENT_X", "DISPLACEMENT_Y"}}
	series.Append(0.0, []float64{0, 0})
	series.Append(0.1, []float64{-0.01, -0.0383})

	runID, err := st.Save(RunMetadata{
		Project:    "truss",
		SolverType: "static",
		Steps:      1,
		Values:     map[string]float64{"max_displacement": 0.0383},
	}, series)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if !strings.HasPrefix(runID, "static_") {
		t.Errorf("expected run id prefixed with the solver type, got %q", runID)
	}

	meta, err := st.Load(runID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if meta.Project != "truss" {
		t.Errorf("expected project 'truss', got '%s'", meta.Project)
	}

	if meta.Values["max_displacement"] != 0.0383 {
		t.Errorf("expected max_displacement 0.0383, got %f", meta.Values["max_displacement"])
	}

	loaded, err := st.LoadSeries(runID)
	if err != nil {
		t.Fatalf("load series failed: %v", err)
	}

	if loaded.Len() != 2 {
		t.Errorf("expected 2 rows, got %d", loaded.Len())
	}

	uy, ok := loaded.Column("DISPLACEMENT_Y")
	if !ok || uy[1] != -0.0383 {
		t.Errorf("expected DISPLACEMENT_Y -0.0383 at the second row, got %v", uy)
	}
}

func TestStoreList(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, kind := range []string{"static", "FractionalStep", "laplacian"} {
		_, err := st.Save(RunMetadata{SolverType: kind, Timestamp: base.Add(time.Duration(i) * time.Hour)}, nil)
		if err != nil {
			t.Fatalf("save failed: %v", err)
		}
	}

	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}

	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	if runs[0].SolverType != "static" || runs[2].SolverType != "laplacian" {
		t.Errorf("expected runs ordered by timestamp, got %s..%s", runs[0].SolverType, runs[2].SolverType)
	}
}

func TestStoreListMissingDir(t *testing.T) {
	st := New(filepath.Join(t.TempDir(), "missing"))
	runs, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no runs, got %d", len(runs))
	}
}

func TestStoreFileStructure(t *testing.T) {
	tmpDir := t.TempDir()
	st := New(tmpDir)

	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	series := &Series{Columns: []string{"PRESSURE"}}
	series.Append(0.01, []float64{1})
	runID, err := st.Save(RunMetadata{SolverType: "FractionalStep"}, series)
	if err != nil {
		t.Fatalf("save failed: %v", err)
	}

	runDir := filepath.Join(tmpDir, runID)
	for _, name := range []string{"metadata.json", "history.csv"} {
		if _, err := os.Stat(filepath.Join(runDir, name)); os.IsNotExist(err) {
			t.Errorf("%s not created", name)
		}
	}

	if err := st.Remove(runID); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if _, err := os.Stat(runDir); !os.IsNotExist(err) {
		t.Error("run directory not removed")
	}
	if err := st.Remove("../x"); err == nil {
		t.Error("expected error for a path outside the store")
	}
}

func TestRelocate(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"1_ITR.post.bin", "2_ITR.post.bin", "model.post.bin"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0644); err != nil {
			t.Fatal(err)
		}
	}

	moved, err := Relocate(filepath.Join(dir, "*_ITR.post.bin"), SuffixFolder(".post.bin", "_results"))
	if err != nil {
		t.Fatalf("relocate failed: %v", err)
	}
	if len(moved) != 2 {
		t.Fatalf("expected 2 moved files, got %d", len(moved))
	}

	want := filepath.Join(dir, "2_ITR_results", "2_ITR.post.bin")
	if data, err := os.ReadFile(want); err != nil || string(data) != "2_ITR.post.bin" {
		t.Errorf("expected %s to hold the moved file: %v", want, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "model.post.bin")); err != nil {
		t.Error("non matching file was moved")
	}
}

func TestRelocateAcrossDevices(t *testing.T) {
	rename = func(oldpath, newpath string) error {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EXDEV}
	}
	defer func() { rename = os.Rename }()

	dir := t.TempDir()
	src := filepath.Join(dir, "1_ITR.post.bin")
	if err := os.WriteFile(src, []byte("results"), 0644); err != nil {
		t.Fatal(err)
	}

	moved, err := Relocate(filepath.Join(dir, "*_ITR.post.bin"), SuffixFolder(".post.bin", "_results"))
	if err != nil {
		t.Fatalf("relocate failed: %v", err)
	}
	if len(moved) != 1 {
		t.Fatalf("expected 1 moved file, got %d", len(moved))
	}
	if data, err := os.ReadFile(moved[0]); err != nil || string(data) != "results" {
		t.Errorf("expected %s to hold the copied file: %v", moved[0], err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source file was not removed after copying")
	}
}

func TestRelocateKeepsOtherRenameErrors(t *testing.T) {
	rename = func(oldpath, newpath string) error {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EACCES}
	}
	defer func() { rename = os.Rename }()

	dir := t.TempDir()
	src := filepath.Join(dir, "1_ITR.post.bin")
	if err := os.WriteFile(src, []byte("results"), 0644); err != nil {
		t.Fatal(err)
	}

	moved, err := Relocate(filepath.Join(dir, "*_ITR.post.bin"), SuffixFolder(".post.bin", "_results"))
	if err == nil {
		t.Fatal("expected the rename error")
	}
	if len(moved) != 0 {
		t.Errorf("expected nothing moved, got %v", moved)
	}
	if _, err := os.Stat(src); err != nil {
		t.Error("source file should stay in place")
	}
}

func TestCopyFileAndIterationName(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Structure.post.bin")
	if err := os.WriteFile(src, []byte("results"), 0644); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(dir, IterationName(3, ".post.bin"))
	if filepath.Base(dst) != "3_ITR.post.bin" {
		t.Errorf("unexpected iteration name %s", filepath.Base(dst))
	}
	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("copy failed: %v", err)
	}
	if data, _ := os.ReadFile(dst); string(data) != "results" {
		t.Errorf("unexpected copy content %q", data)
	}
}

func TestDeleteIfExists(t *testing.T) {
	dir := t.TempDir()
	cache := filepath.Join(dir, "__pycache__")
	if err := os.MkdirAll(filepath.Join(cache, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	csvPath := filepath.Join(dir, "response_combination.csv")
	if err := os.WriteFile(csvPath, nil, 0644); err != nil {
		t.Fatal(err)
	}

	if err := DeleteIfExists(cache, csvPath, filepath.Join(dir, "absent")); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	for _, p := range []string{cache, csvPath} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s still exists", p)
		}
	}
}
