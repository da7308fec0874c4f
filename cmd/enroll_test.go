package cmd

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
)

func TestCollectPortraits(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"S1.jpg", "S2.PNG", "notes.txt", ".jpg", "S3.webp"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "S4.jpg"), 0o755); err != nil {
		t.Fatal(err)
	}

	jobs, err := collectPortraits(dir)
	if err != nil {
		t.Fatalf("collectPortraits() error = %v", err)
	}

	var ids []string
	for _, j := range jobs {
		ids = append(ids, j.personID)
		if filepath.Dir(j.path) != dir {
			t.Errorf("job %s path = %q, want inside %q", j.personID, j.path, dir)
		}
	}
	slices.Sort(ids)
	if want := []string{"S1", "S2", "S3"}; !slices.Equal(ids, want) {
		t.Errorf("person IDs = %v, want %v", ids, want)
	}
}

func TestCollectPortraitsMissingDir(t *testing.T) {
	if _, err := collectPortraits(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing directory")
	}
}
