package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/imgscrape/internal/database"
	"github.com/nao1215/imgscrape/internal/model"
)

func seedHistory(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	db, err := database.Open(dir, database.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	ctx := context.Background()
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	runs := []*model.RunSummary{
		{ID: "run-1", RootURL: "https://a.example/", Mode: "domain", State: "completed", StartedAt: start, ImagesDownloaded: 1},
		{ID: "run-2", RootURL: "https://b.example/", Mode: "single", State: "interrupted", StartedAt: start.Add(time.Hour)},
	}
	for _, r := range runs {
		if err := db.SaveRun(ctx, r); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.RecordImage(ctx, model.ImageRecord{
		RunID: "run-1", URL: "https://a.example/cat.jpg", PageURL: "https://a.example/",
		Hash: "abc", Path: "downloads/cat.jpg", Bytes: 1234, Width: 640, Height: 480,
		Format: "jpeg", CameraMake: "Canon", DownloadedAt: start,
	}); err != nil {
		t.Fatal(err)
	}
	return dir
}

func runHistory(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	cmd := NewHistoryCmd()
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestHistoryCmd(t *testing.T) {
	t.Parallel()

	t.Run("empty data dir", func(t *testing.T) {
		t.Parallel()
		out, err := runHistory(t, "--data-dir", t.TempDir())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "No crawl history") {
			t.Errorf("unexpected output %q", out)
		}
	})

	t.Run("lists runs filtered by root URL", func(t *testing.T) {
		t.Parallel()
		dir := seedHistory(t)
		out, err := runHistory(t, "--data-dir", dir, "HTTPS://B.example")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(out, "run-2") || strings.Contains(out, "run-1") {
			t.Errorf("expected only run-2, got %q", out)
		}
	})

	t.Run("lists images of a run", func(t *testing.T) {
		t.Parallel()
		dir := seedHistory(t)
		out, err := runHistory(t, "--data-dir", dir, "--run", "run-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{"downloads/cat.jpg", "640x480", "Canon"} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in %q", want, out)
			}
		}
	})

	t.Run("exports the image manifest as CSV", func(t *testing.T) {
		t.Parallel()
		dir := seedHistory(t)
		csvPath := filepath.Join(t.TempDir(), "out", "images.csv")
		if _, err := runHistory(t, "--data-dir", dir, "--run", "run-1", "--csv", csvPath); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		data, err := os.ReadFile(csvPath)
		if err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		if len(lines) != 2 || !strings.HasPrefix(lines[0], "run_id,url") {
			t.Errorf("unexpected CSV %q", data)
		}
	})

	t.Run("unknown run", func(t *testing.T) {
		t.Parallel()
		dir := seedHistory(t)
		if _, err := runHistory(t, "--data-dir", dir, "--run", "nope"); err == nil {
			t.Error("expected error for unknown run")
		}
	})
}
