package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/imgscrape/internal/model"
)

// createTestSummary creates a summary with sample data for testing.
func createTestSummary(state string) *Summary {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &Summary{
		Version: "v1.2.3",
		Run: &model.RunSummary{
			ID:               "0b7d5c1e-run",
			RootURL:          "https://example.com/",
			Mode:             "domain",
			State:            state,
			StartedAt:        start,
			FinishedAt:       start.Add(95 * time.Second),
			PagesFound:       14,
			PagesCrawled:     12,
			ImagesFound:      40,
			ImagesDownloaded: 30,
			ImagesSkipped:    8,
			ImagesFailed:     2,
			BytesDownloaded:  3 * 1000 * 1000,
			Duration:         95 * time.Second,
		},
		OutputDir: "downloads",
	}
}

func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes counters", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		n, err := NewSimpleWriter(&buf).Write(createTestSummary("completed"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != buf.Len() {
			t.Errorf("reported %d bytes, wrote %d", n, buf.Len())
		}

		output := buf.String()
		for _, want := range []string{"imgscrape completed: https://example.com/", "Images downloaded", "30", "3.0 MB", "1m35s"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q\n%s", want, output)
			}
		}
		if strings.Contains(output, "Checkpoint") {
			t.Error("completed run must not show a checkpoint")
		}
	})

	t.Run("shows checkpoint and error", func(t *testing.T) {
		t.Parallel()

		s := createTestSummary("failed")
		s.Run.Error = "root URL has no host"
		s.Checkpoint = "/data/checkpoints/abc.json"

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(s); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(buf.String(), "/data/checkpoints/abc.json") || !strings.Contains(buf.String(), "root URL has no host") {
			t.Errorf("missing checkpoint or error:\n%s", buf.String())
		}
	})
}

func TestJSONWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if _, err := NewJSONWriter(&buf, WithPrettyPrint()).Write(createTestSummary("completed")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got struct {
		Version         string           `json:"version"`
		Run             model.RunSummary `json:"run"`
		OutputDir       string           `json:"outputDir"`
		DurationSeconds float64          `json:"durationSeconds"`
		Complete        bool             `json:"complete"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if got.Version != "v1.2.3" || got.Run.ImagesDownloaded != 30 || got.OutputDir != "downloads" || got.DurationSeconds != 95 || !got.Complete {
		t.Errorf("unexpected decoded summary %+v", got)
	}
	if !strings.Contains(buf.String(), "\n  ") {
		t.Error("expected indented output")
	}
}

func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		state string
		want  []string
	}{
		{"completed run", "completed", []string{"# imgscrape Report", "✅ Completed", "```mermaid", "Downloaded", "[!IMPORTANT]"}},
		{"interrupted run", "interrupted", []string{"⚠️ Interrupted", "[!WARNING]", "resume"}},
		{"failed run", "failed", []string{"❌ Failed", "[!CAUTION]"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			n, err := NewMarkdownWriter(&buf).Write(createTestSummary(tt.state))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if n != buf.Len() {
				t.Errorf("reported %d bytes, wrote %d", n, buf.Len())
			}
			for _, want := range tt.want {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("expected output to contain %q\n%s", want, buf.String())
				}
			}
		})
	}

	t.Run("no chart without images", func(t *testing.T) {
		t.Parallel()

		s := createTestSummary("completed")
		s.Run.ImagesDownloaded, s.Run.ImagesSkipped, s.Run.ImagesFailed = 0, 0, 0

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(s); err != nil {
			t.Fatal(err)
		}
		if strings.Contains(buf.String(), "mermaid") {
			t.Error("expected no chart")
		}
		if !strings.Contains(buf.String(), "[!NOTE]") {
			t.Error("expected note about no downloads")
		}
	})
}

func TestNewWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if _, ok := NewWriter(FormatJSON, &buf).(*JSONWriter); !ok {
		t.Error("expected JSONWriter")
	}
	if _, ok := NewWriter(FormatMarkdown, &buf).(*MarkdownWriter); !ok {
		t.Error("expected MarkdownWriter")
	}
	if _, ok := NewWriter("unknown", &buf).(*SimpleWriter); !ok {
		t.Error("expected SimpleWriter fallback")
	}
}

type failingWriter struct{}

func (failingWriter) Write(*Summary) (int, error) { return 0, errors.New("boom") }

func TestMultiWriter(t *testing.T) {
	t.Parallel()

	var a, b bytes.Buffer
	m := NewMultiWriter(NewSimpleWriter(&a), NewJSONWriter(&b))
	n, err := m.Write(createTestSummary("completed"))
	if err != nil {
		t.Fatal(err)
	}
	if n != a.Len()+b.Len() || a.Len() == 0 || b.Len() == 0 {
		t.Errorf("unexpected byte counts %d, %d, %d", n, a.Len(), b.Len())
	}

	if _, err := NewMultiWriter(failingWriter{}, NewSimpleWriter(&a)).Write(createTestSummary("completed")); err == nil {
		t.Error("expected error from failing writer")
	}
}

func TestWriteRunsAndImages(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	WriteRuns(&buf, []*model.RunSummary{createTestSummary("completed").Run})
	if !strings.Contains(buf.String(), "0b7d5c1e-run") || !strings.Contains(buf.String(), "Root URL") {
		t.Errorf("unexpected runs table:\n%s", buf.String())
	}

	buf.Reset()
	WriteImages(&buf, []model.ImageRecord{
		{Path: "downloads/a.jpg", Bytes: 2048, Width: 640, Height: 480, CameraMake: "Canon", CameraModel: "EOS R5", URL: "https://example.com/a.jpg"},
		{Path: "downloads/b.svg", URL: "https://example.com/b.svg"},
	})
	out := buf.String()
	for _, want := range []string{"640x480", "Canon EOS R5", "2.0 kB", "downloads/b.svg"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected images table to contain %q\n%s", want, out)
		}
	}
}

func TestWriteImagesCSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := WriteImagesCSV(&buf, []model.ImageRecord{
		{RunID: "r1", URL: "https://example.com/a.jpg", Hash: "abc", Path: "downloads/a.jpg", Bytes: 10, Width: 1, Height: 2},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %q", buf.String())
	}
	if !strings.HasPrefix(lines[0], "run_id,url,page_url,hash,path,bytes") {
		t.Errorf("unexpected header %q", lines[0])
	}
	if !strings.Contains(lines[1], "https://example.com/a.jpg") || !strings.Contains(lines[1], "abc") {
		t.Errorf("unexpected row %q", lines[1])
	}
}

func TestWriteRunsCSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteRunsCSV(&buf, []*model.RunSummary{createTestSummary("completed").Run}); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(buf.String(), "id,root_url,mode,state") || !strings.Contains(buf.String(), "0b7d5c1e-run") {
		t.Errorf("unexpected CSV:\n%s", buf.String())
	}
}
