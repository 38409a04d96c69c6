package ai

import (
	"image"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadNames(t *testing.T) {
	names, err := LoadNames(filepath.Join("..", "..", "..", "configs", "names.yaml"))
	if err != nil {
		t.Fatalf("LoadNames failed: %v", err)
	}
	if len(names) != 214 {
		t.Errorf("Expected 214 names, got %d", len(names))
	}
}

func TestLoadNames_Invalid(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
	}{
		{"no names", "nc: 0\n"},
		{"count mismatch", "nc: 3\nnames: [a, b]\n"},
		{"not yaml", "names: [a, b\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadNames(path); err == nil {
				t.Error("Expected an error")
			}
		})
	}

	if _, err := LoadNames(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Expected an error for a missing file")
	}
}

func TestDecodeOutput(t *testing.T) {
	// Two classes, three rows: one confident class-1 box, one low objectness,
	// one with high objectness but low class score.
	data := []float32{
		320, 320, 100, 50, 0.9, 0.1, 0.8,
		100, 100, 10, 10, 0.1, 0.9, 0.9,
		200, 200, 20, 20, 0.9, 0.2, 0.1,
	}
	// A 1280x640 frame letterboxed into 640x640: scale 0.5, 160px bars top and bottom
	lb := letterboxInfo{scale: 0.5, padX: 0, padY: 160}

	got := decodeOutput(data, 3, 7, lb, 0.25)
	if len(got) != 1 {
		t.Fatalf("Expected 1 candidate, got %d: %+v", len(got), got)
	}

	c := got[0]
	if c.classID != 1 {
		t.Errorf("classID = %d, expected 1", c.classID)
	}
	if c.score < 0.71 || c.score > 0.73 {
		t.Errorf("score = %f, expected 0.72", c.score)
	}
	want := image.Rect(540, 270, 740, 370)
	if c.box != want {
		t.Errorf("box = %v, expected %v", c.box, want)
	}
}
