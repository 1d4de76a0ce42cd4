package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path, body string, mod time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestSource_Get(t *testing.T) {
	src, err := ParseSource([]byte(`
camera:
  resolution:
    width: 1280
  fps: 15.0
display:
  window_name: Lobby
  show_confidence: false
colors:
  known_face_box: [10, 20, 30]
  unknown_face_box: [1, 2]
  text_color: [0, 0, 300]
face_detection:
  confidence_threshold: 1
  max_images_per_folder: "many"
`))
	if err != nil {
		t.Fatalf("ParseSource() error = %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"nested int", src.Int("camera.resolution.width", 640), 1280},
		{"missing nested int", src.Int("camera.resolution.height", 480), 480},
		{"whole float as int", src.Int("camera.fps", 30), 15},
		{"int as float", src.Float("face_detection.confidence_threshold", 0.6), 1.0},
		{"mistyped int", src.Int("face_detection.max_images_per_folder", 10), 10},
		{"string", src.String("display.window_name", "x"), "Lobby"},
		{"bool", src.Bool("display.show_confidence", true), false},
		{"path through scalar", src.String("display.window_name.extra", "def"), "def"},
		{"color", src.Color("colors.known_face_box", Color{}), Color{10, 20, 30}},
		{"short color", src.Color("colors.unknown_face_box", Color{0, 0, 255}), Color{0, 0, 255}},
		{"out of range color", src.Color("colors.text_color", Color{255, 255, 255}), Color{255, 255, 255}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	s := Default()

	if s.Detection.ConfidenceThreshold != 0.6 {
		t.Errorf("confidence threshold = %v, want 0.6", s.Detection.ConfidenceThreshold)
	}
	if s.Detection.MaxImagesPerFolder != 10 {
		t.Errorf("max images = %d, want 10", s.Detection.MaxImagesPerFolder)
	}
	if s.Detection.SaveFolder != "Face_imagers" || s.Detection.UnknownFolder != "unknown_faces" {
		t.Errorf("folders = %q, %q", s.Detection.SaveFolder, s.Detection.UnknownFolder)
	}
	if s.Detection.CleanupInterval != 10*time.Second {
		t.Errorf("cleanup interval = %v, want 10s", s.Detection.CleanupInterval)
	}
	if s.Recognition.SimilarityThreshold != 0.40 {
		t.Errorf("similarity threshold = %v, want 0.40", s.Recognition.SimilarityThreshold)
	}
	if s.Camera != (Camera{DeviceID: 0, Width: 640, Height: 480, FPS: 30}) {
		t.Errorf("camera = %+v", s.Camera)
	}
	if !s.Display.ShowConfidence || !s.Display.ShowBoundingBox {
		t.Error("display flags should default to true")
	}
	if s.Colors.KnownBox != (Color{0, 255, 0}) || s.Colors.Text != (Color{255, 255, 255}) {
		t.Errorf("colors = %+v", s.Colors)
	}
	if s.Server.Addr != ":8080" {
		t.Errorf("server addr = %q", s.Server.Addr)
	}
}

func TestColor_RGBA(t *testing.T) {
	c := Color{0, 0, 255}.RGBA()
	if c.R != 255 || c.G != 0 || c.B != 0 || c.A != 255 {
		t.Errorf("RGBA() = %+v, want pure red", c)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	bad := filepath.Join(dir, "bad.yaml")
	writeConfig(t, bad, "face_detection: [unclosed", time.Now())
	if _, err := Load(bad); err == nil {
		t.Error("expected error for unparsable file")
	}

	empty := filepath.Join(dir, "empty.yaml")
	writeConfig(t, empty, "", time.Now())
	s, err := Load(empty)
	if err != nil {
		t.Fatalf("Load(empty) error = %v", err)
	}
	if s.Recognition.SimilarityThreshold != 0.40 {
		t.Error("empty file should resolve to defaults")
	}
}

func TestRestartRequired(t *testing.T) {
	old := Default()
	next := Default()
	next.Recognition.SimilarityThreshold = 0.9
	next.Detection.MaxImagesPerFolder = 3

	if keys := RestartRequired(old, next); len(keys) != 0 {
		t.Errorf("hot keys reported as restart-only: %v", keys)
	}

	next.Camera.FPS = 5
	next.Server.Addr = ":9090"
	keys := RestartRequired(old, next)
	if len(keys) != 2 || keys[0] != "camera" || keys[1] != "server.addr" {
		t.Errorf("RestartRequired() = %v, want [camera server.addr]", keys)
	}

	// The staging sweep ticker is created once at startup
	next = Default()
	next.Detection.CleanupInterval = time.Minute
	keys = RestartRequired(old, next)
	if len(keys) != 1 || keys[0] != "face_detection.cleanup_interval_seconds" {
		t.Errorf("RestartRequired() = %v, want [face_detection.cleanup_interval_seconds]", keys)
	}
}

func TestMonitor_ThresholdChangeAppliesWithoutRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	base := time.Now().Add(-time.Hour)
	writeConfig(t, path, "face_recognition:\n  similarity_threshold: 0.4\n", base)

	initial, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	holder := NewHolder(initial)
	m := NewMonitor(path, 10*time.Millisecond, holder)

	var reloads int
	m.OnReload(func(old, next *Snapshot) {
		reloads++
		if old.Recognition.SimilarityThreshold != 0.4 {
			t.Errorf("old threshold = %v", old.Recognition.SimilarityThreshold)
		}
	})

	if m.Check() {
		t.Fatal("unchanged file triggered a reload")
	}

	writeConfig(t, path, "face_recognition:\n  similarity_threshold: 0.75\n", base.Add(time.Minute))
	if !m.Check() {
		t.Fatal("change not detected")
	}

	if got := holder.Load().Recognition.SimilarityThreshold; got != 0.75 {
		t.Errorf("threshold after reload = %v, want 0.75", got)
	}
	if reloads != 1 {
		t.Errorf("OnReload called %d times, want 1", reloads)
	}
}

func TestMonitor_FailedReloadKeepsSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	base := time.Now().Add(-time.Hour)
	writeConfig(t, path, "face_detection:\n  confidence_threshold: 0.7\n", base)

	initial, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	holder := NewHolder(initial)
	m := NewMonitor(path, time.Second, holder)

	writeConfig(t, path, "face_detection: [broken", base.Add(time.Minute))
	m.Check()

	if holder.Load() != initial {
		t.Error("failed reload replaced the snapshot")
	}

	// The failed mtime is consumed; a fixed file with a later mtime reloads.
	if m.Check() {
		t.Error("failed reload retried without a new modification")
	}
	writeConfig(t, path, "face_detection:\n  confidence_threshold: 0.8\n", base.Add(2*time.Minute))
	m.Check()
	if got := holder.Load().Detection.ConfidenceThreshold; got != 0.8 {
		t.Errorf("threshold = %v, want 0.8", got)
	}
}

func TestDefault_ServiceScriptsShipped(t *testing.T) {
	s := Default()
	for _, script := range []string{s.Detection.ServiceScript, s.Recognition.ServiceScript} {
		path := filepath.Join("..", "..", script)
		if _, err := os.Stat(path); err != nil {
			t.Errorf("default service script %s missing: %v", script, err)
		}
	}
}
