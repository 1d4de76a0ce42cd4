// Package config loads the pipeline configuration into immutable snapshots
// and republishes them when the file changes.
package config

import (
	"image/color"
	"sync/atomic"
	"time"
)

// Color is a channel triple in the order the configuration file stores it
// (blue, green, red).
type Color [3]uint8

// RGBA converts the triple for drawing.
func (c Color) RGBA() color.RGBA {
	return color.RGBA{R: c[2], G: c[1], B: c[0], A: 255}
}

// Detection holds face_detection.* settings.
type Detection struct {
	ConfidenceThreshold float64
	MaxImagesPerFolder  int
	SaveFolder          string
	UnknownFolder       string
	ModelPath           string
	ServiceScript       string
	CleanupInterval     time.Duration
}

// Recognition holds face_recognition.* settings.
type Recognition struct {
	SimilarityThreshold float64
	DatabasePath        string
	ModelPath           string
	ServiceScript       string
}

// Camera holds camera.* settings.
type Camera struct {
	DeviceID int
	Width    int
	Height   int
	FPS      int
}

// Display holds display.* settings.
type Display struct {
	WindowName      string
	ShowConfidence  bool
	ShowBoundingBox bool
	FontScale       float64
	FontThickness   int
	BoxThickness    int
}

// Colors holds colors.* settings.
type Colors struct {
	KnownBox       Color
	UnknownBox     Color
	TextBackground Color
	Text           Color
}

// Server holds server.* settings.
type Server struct {
	Addr string
}

// Snapshot is one immutable view of the configuration. A reload builds a new
// Snapshot; existing ones are never modified.
type Snapshot struct {
	Path        string
	LoadedAt    time.Time
	Detection   Detection
	Recognition Recognition
	Camera      Camera
	Display     Display
	Colors      Colors
	Server      Server
}

// Default returns the snapshot used when no key is set.
func Default() *Snapshot {
	return FromSource(NewSource(nil))
}

// FromSource resolves every recognized key against src.
func FromSource(src *Source) *Snapshot {
	return &Snapshot{
		LoadedAt: time.Now(),
		Detection: Detection{
			ConfidenceThreshold: src.Float("face_detection.confidence_threshold", 0.6),
			MaxImagesPerFolder:  src.Int("face_detection.max_images_per_folder", 10),
			SaveFolder:          src.String("face_detection.save_folder", "Face_imagers"),
			UnknownFolder:       src.String("face_detection.unknown_folder", "unknown_faces"),
			ModelPath:           src.String("face_detection.model_path", "yolov11m-face.pt"),
			ServiceScript:       src.String("face_detection.service_script", "scripts/detector_service.py"),
			CleanupInterval:     time.Duration(src.Int("face_detection.cleanup_interval_seconds", 10)) * time.Second,
		},
		Recognition: Recognition{
			SimilarityThreshold: src.Float("face_recognition.similarity_threshold", 0.40),
			DatabasePath:        src.String("face_recognition.json_database_path", "face_embeddings.json"),
			ModelPath:           src.String("face_recognition.insightface_model_path", "insightface_models/models/buffalo_l.zip"),
			ServiceScript:       src.String("face_recognition.service_script", "scripts/embedder_service.py"),
		},
		Camera: Camera{
			DeviceID: src.Int("camera.device_id", 0),
			Width:    src.Int("camera.resolution.width", 640),
			Height:   src.Int("camera.resolution.height", 480),
			FPS:      src.Int("camera.fps", 30),
		},
		Display: Display{
			WindowName:      src.String("display.window_name", "Face Recognition"),
			ShowConfidence:  src.Bool("display.show_confidence", true),
			ShowBoundingBox: src.Bool("display.show_bounding_box", true),
			FontScale:       src.Float("display.font_scale", 0.6),
			FontThickness:   src.Int("display.font_thickness", 2),
			BoxThickness:    src.Int("display.box_thickness", 2),
		},
		Colors: Colors{
			KnownBox:       src.Color("colors.known_face_box", Color{0, 255, 0}),
			UnknownBox:     src.Color("colors.unknown_face_box", Color{0, 0, 255}),
			TextBackground: src.Color("colors.text_background", Color{0, 0, 0}),
			Text:           src.Color("colors.text_color", Color{255, 255, 255}),
		},
		Server: Server{
			Addr: src.String("server.addr", ":8080"),
		},
	}
}

// Load reads path and builds a snapshot from it.
func Load(path string) (*Snapshot, error) {
	src, err := ReadSource(path)
	if err != nil {
		return nil, err
	}
	s := FromSource(src)
	s.Path = path
	return s, nil
}

// RestartRequired lists keys whose new value only takes effect after a restart.
func RestartRequired(old, next *Snapshot) []string {
	var keys []string
	check := func(key string, changed bool) {
		if changed {
			keys = append(keys, key)
		}
	}

	check("camera", old.Camera != next.Camera)
	check("face_detection.save_folder", old.Detection.SaveFolder != next.Detection.SaveFolder)
	check("face_detection.unknown_folder", old.Detection.UnknownFolder != next.Detection.UnknownFolder)
	check("face_detection.model_path", old.Detection.ModelPath != next.Detection.ModelPath)
	check("face_detection.service_script", old.Detection.ServiceScript != next.Detection.ServiceScript)
	check("face_detection.cleanup_interval_seconds", old.Detection.CleanupInterval != next.Detection.CleanupInterval)
	check("face_recognition.json_database_path", old.Recognition.DatabasePath != next.Recognition.DatabasePath)
	check("face_recognition.insightface_model_path", old.Recognition.ModelPath != next.Recognition.ModelPath)
	check("face_recognition.service_script", old.Recognition.ServiceScript != next.Recognition.ServiceScript)
	check("server.addr", old.Server != next.Server)

	return keys
}

// Holder publishes the current snapshot to every stage. Readers load it once
// per unit of work and see either the old or the new snapshot in full.
type Holder struct {
	current atomic.Pointer[Snapshot]
}

// NewHolder creates a holder publishing s.
func NewHolder(s *Snapshot) *Holder {
	h := &Holder{}
	h.current.Store(s)
	return h
}

// Load returns the current snapshot.
func (h *Holder) Load() *Snapshot {
	return h.current.Load()
}

// Store replaces the current snapshot.
func (h *Holder) Store(s *Snapshot) {
	h.current.Store(s)
}
