package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source is a parsed configuration tree answering dot-path lookups such as
// "camera.resolution.width". Missing or mistyped keys fall back to the
// caller's default.
type Source struct {
	root map[string]any
}

// NewSource wraps an already decoded tree.
func NewSource(root map[string]any) *Source {
	if root == nil {
		root = map[string]any{}
	}
	return &Source{root: root}
}

// ReadSource reads and parses a YAML configuration file.
func ReadSource(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseSource(data)
}

// ParseSource parses YAML bytes. An empty document yields an empty source.
func ParseSource(data []byte) (*Source, error) {
	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return NewSource(root), nil
}

// Get walks the dot-separated path and returns the value found there.
func (s *Source) Get(path string) (any, bool) {
	var node any = s.root
	for _, key := range strings.Split(path, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return node, node != nil
}

// String returns the string at path or def.
func (s *Source) String(path, def string) string {
	if v, ok := s.Get(path); ok {
		if str, ok := v.(string); ok {
			return str
		}
	}
	return def
}

// Float returns the number at path or def. Integers are widened.
func (s *Source) Float(path string, def float64) float64 {
	v, ok := s.Get(path)
	if !ok {
		return def
	}
	if f, ok := toFloat(v); ok {
		return f
	}
	return def
}

// Int returns the integer at path or def. Whole floats are accepted.
func (s *Source) Int(path string, def int) int {
	v, ok := s.Get(path)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		if n == float64(int(n)) {
			return int(n)
		}
	}
	return def
}

// Bool returns the boolean at path or def.
func (s *Source) Bool(path string, def bool) bool {
	if v, ok := s.Get(path); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Color returns a three-channel color at path or def. Each channel must be
// a number in [0, 255].
func (s *Source) Color(path string, def Color) Color {
	v, ok := s.Get(path)
	if !ok {
		return def
	}
	list, ok := v.([]any)
	if !ok || len(list) != 3 {
		return def
	}

	var c Color
	for i, item := range list {
		f, ok := toFloat(item)
		if !ok || f < 0 || f > 255 {
			return def
		}
		c[i] = uint8(f)
	}
	return c
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
