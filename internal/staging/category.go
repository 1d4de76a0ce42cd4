package staging

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ayusman/facewatch/internal/types"
)

// resizedSuffix marks the normalized copy stored next to a padded crop.
const resizedSuffix = "_resized"

// File is one encoded image to store under a face id.
type File struct {
	Name string
	Data []byte
}

// category is one staging directory. Only the Stager goroutine touches
// tracked and the directory contents.
type category struct {
	kind    types.Category
	dir     string
	tracked map[string][]string
	units   atomic.Int64
	evicted atomic.Int64
}

func newCategory(kind types.Category, dir string) (*category, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	c := &category{
		kind:    kind,
		dir:     dir,
		tracked: make(map[string][]string),
	}
	groups, err := c.list()
	if err != nil {
		return nil, err
	}
	c.units.Store(int64(len(groups)))
	return c, nil
}

// save writes files into the directory. Tracked writes are remembered so a
// later cleanup request can delete them.
func (c *category) save(id string, files []File, track bool) error {
	var written []string
	var errs []error
	for _, f := range files {
		path := filepath.Join(c.dir, f.Name)
		if err := os.WriteFile(path, f.Data, 0o644); err != nil {
			errs = append(errs, err)
			continue
		}
		written = append(written, path)
	}

	if len(written) > 0 {
		c.units.Add(1)
		if track {
			c.tracked[id] = append(c.tracked[id], written...)
		}
	}
	return errors.Join(errs...)
}

// remove deletes the tracked files of id. Untracked ids are ignored.
func (c *category) remove(id string) bool {
	paths, ok := c.tracked[id]
	if !ok {
		return false
	}
	delete(c.tracked, id)

	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			slog.Warn("staging: remove failed", "category", c.kind, "path", p, "error", err)
		}
	}
	c.units.Add(-1)
	return true
}

// group is all files belonging to one face id.
type group struct {
	key     string
	paths   []string
	created time.Time
}

// list returns the image groups in the directory, oldest first. Groups with
// equal creation times keep directory listing order.
func (c *category) list() ([]*group, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]*group)
	var groups []*group
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".jpg") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info
			continue
		}

		key := unitKey(e.Name())
		g, ok := byKey[key]
		if !ok {
			g = &group{key: key, created: info.ModTime()}
			byKey[key] = g
			groups = append(groups, g)
		}
		g.paths = append(g.paths, filepath.Join(c.dir, e.Name()))
		if info.ModTime().Before(g.created) {
			g.created = info.ModTime()
		}
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].created.Before(groups[j].created)
	})
	return groups, nil
}

// evict deletes the oldest groups until at most limit remain.
func (c *category) evict(limit int) int {
	if limit < 1 {
		limit = 1
	}

	groups, err := c.list()
	if err != nil {
		slog.Warn("staging: list failed", "category", c.kind, "dir", c.dir, "error", err)
		return 0
	}
	if len(groups) <= limit {
		c.units.Store(int64(len(groups)))
		return 0
	}

	removed := 0
	for _, g := range groups[:len(groups)-limit] {
		for _, p := range g.paths {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				slog.Warn("staging: evict failed", "category", c.kind, "path", p, "error", err)
			}
		}
		delete(c.tracked, g.key)
		removed++
	}

	c.units.Store(int64(limit))
	c.evicted.Add(int64(removed))
	slog.Debug("staging: evicted", "category", c.kind, "removed", removed, "limit", limit)
	return removed
}

// unitKey maps a file name to the face id group it belongs to:
// "face_1_17.jpg" and "face_1_17_resized.jpg" share "face_1_17".
func unitKey(name string) string {
	key := strings.TrimSuffix(name, filepath.Ext(name))
	return strings.TrimSuffix(key, resizedSuffix)
}
