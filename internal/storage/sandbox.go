// Package storage keeps local recordings: session directories holding a
// manifest and its assets under one base directory. Every path is resolved
// inside the base so manifest-supplied asset paths cannot escape it.
package storage

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrEscapesSandbox is returned for paths that resolve outside the sandbox.
var ErrEscapesSandbox = errors.New("path escapes sandbox")

// Sandbox is a directory of recordings.
type Sandbox struct {
	root string
}

// Recording describes one stored session directory.
type Recording struct {
	Name     string
	Size     int64
	Files    int
	Modified time.Time
}

// NewSandbox opens (creating if needed) the recordings directory at baseDir.
func NewSandbox(baseDir string) (*Sandbox, error) {
	root, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolving recordings directory: %w", err)
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("creating recordings directory: %w", err)
	}
	return &Sandbox{root: root}, nil
}

// BaseDir returns the absolute recordings directory.
func (s *Sandbox) BaseDir() string {
	return s.root
}

// ResolvePath maps a slash-separated relative path to an absolute path
// inside the sandbox.
func (s *Sandbox) ResolvePath(rel string) (string, error) {
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "/") {
		return "", fmt.Errorf("%w: %s (absolute paths not allowed)", ErrEscapesSandbox, rel)
	}
	p := filepath.Join(s.root, filepath.FromSlash(rel))
	if p != s.root && !strings.HasPrefix(p, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrEscapesSandbox, rel)
	}
	return p, nil
}

// ReadFile reads an asset from the sandbox.
func (s *Sandbox) ReadFile(rel string) ([]byte, error) {
	p, err := s.ResolvePath(rel)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rel, err)
	}
	return data, nil
}

// WriteFile stores data at rel via a temp file and rename, so a player
// reading the same recording never sees a partial asset.
func (s *Sandbox) WriteFile(rel string, data []byte) error {
	p, err := s.ResolvePath(rel)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(rel), err)
	}

	tmp := filepath.Join(dir, "."+filepath.Base(p)+"."+randomSuffix()+".tmp")
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("writing %s: %w", rel, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("writing %s: %w", rel, err)
	}
	return nil
}

// Recordings lists the directories that contain a file named marker
// (normally the session manifest), sorted by name.
func (s *Sandbox) Recordings(marker string) ([]Recording, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("listing recordings: %w", err)
	}

	var out []Recording
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		dir := filepath.Join(s.root, e.Name())
		if _, err := os.Stat(filepath.Join(dir, marker)); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("checking %s: %w", e.Name(), err)
		}
		rec, err := summarize(dir)
		if err != nil {
			return nil, err
		}
		rec.Name = e.Name()
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func summarize(dir string) (Recording, error) {
	var rec Recording
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rec.Files++
		rec.Size += info.Size()
		if info.ModTime().After(rec.Modified) {
			rec.Modified = info.ModTime()
		}
		return nil
	})
	if err != nil {
		return rec, fmt.Errorf("scanning %s: %w", filepath.Base(dir), err)
	}
	return rec, nil
}

func randomSuffix() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "tmp"
	}
	return hex.EncodeToString(b)
}
