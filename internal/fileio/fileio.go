// Package fileio implements the engine's FileIO capability on the local
// filesystem.
package fileio

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/weftworks/weft/internal/engine"
)

// Local resolves globs relative to a base directory when one is set,
// keeping workflow file access inside a sandbox root.
type Local struct {
	base string
}

func New(base string) *Local {
	return &Local{base: base}
}

func (l *Local) ReadGlob(pattern string) ([]engine.FileEntry, error) {
	matches, err := filepath.Glob(l.resolve(pattern))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	entries := make([]engine.FileEntry, 0, len(matches))
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		entries = append(entries, engine.FileEntry{Path: path, Data: data})
	}
	return entries, nil
}

func (l *Local) WriteFile(path string, data []byte, appendMode bool) error {
	resolved := l.resolve(path)
	if dir := filepath.Dir(resolved); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	flags := os.O_WRONLY | os.O_CREATE
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(resolved, flags, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(data)
	return err
}

func (l *Local) resolve(path string) string {
	if l.base == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(l.base, path)
}
