package store

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-yaml"

	"github.com/agentstation/labsync/pkg/constants"
	"github.com/agentstation/labsync/pkg/errors"
)

// File is a Backend that keeps every key in one YAML document, so the file
// stays readable and editable by hand. Writes replace the file atomically.
type File struct {
	path string

	mu      sync.Mutex
	data    map[string]any
	written []byte
}

// NewFile opens (or prepares to create) the YAML document at path.
func NewFile(path string) (*File, error) {
	f := &File{path: path}
	if err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

// Path returns the document location.
func (f *File) Path() string { return f.path }

func (f *File) load() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, err := f.loadLocked()
	return err
}

// loadLocked reads the document and reports whether it differs from what
// this process last wrote.
func (f *File) loadLocked() (bool, error) {
	raw, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		f.data = make(map[string]any)
		return false, nil
	}
	if err != nil {
		return false, errors.WrapIO("read", f.path, err)
	}
	if f.written != nil && bytes.Equal(raw, f.written) {
		return false, nil
	}

	data := make(map[string]any)
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := yaml.Unmarshal(raw, &data); err != nil {
			return false, errors.WrapParse("yaml", f.path, err)
		}
	}
	f.data = data
	f.written = raw
	return true, nil
}

// Get implements Backend.
func (f *File) Get(key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return nil, false, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false, errors.WrapParse("json", key, err)
	}
	return raw, true, nil
}

// Set implements Backend.
func (f *File) Set(key string, value []byte) error {
	var v any
	if err := json.Unmarshal(value, &v); err != nil {
		return errors.WrapParse("json", key, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = v
	return f.flushLocked()
}

// Delete implements Backend.
func (f *File) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; !ok {
		return nil
	}
	delete(f.data, key)
	return f.flushLocked()
}

// Close implements Backend.
func (f *File) Close() error { return nil }

func (f *File) flushLocked() error {
	out, err := yaml.MarshalWithOptions(f.data, yaml.Indent(2))
	if err != nil {
		return errors.WrapParse("yaml", f.path, err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), constants.DirPermissions); err != nil {
		return errors.WrapIO("mkdir", filepath.Dir(f.path), err)
	}
	if err := writeFileAtomic(f.path, out, constants.SecureFilePermissions); err != nil {
		return errors.WrapIO("write", f.path, err)
	}
	f.written = out
	return nil
}

// Watch reloads the document when another process changes it and calls fn
// after each reload. It blocks until ctx is done. The parent directory is
// watched because atomic replacement swaps the file's inode.
func (f *File) Watch(ctx context.Context, fn func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.WrapIO("watch", f.path, err)
	}
	defer w.Close()

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, constants.DirPermissions); err != nil {
		return errors.WrapIO("mkdir", dir, err)
	}
	if err := w.Add(dir); err != nil {
		return errors.WrapIO("watch", dir, err)
	}

	target := filepath.Clean(f.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return errors.WrapIO("watch", f.path, err)
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			f.mu.Lock()
			changed, err := f.loadLocked()
			f.mu.Unlock()
			if err != nil || !changed {
				continue
			}
			if fn != nil {
				fn()
			}
		}
	}
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
