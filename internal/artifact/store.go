package artifact

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"foodonto/internal/logging"
)

// Store resolves slots to their contents.
type Store interface {
	// Exists reports whether the slot has been written.
	Exists(slot Slot) (bool, error)
	// Open returns a reader over the slot. Missing slots return an error
	// satisfying errors.Is(err, fs.ErrNotExist).
	Open(slot Slot) (io.ReadCloser, error)
	// Write replaces the slot with whatever fn writes. The previous contents
	// stay visible until fn returns without error.
	Write(slot Slot, fn func(w io.Writer) error) error
	// Location returns a human readable address of the slot.
	Location(slot Slot) string
}

// IsNotFound reports whether err means the slot does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

// FSStore maps slots onto two directory trees.
type FSStore struct {
	InRoot    string
	BuildRoot string
}

// NewFSStore creates a filesystem store. Paths are made absolute so error
// messages name real files.
func NewFSStore(inRoot, buildRoot string) (*FSStore, error) {
	in, err := filepath.Abs(inRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve input root: %w", err)
	}
	build, err := filepath.Abs(buildRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve build root: %w", err)
	}
	return &FSStore{InRoot: in, BuildRoot: build}, nil
}

// Location returns the absolute file path of slot.
func (s *FSStore) Location(slot Slot) string {
	root := s.BuildRoot
	if slot.Root == RootInput {
		root = s.InRoot
	}
	return filepath.Join(root, filepath.FromSlash(slot.Path))
}

func (s *FSStore) Exists(slot Slot) (bool, error) {
	info, err := os.Stat(s.Location(slot))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

func (s *FSStore) Open(slot Slot) (io.ReadCloser, error) {
	return os.Open(s.Location(slot))
}

// Write streams fn's output into a temp file beside the target, syncs it and
// renames it into place, so readers never observe a partial artifact.
func (s *FSStore) Write(slot Slot, fn func(w io.Writer) error) error {
	target := s.Location(slot)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", target, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	bw := bufio.NewWriter(tmp)
	if err := fn(bw); err != nil {
		cleanup()
		return fmt.Errorf("write %s: %w", target, err)
	}
	if err := bw.Flush(); err != nil {
		cleanup()
		return fmt.Errorf("flush %s: %w", target, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", target, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename into %s: %w", target, err)
	}

	logging.Get(logging.CategoryStore).Debug("wrote %s", target)
	return nil
}

// MemStore keeps slots in memory. The zero value is not usable; call NewMemStore.
type MemStore struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{files: make(map[string][]byte)}
}

func (m *MemStore) key(slot Slot) string {
	return slot.Root.String() + "/" + slot.Path
}

// Location returns a mem:// address for slot.
func (m *MemStore) Location(slot Slot) string {
	return "mem://" + m.key(slot)
}

func (m *MemStore) Exists(slot Slot) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[m.key(slot)]
	return ok, nil
}

func (m *MemStore) Open(slot Slot) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[m.key(slot)]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: m.Location(slot), Err: fs.ErrNotExist}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemStore) Write(slot Slot, fn func(w io.Writer) error) error {
	var buf bytes.Buffer
	if err := fn(&buf); err != nil {
		return fmt.Errorf("write %s: %w", m.Location(slot), err)
	}
	m.Put(slot, buf.Bytes())
	return nil
}

// Put stores raw bytes for slot.
func (m *MemStore) Put(slot Slot, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[m.key(slot)] = append([]byte(nil), data...)
}

// Bytes returns the raw contents of slot, or nil.
func (m *MemStore) Bytes(slot Slot) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.files[m.key(slot)]
}

// Delete removes slot.
func (m *MemStore) Delete(slot Slot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, m.key(slot))
}
