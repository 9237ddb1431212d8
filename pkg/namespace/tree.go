// Package namespace binds paths to file identities.
//
// The tree is the only place that knows about paths. Rename and delete
// rebind paths and bump the file's binding epoch; they never call into the
// lease or session components. A writer finds out that its file moved only
// when it tries to close and the epoch it saw at open no longer matches.
//
// Every file has exactly one path. When trash is enabled, deleting a path
// moves it under TrashDir instead of unbinding it; deleting a path that is
// already in the trash unbinds it for good.
package namespace

import (
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/marmos91/dittomds/internal/logger"
	"github.com/marmos91/dittomds/pkg/mds/block"
	mdserrors "github.com/marmos91/dittomds/pkg/mds/errors"
)

// TrashDir is the directory deleted files are moved to when trash is enabled.
const TrashDir = "/.Trash"

// Config controls the namespace.
type Config struct {
	// Trash moves deleted files under TrashDir instead of unbinding them.
	// Default: false
	Trash bool `mapstructure:"trash" yaml:"trash"`
}

type binding struct {
	path  string
	epoch uint64
}

// Entry is a snapshot of one binding.
type Entry struct {
	Path   string       `json:"path"`
	FileID block.FileID `json:"file_id"`
	Epoch  uint64       `json:"epoch"`
}

// Tree is an in-memory namespace. It is safe for concurrent use.
type Tree struct {
	cfg    Config
	nextID atomic.Uint64

	mu     sync.RWMutex
	byPath map[string]block.FileID
	byID   map[block.FileID]*binding
}

// New creates an empty tree.
func New(cfg Config) *Tree {
	t := &Tree{
		cfg:    cfg,
		byPath: make(map[string]block.FileID),
		byID:   make(map[block.FileID]*binding),
	}
	t.nextID.Store(1)
	return t
}

func clean(p string) (string, error) {
	if !strings.HasPrefix(p, "/") {
		return "", mdserrors.NewInvalidArgumentError(0, "path must be absolute: "+p)
	}
	p = path.Clean(p)
	if p == "/" {
		return "", mdserrors.NewInvalidArgumentError(0, "path must name a file")
	}
	return p, nil
}

// Create binds p to a new file identity.
func (t *Tree) Create(p string) (block.FileID, error) {
	p, err := clean(p)
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.byPath[p]; ok {
		return 0, mdserrors.NewAlreadyExistsError(p)
	}
	id := block.FileID(t.nextID.Add(1) - 1)
	t.byPath[p] = id
	t.byID[id] = &binding{path: p}

	logger.Debug("File created", logger.KeyPath, p, logger.KeyFileID, id)
	return id, nil
}

// Resolve returns the file bound to p.
func (t *Tree) Resolve(p string) (block.FileID, error) {
	p, err := clean(p)
	if err != nil {
		return 0, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	id, ok := t.byPath[p]
	if !ok {
		return 0, mdserrors.New(mdserrors.ErrNotFound, 0, "path %q not found", p)
	}
	return id, nil
}

// Path returns the path currently bound to id.
func (t *Tree) Path(id block.FileID) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	b, ok := t.byID[id]
	if !ok {
		return "", false
	}
	return b.path, true
}

// BindingEpoch returns the number of times id has been rebound. bound is
// false once id has no path.
func (t *Tree) BindingEpoch(id block.FileID) (uint64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	b, ok := t.byID[id]
	if !ok {
		return 0, false
	}
	return b.epoch, true
}

// Rename moves the file at src to dst. dst must not exist.
func (t *Tree) Rename(src, dst string) error {
	src, err := clean(src)
	if err != nil {
		return err
	}
	dst, err = clean(dst)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.renameLocked(src, dst)
}

func (t *Tree) renameLocked(src, dst string) error {
	id, ok := t.byPath[src]
	if !ok {
		return mdserrors.New(mdserrors.ErrNotFound, 0, "path %q not found", src)
	}
	if src == dst {
		return nil
	}
	if _, ok := t.byPath[dst]; ok {
		return mdserrors.NewAlreadyExistsError(dst)
	}

	delete(t.byPath, src)
	t.byPath[dst] = id
	b := t.byID[id]
	b.path = dst
	b.epoch++

	logger.Info("File renamed",
		logger.KeyOldPath, src,
		logger.KeyNewPath, dst,
		logger.KeyFileID, id,
		logger.KeyEpoch, b.epoch)
	return nil
}

// Delete removes p. With trash enabled the file is moved to the trash
// first; a second delete of the trashed path unbinds it.
func (t *Tree) Delete(p string) error {
	p, err := clean(p)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	id, ok := t.byPath[p]
	if !ok {
		return mdserrors.New(mdserrors.ErrNotFound, 0, "path %q not found", p)
	}

	if t.cfg.Trash && !InTrash(p) {
		dst := TrashDir + p
		for i := 1; ; i++ {
			if _, taken := t.byPath[dst]; !taken {
				break
			}
			dst = TrashDir + p + "." + strconv.Itoa(i)
		}
		return t.renameLocked(p, dst)
	}

	delete(t.byPath, p)
	delete(t.byID, id)
	logger.Info("File deleted", logger.KeyPath, p, logger.KeyFileID, id)
	return nil
}

// InTrash reports whether p lives under TrashDir.
func InTrash(p string) bool {
	return p == TrashDir || strings.HasPrefix(p, TrashDir+"/")
}

// List returns every binding ordered by path.
func (t *Tree) List() []Entry {
	t.mu.RLock()
	out := make([]Entry, 0, len(t.byPath))
	for p, id := range t.byPath {
		out = append(out, Entry{Path: p, FileID: id, Epoch: t.byID[id].epoch})
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
