// store.go
//
// Read-only access to a directory of archive files. OpenStore memory-maps
// every archive, parses only its header region, and builds a map from entry
// name to the archives that contain it. Payloads are decoded on first use;
// decoded archives live in an adaptive replacement cache (ARC) and the
// number of simultaneously mapped files is bounded by an LRU whose eviction
// unmaps the file.
//
// The store is safe for concurrent readers.

package divapack

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"sync"

	"github.com/hashicorp/golang-lru/arc/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/exp/mmap"
)

const (
	defaultMaxOpen   = 64
	defaultCacheSize = 16
	defaultPattern   = "*.farc"
)

var ErrStoreClosed = errors.New("store closed")

// Location identifies one table row of one archive in a Store.
type Location struct {
	Path  string
	Entry TableEntry
}

// EntryInfo summarizes an entry resolved through a Store.
type EntryInfo struct {
	Path        string
	Name        string
	Size        int
	Flags       Flags
	Fingerprint uint64
}

// Store serves entries from every archive in a directory.
type Store struct {
	dir       string
	patterns  []string
	maxOpen   int
	cacheSize int
	codec     []Option
	cfg       *codecConfig

	// paths lists archive files in lexical order; lookups prefer earlier
	// paths when a name occurs more than once.
	paths   []string
	headers map[string]*Header
	index   map[string][]Location

	// mu serializes mapping and unmapping so that a handle is never closed
	// while Decode reads from it.
	mu     sync.Mutex
	closed bool

	// handles bounds open mappings. Evicting a handle unmaps its file.
	handles *lru.Cache[string, *mmap.ReaderAt]

	// cache holds fully decoded archives keyed by path.
	cache *arc.ARCCache[string, *Archive]
}

// StoreOption configures a Store during OpenStore.
type StoreOption func(*Store)

// WithMaxOpen bounds how many archive files stay mapped at once.
func WithMaxOpen(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.maxOpen = n
		}
	}
}

// WithCacheSize sets how many decoded archives the store keeps. Zero
// leaves the default.
func WithCacheSize(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.cacheSize = n
		}
	}
}

// WithPatterns replaces the file globs scanned in the directory. The
// default is "*.farc".
func WithPatterns(patterns ...string) StoreOption {
	return func(s *Store) {
		if len(patterns) > 0 {
			s.patterns = patterns
		}
	}
}

// WithCodecOptions passes options to every header parse and decode.
func WithCodecOptions(opts ...Option) StoreOption {
	return func(s *Store) { s.codec = append(s.codec, opts...) }
}

// OpenStore scans dir for archives and parses their tables.
//
// Files matching the patterns that are not archives of a supported variant
// are skipped; any other parse failure aborts the open.
func OpenStore(dir string, opts ...StoreOption) (*Store, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	s := &Store{
		dir:       absDir,
		patterns:  []string{defaultPattern},
		maxOpen:   defaultMaxOpen,
		cacheSize: defaultCacheSize,
		headers:   make(map[string]*Header),
		index:     make(map[string][]Location),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cfg = newCodecConfig(s.codec)
	if s.cache, err = arc.NewARC[string, *Archive](s.cacheSize); err != nil {
		return nil, err
	}
	s.handles, err = lru.NewWithEvict[string, *mmap.ReaderAt](s.maxOpen, func(_ string, r *mmap.ReaderAt) {
		_ = r.Close()
	})
	if err != nil {
		return nil, err
	}

	for _, pattern := range s.patterns {
		matches, err := filepath.Glob(filepath.Join(absDir, pattern))
		if err != nil {
			return nil, err
		}
		s.paths = append(s.paths, matches...)
	}
	slices.Sort(s.paths)
	s.paths = slices.Compact(s.paths)

	kept := s.paths[:0]
	for _, path := range s.paths {
		h, err := s.readHeader(path)
		if errors.Is(err, ErrUnsupportedVariant) {
			continue
		}
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
		}
		kept = append(kept, path)
		s.headers[path] = h
		for _, te := range h.Entries {
			s.index[te.Name] = append(s.index[te.Name], Location{Path: path, Entry: te})
		}
	}
	s.paths = kept
	return s, nil
}

func (s *Store) readHeader(path string) (*Header, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, err := s.handleLocked(path)
	if err != nil {
		return nil, err
	}
	return readHeader(r, int64(r.Len()), s.cfg)
}

// handleLocked returns the mapping for path, mapping it on a miss. The
// caller holds s.mu.
func (s *Store) handleLocked(path string) (*mmap.ReaderAt, error) {
	if s.closed {
		return nil, ErrStoreClosed
	}
	if r, ok := s.handles.Get(path); ok {
		return r, nil
	}
	r, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", filepath.Base(path), err)
	}
	s.handles.Add(path, r)
	return r, nil
}

// Dir returns the absolute directory the store was opened on.
func (s *Store) Dir() string { return s.dir }

// Paths returns the archive files in lookup order.
func (s *Store) Paths() []string { return slices.Clone(s.paths) }

// Header returns the parsed table of the archive at path.
func (s *Store) Header(path string) (*Header, bool) {
	h, ok := s.headers[path]
	return h, ok
}

// Names returns every entry name in the store, sorted.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.index))
	for name := range s.index {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Locate lists every archive row named name, in lookup order.
func (s *Store) Locate(name string) []Location {
	return slices.Clone(s.index[name])
}

// Archive decodes the archive at path, serving repeat calls from cache.
func (s *Store) Archive(path string) (*Archive, error) {
	if a, ok := s.cache.Get(path); ok {
		return a, nil
	}
	if _, ok := s.headers[path]; !ok {
		return nil, fmt.Errorf("%s: not an archive of this store", path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.cache.Get(path); ok {
		return a, nil
	}
	r, err := s.handleLocked(path)
	if err != nil {
		return nil, err
	}
	a, err := Decode(r, int64(r.Len()), s.codec...)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	s.cache.Add(path, a)
	return a, nil
}

// Get returns the content of the first entry named name.
func (s *Store) Get(name string) ([]byte, error) {
	e, _, err := s.entry(name)
	if err != nil {
		return nil, err
	}
	return e.Data, nil
}

// Stat resolves name like Get and describes the entry.
func (s *Store) Stat(name string) (EntryInfo, error) {
	e, loc, err := s.entry(name)
	if err != nil {
		return EntryInfo{}, err
	}
	return EntryInfo{
		Path:        loc.Path,
		Name:        e.Name,
		Size:        len(e.Data),
		Flags:       e.Flags,
		Fingerprint: e.Fingerprint(),
	}, nil
}

func (s *Store) entry(name string) (*Entry, Location, error) {
	locs := s.index[name]
	if len(locs) == 0 {
		return nil, Location{}, fmt.Errorf("%w: %q", ErrEntryNotFound, name)
	}
	loc := locs[0]
	a, err := s.Archive(loc.Path)
	if err != nil {
		return nil, loc, err
	}
	e, ok := a.Entry(name)
	if !ok {
		return nil, loc, fmt.Errorf("%w: %q in %s", ErrEntryNotFound, name, filepath.Base(loc.Path))
	}
	return e, loc, nil
}

// Close unmaps every archive. Cached decoded archives stay valid since
// Decode copies payloads out of the mapping.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.handles.Purge()
	return nil
}
