package archivenest

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/spf13/afero"
)

// rangeCacheSize bounds the resolved-range memo; resolution re-derives the
// whole flattened tree, which is wasteful for repeated extractions.
const rangeCacheSize = 128

// Archive is the format-agnostic facade over a detected container. It owns
// the selected format reader and a lazily populated cache of embedded
// archives. A nil reader with a non-empty analysis error is a dead node: all
// operations fail deterministically with that error until the node is
// discarded.
type Archive struct {
	fs       afero.Fs
	log      *slog.Logger
	bindings []Binding
	inherit  bool

	src    *Source
	typ    ArchiveType
	reader Reader

	analysisErr string // sticky: gates every operation once set
	lastErr     string // most recent failure, for LastError parity

	mu         sync.Mutex // guards lazy children-cache fill
	children   map[string]*Archive
	childOrder []string
	childDone  bool

	ranges *lru.Cache[string, resolvedRange]
}

type resolvedRange struct {
	node *Archive
	r    Range
}

// Option configures an Archive at construction.
type Option func(*Archive)

// WithFS sets the filesystem used to open files and write extractions.
func WithFS(fs afero.Fs) Option {
	return func(a *Archive) { a.fs = fs }
}

// WithLogger sets the debug logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(a *Archive) { a.log = l }
}

// WithBindings replaces the reader table. When inheritToChildren is set,
// child archives created during recursion use the same table.
func WithBindings(bindings []Binding, inheritToChildren bool) Option {
	return func(a *Archive) {
		a.bindings = bindings
		a.inherit = inheritToChildren
	}
}

func newArchive(opts []Option) *Archive {
	a := &Archive{
		fs:       afero.NewOsFs(),
		log:      slog.New(slog.DiscardHandler),
		bindings: DefaultBindings(),
		children: map[string]*Archive{},
	}
	for _, o := range opts {
		o(a)
	}
	a.ranges, _ = lru.New[string, resolvedRange](rangeCacheSize)
	return a
}

// Open analyzes the file at path. On detection failure the returned Archive
// is still usable for inspection: its type is TypeNone and every operation
// reports the sticky analysis error.
func Open(path string, opts ...Option) (*Archive, error) {
	a := newArchive(opts)
	src, err := NewFileSource(a.fs, path)
	if err != nil {
		a.fail(err)
		a.analysisErr = err.Error()
		return a, err
	}
	a.src = src
	return a, a.analyze()
}

// FromBuffer analyzes an in-memory buffer. Error semantics match Open.
func FromBuffer(b []byte, opts ...Option) (*Archive, error) {
	a := newArchive(opts)
	a.src = NewBufferSource(a.fs, b)
	return a, a.analyze()
}

// analyze runs detection synchronously. The chosen reader takes over the
// source; on failure the node becomes dead.
func (a *Archive) analyze() error {
	typ, reader, err := detect(a.src, a.bindings, a.log)
	if err != nil {
		a.analysisErr = err.Error()
		a.fail(err)
		// the facade's own handle is useless without a reader
		_ = a.src.Close()
		return err
	}
	a.typ = typ
	a.reader = reader
	a.log.Debug("source analyzed", "type", typ.String(), "source", a.src.Label())
	return nil
}

// gate returns the sticky analysis error, if any.
func (a *Archive) gate() error {
	if a.analysisErr != "" {
		return fmt.Errorf("%s", a.analysisErr)
	}
	if a.reader == nil {
		return ErrNoReader
	}
	return nil
}

func (a *Archive) fail(err error) {
	if err != nil {
		a.lastErr = err.Error()
	}
}

// Type returns the detected format, TypeNone before successful analysis.
func (a *Archive) Type() ArchiveType { return a.typ }

// LastError returns the most recent failure message, "" when healthy.
func (a *Archive) LastError() string { return a.lastErr }

// AllowsRecursion reports whether the detected format can hold nested
// archives addressable by byte range.
func (a *Archive) AllowsRecursion() bool { return a.typ.AllowsRecursion() }

// Entries delegates verbatim to the active reader's listing, ranges included.
func (a *Archive) Entries() ([]Entry, error) {
	if err := a.gate(); err != nil {
		a.fail(err)
		return nil, err
	}
	entries, err := a.reader.Entries(true)
	a.fail(err)
	return entries, err
}

// Dump returns the reader's format-specific structural dump.
func (a *Archive) Dump() (any, error) {
	if err := a.gate(); err != nil {
		a.fail(err)
		return nil, err
	}
	d, err := a.reader.Dump()
	a.fail(err)
	return d, err
}

// FindSignature delegates to the active reader.
func (a *Archive) FindSignature() (int64, error) {
	if err := a.gate(); err != nil {
		a.fail(err)
		return 0, err
	}
	pos, err := a.reader.FindSignature()
	a.fail(err)
	return pos, err
}

// Summary describes an analyzed node; with full set it recurses into
// embedded archives.
type Summary struct {
	Type        string    `json:"type"`
	Reader      string    `json:"reader"`
	Source      string    `json:"source"`
	FileSize    int64     `json:"fileSize"`
	DataSize    int64     `json:"dataSize"`
	ActiveRange Range     `json:"activeRange"`
	Error       string    `json:"error,omitempty"`
	Children    []Summary `json:"children,omitempty"`
}

// Summary reports the node's analysis state. When full is set and the node
// contains embedded archives, each child's summary is included recursively.
func (a *Archive) Summary(full bool) Summary {
	s := Summary{
		Type:   a.typ.String(),
		Source: a.sourceLabel(),
		Error:  a.analysisErr,
	}
	if a.reader != nil {
		s.Reader = readerKind(a.reader)
	}
	if a.src != nil {
		s.FileSize = a.src.Size()
		s.ActiveRange = a.src.Window()
	}
	if entries, err := a.entriesQuiet(); err == nil {
		for _, e := range entries {
			if e.Range != nil {
				s.DataSize += e.Range.Size()
			}
		}
	}
	if full && a.ContainsArchive() {
		for _, name := range a.childOrder {
			s.Children = append(s.Children, a.children[name].Summary(true))
		}
	}
	return s
}

// entriesQuiet lists entries without touching the last-error state, for
// summaries and internal walks.
func (a *Archive) entriesQuiet() ([]Entry, error) {
	if a.analysisErr != "" || a.reader == nil {
		return nil, ErrNoReader
	}
	return a.reader.Entries(true)
}

func (a *Archive) sourceLabel() string {
	if a.src == nil {
		return ""
	}
	return a.src.Label()
}

func readerKind(r Reader) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", r), "*archivenest.")
}

// Extract reads the named entry's exact bytes. sourcePath disambiguates
// same-named entries at different nesting levels; "" means the root.
func (a *Archive) Extract(name, sourcePath string) ([]byte, error) {
	node, r, err := a.resolveRange(name, sourcePath)
	if err != nil {
		a.fail(err)
		return nil, err
	}
	b, err := node.reader.Source().ReadRange(r)
	if err != nil {
		err = fmt.Errorf("extract %q at %q: %w", name, sourcePath, err)
		a.fail(err)
		return nil, err
	}
	return b, nil
}

// ExtractTo saves the named entry's exact bytes to dest on the archive's
// filesystem and returns the byte count written.
func (a *Archive) ExtractTo(name, dest, sourcePath string) (int64, error) {
	node, r, err := a.resolveRange(name, sourcePath)
	if err != nil {
		a.fail(err)
		return 0, err
	}
	n, err := node.reader.Source().SaveRange(r, dest)
	if err != nil {
		err = fmt.Errorf("extract %q at %q to %s: %w", name, sourcePath, dest, err)
		a.fail(err)
		return n, err
	}
	return n, nil
}

// Close releases the root source handle. Fragments and children share the
// root's handle and need no teardown of their own.
func (a *Archive) Close() error {
	if a.src == nil {
		return nil
	}
	return a.src.Close()
}

var _ io.Closer = (*Archive)(nil)
