package archivenest

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/afero"
)

// Source is an opaque byte source: a file on an afero filesystem or an
// in-memory buffer, optionally restricted to a sub-range ("fragment") when it
// represents an embedded archive. All offsets handed to Source methods are
// relative to the window, so a fragment behaves exactly like a root source.
type Source struct {
	fs       afero.Fs
	file     afero.File // file-backed when non-nil; shared with fragments
	buf      []byte     // buffer-backed when non-nil
	start    int64      // window within the backing medium
	end      int64
	fragment bool
	label    string
}

// NewFileSource opens path on fs and wraps the whole file.
func NewFileSource(fs afero.Fs, path string) (*Source, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Source{fs: fs, file: f, end: st.Size(), label: filepath.Base(path)}, nil
}

// NewBufferSource wraps an in-memory buffer. fs is only used as the
// destination filesystem for SaveRange.
func NewBufferSource(fs afero.Fs, b []byte) *Source {
	return &Source{fs: fs, buf: b, end: int64(len(b)), label: "buffer"}
}

// Size returns the window length in bytes.
func (s *Source) Size() int64 { return s.end - s.start }

// IsFragment reports whether the source is a sub-range view of a larger one.
func (s *Source) IsFragment() bool { return s.fragment }

// Label returns a short human-readable identifier (file base name or "buffer").
func (s *Source) Label() string { return s.label }

// Window returns the absolute byte range the source covers in its backing
// medium. For a root source this is [0, Size).
func (s *Source) Window() Range { return Range{Start: s.start, End: s.end} }

// ReadAt implements io.ReaderAt over the window.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("negative offset %d", off)
	}
	if off >= s.Size() {
		return 0, io.EOF
	}
	if max := s.Size() - off; int64(len(p)) > max {
		p = p[:max]
		n, err := s.readAtRaw(p, s.start+off)
		if err == nil {
			err = io.EOF
		}
		return n, err
	}
	return s.readAtRaw(p, s.start+off)
}

func (s *Source) readAtRaw(p []byte, abs int64) (int, error) {
	if s.buf != nil {
		n := copy(p, s.buf[abs:])
		if n < len(p) {
			return n, io.ErrUnexpectedEOF
		}
		return n, nil
	}
	if s.file == nil {
		return 0, ErrNoSource
	}
	return s.file.ReadAt(p, abs)
}

// Reader returns a sequential reader over the whole window.
func (s *Source) Reader() *io.SectionReader {
	return io.NewSectionReader(s, 0, s.Size())
}

// Peek returns up to n bytes from the start of the window without consuming
// anything. Used for signature scanning.
func (s *Source) Peek(n int) ([]byte, error) {
	if int64(n) > s.Size() {
		n = int(s.Size())
	}
	if n <= 0 {
		return nil, nil
	}
	b := make([]byte, n)
	m, err := s.ReadAt(b, 0)
	if err != nil && err != io.EOF {
		return nil, err
	}
	return b[:m], nil
}

// ReadRange reads exactly r.Size() bytes at r.Start.
func (s *Source) ReadRange(r Range) ([]byte, error) {
	if err := s.checkRange(r); err != nil {
		return nil, err
	}
	b := make([]byte, r.Size())
	if _, err := s.ReadAt(b, r.Start); err != nil && err != io.EOF {
		return nil, err
	}
	return b, nil
}

// SaveRange copies exactly r.Size() bytes at r.Start to dest on the source's
// filesystem and returns the number of bytes written.
func (s *Source) SaveRange(r Range, dest string) (int64, error) {
	if err := s.checkRange(r); err != nil {
		return 0, err
	}
	out, err := s.fs.Create(dest)
	if err != nil {
		return 0, err
	}
	defer func() { _ = out.Close() }()
	n, err := io.Copy(out, io.NewSectionReader(s, r.Start, r.Size()))
	if err != nil {
		return n, err
	}
	return n, nil
}

// Slice returns a fragment over r. The fragment must be strictly contained in
// the window (start >= 0, end <= size, size < parent size), which bounds
// recursion depth over self-similar structures.
func (s *Source) Slice(r Range, label string) (*Source, error) {
	if err := s.checkRange(r); err != nil {
		return nil, err
	}
	if r.Size() >= s.Size() {
		return nil, fmt.Errorf("%w: [%d,%d) not strictly inside %d bytes", ErrRangeEscape, r.Start, r.End, s.Size())
	}
	return &Source{
		fs:       s.fs,
		file:     s.file,
		buf:      s.buf,
		start:    s.start + r.Start,
		end:      s.start + r.End,
		fragment: true,
		label:    label,
	}, nil
}

func (s *Source) checkRange(r Range) error {
	if r.Start < 0 || r.End < r.Start || r.End > s.Size() {
		return fmt.Errorf("%w: [%d,%d) in %d bytes", ErrRangeEscape, r.Start, r.End, s.Size())
	}
	return nil
}

// Close releases the file handle. Fragments share the root's handle and must
// not close it. Closing twice is a no-op: the facade closes the handle itself
// when analysis fails, and callers defer Close regardless.
func (s *Source) Close() error {
	if s.fragment || s.file == nil {
		return nil
	}
	f := s.file
	s.file = nil
	return f.Close()
}
