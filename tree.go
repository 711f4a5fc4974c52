package archivenest

import (
	"fmt"
	"regexp"

	lru "github.com/hashicorp/golang-lru/v2"
)

// archiveNameRe picks out entry names worth probing for a nested archive.
// Numeric extensions cover split-volume naming (.001, .r00).
var archiveNameRe = regexp.MustCompile(`(?i)\.(rar|r\d{2}|\d{3}|zip|srr|par2|sfv)$`)

func archiveEntryCandidate(name string) bool {
	return archiveNameRe.MatchString(name)
}

// ContainsArchive reports whether the node holds at least one embedded
// archive, populating the children cache on first call. Dead nodes never
// contain anything.
func (a *Archive) ContainsArchive() bool {
	if err := a.fillChildren(); err != nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.childOrder) > 0
}

// ArchiveList returns the entry names of all embedded archives, in the
// order the container lists them.
func (a *Archive) ArchiveList() ([]string, error) {
	if err := a.fillChildren(); err != nil {
		a.fail(err)
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.childOrder...), nil
}

// ChildArchive returns the embedded archive stored under name. Compressed or
// encrypted candidates come back as dead nodes whose operations report why
// they cannot be read.
func (a *Archive) ChildArchive(name string) (*Archive, error) {
	if err := a.fillChildren(); err != nil {
		a.fail(err)
		return nil, err
	}
	if !a.typ.AllowsRecursion() {
		err := fmt.Errorf("%w: %s", ErrNotRecursable, a.typ)
		a.fail(err)
		return nil, err
	}
	a.mu.Lock()
	c, ok := a.children[name]
	a.mu.Unlock()
	if !ok {
		err := notFoundErr(name, a.sourceLabel())
		a.fail(err)
		return nil, err
	}
	return c, nil
}

// fillChildren analyzes every candidate entry once. Presence is decided by
// the name alone; candidates that cannot be read (compressed, encrypted,
// out-of-bounds ranges, or bytes that detect as no known format) are kept as
// dead nodes so callers see why descent stopped there.
func (a *Archive) fillChildren() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.childDone {
		return nil
	}
	if err := a.gate(); err != nil {
		return err
	}
	if !a.typ.AllowsRecursion() {
		a.childDone = true
		return nil
	}
	entries, err := a.reader.Entries(true)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Dir || e.Range == nil || !archiveEntryCandidate(e.Name) {
			continue
		}
		if _, dup := a.children[e.Name]; dup {
			continue
		}
		a.children[e.Name] = a.probeChild(e)
		a.childOrder = append(a.childOrder, e.Name)
	}
	a.childDone = true
	return nil
}

func (a *Archive) probeChild(e Entry) *Archive {
	if e.Compressed {
		return a.deadChild(fmt.Errorf("%q: %w", e.Name, ErrCompressedChild))
	}
	if e.Encrypted {
		return a.deadChild(fmt.Errorf("%q: %w", e.Name, ErrEncryptedChild))
	}
	frag, err := a.reader.Source().Slice(*e.Range, e.Name)
	if err != nil {
		return a.deadChild(fmt.Errorf("%q: %w", e.Name, err))
	}
	child := a.newChild(frag)
	if child.analysisErr != "" {
		// candidate name, but the bytes are not an archive we know; the node
		// stays present with its sticky error
		a.log.Debug("candidate not readable", "name", e.Name, "err", child.analysisErr)
	}
	return child
}

func (a *Archive) newChild(src *Source) *Archive {
	c := &Archive{
		fs:       a.fs,
		log:      a.log,
		bindings: DefaultBindings(),
		children: map[string]*Archive{},
		src:      src,
	}
	if a.inherit {
		c.bindings = a.bindings
		c.inherit = true
	}
	c.ranges, _ = lru.New[string, resolvedRange](rangeCacheSize)
	_ = c.analyze()
	return c
}

func (a *Archive) deadChild(err error) *Archive {
	c := &Archive{
		fs:       a.fs,
		log:      a.log,
		bindings: DefaultBindings(),
		children: map[string]*Archive{},
	}
	c.ranges, _ = lru.New[string, resolvedRange](rangeCacheSize)
	c.analysisErr = err.Error()
	c.fail(err)
	return c
}
