package archivenest

import "strings"

// FlatEntries walks the node and, when recurse is set, every reachable
// descendant, producing one ordered sequence tagged with source paths
// ("main", "main > inner.zip", ...). With includeAllFormats unset only
// recursable-format children contribute entries; a child that failed to open
// still contributes a single error record at its position so callers know
// why the branch is missing. Failures in one branch never suppress siblings.
func (a *Archive) FlatEntries(recurse, includeAllFormats bool, sourcePath string) ([]FlatEntry, error) {
	if sourcePath == "" {
		sourcePath = RootLabel
	}
	if err := a.gate(); err != nil {
		a.fail(err)
		return nil, err
	}
	return a.flatten(recurse, includeAllFormats, sourcePath), nil
}

func (a *Archive) flatten(recurse, includeAllFormats bool, path string) []FlatEntry {
	entries, err := a.entriesQuiet()
	if err != nil {
		return []FlatEntry{{Source: path, Err: errString(err)}}
	}
	out := make([]FlatEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, FlatEntry{Entry: e, Source: path})
	}
	if !recurse {
		return out
	}
	if err := a.fillChildren(); err != nil {
		return out
	}
	for _, name := range a.childOrder {
		c := a.children[name]
		childPath := path + SourceSeparator + name
		switch {
		case c.analysisErr != "":
			out = append(out, FlatEntry{Source: childPath, Err: c.analysisErr})
		case includeAllFormats || c.AllowsRecursion():
			out = append(out, c.flatten(recurse, includeAllFormats, childPath)...)
		}
	}
	return out
}

// resolveRange locates the node and window-relative byte range of the entry
// named name at exactly sourcePath. Directory entries and entries without a
// determined range are never returned. Resolutions are memoized per root.
func (a *Archive) resolveRange(name, sourcePath string) (*Archive, Range, error) {
	if sourcePath == "" {
		sourcePath = RootLabel
	}
	if err := a.gate(); err != nil {
		return nil, Range{}, err
	}
	key := sourcePath + "\x00" + name
	if rr, ok := a.ranges.Get(key); ok {
		return rr.node, rr.r, nil
	}
	node, r, ok := a.findEntry(name, sourcePath, RootLabel)
	if !ok {
		return nil, Range{}, notFoundErr(name, sourcePath)
	}
	a.ranges.Add(key, resolvedRange{node: node, r: r})
	return node, r, nil
}

func (a *Archive) findEntry(name, wantPath, herePath string) (*Archive, Range, bool) {
	if a.analysisErr != "" || a.reader == nil {
		return nil, Range{}, false
	}
	if herePath == wantPath {
		entries, err := a.entriesQuiet()
		if err != nil {
			return nil, Range{}, false
		}
		for _, e := range entries {
			if e.Name == name && !e.Dir && e.Range != nil {
				return a, *e.Range, true
			}
		}
		return nil, Range{}, false
	}
	// descend only along branches that can still prefix-match the target
	if !strings.HasPrefix(wantPath, herePath+SourceSeparator) {
		return nil, Range{}, false
	}
	if err := a.fillChildren(); err != nil {
		return nil, Range{}, false
	}
	for _, cn := range a.childOrder {
		if node, r, ok := a.children[cn].findEntry(name, wantPath, herePath+SourceSeparator+cn); ok {
			return node, r, true
		}
	}
	return nil, Range{}, false
}
