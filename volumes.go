package archivenest

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// VolumeIndex holds the parsed structure of one RAR volume.
type VolumeIndex struct {
	Path string
	Dump RarDump
}

var partVolRe = regexp.MustCompile(`(?i)(?P<prefix>.*?)(?P<sep>[_.-]?)(?:part)(?P<num>\d+)(?P<suffix>\.rar)`)

// DiscoverVolumes finds all parts of a multi-volume set given the first
// volume path. Supports name.part01.rar / name.part1.rar naming and the old
// .rar/.r00/.r01 style; anything else is treated as a single volume.
func DiscoverVolumes(fs afero.Fs, first string) ([]string, error) {
	base := filepath.Base(first)
	if m := partVolRe.FindStringSubmatch(base); m != nil {
		prefix, sep, num, suffix := m[1], m[2], m[3], m[4]
		width := len(num)
		dir := filepath.Dir(first)
		var vols []string
		for i := 1; i < 10000; i++ {
			p := filepath.Join(dir, fmt.Sprintf("%s%spart%0*d%s", prefix, sep, width, i, suffix))
			if _, err := fs.Stat(p); err != nil {
				if i == 1 {
					return nil, fmt.Errorf("first volume not found: %s", p)
				}
				break
			}
			vols = append(vols, p)
		}
		return vols, nil
	}
	if strings.HasSuffix(strings.ToLower(base), ".rar") {
		if _, err := fs.Stat(first); err != nil {
			return nil, err
		}
		prefix := strings.TrimSuffix(first, filepath.Ext(first))
		vols := []string{first}
		for i := 0; i < 1000; i++ {
			p := fmt.Sprintf("%s.r%02d", prefix, i)
			if _, err := fs.Stat(p); err != nil {
				break
			}
			vols = append(vols, p)
		}
		return vols, nil
	}
	return []string{first}, nil
}

func indexVolume(fs afero.Fs, path string) (*VolumeIndex, error) {
	src, err := NewFileSource(fs, path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = src.Close() }()
	r := newRarReader(src)
	if err := r.scan(); err != nil {
		return nil, fmt.Errorf("index %s: %w", path, err)
	}
	return &VolumeIndex{Path: path, Dump: r.dump}, nil
}

// IndexVolumes scans each volume sequentially, preserving order.
func IndexVolumes(fs afero.Fs, paths []string) ([]*VolumeIndex, error) {
	out := make([]*VolumeIndex, 0, len(paths))
	for _, p := range paths {
		v, err := indexVolume(fs, p)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// IndexVolumesParallel scans volumes with up to workers goroutines while
// keeping results in volume order. workers <= 0 picks a small default.
func IndexVolumesParallel(fs afero.Fs, paths []string, workers int) ([]*VolumeIndex, error) {
	if workers <= 0 {
		workers = 4
	}
	out := make([]*VolumeIndex, len(paths))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, p := range paths {
		g.Go(func() error {
			v, err := indexVolume(fs, p)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// AggregatedFilePart is one slice of a (possibly split) file in a volume.
type AggregatedFilePart struct {
	Path         string `json:"path"`
	DataOffset   int64  `json:"dataOffset"`
	PackedSize   int64  `json:"packedSize"`
	UnpackedSize int64  `json:"unpackedSize"`
	Stored       bool   `json:"stored"`
	Encrypted    bool   `json:"encrypted"`
}

// AggregatedFile groups all parts for one file name across volumes.
type AggregatedFile struct {
	Name              string               `json:"name"`
	TotalPackedSize   int64                `json:"totalPackedSize"`
	TotalUnpackedSize int64                `json:"totalUnpackedSize"`
	Parts             []AggregatedFilePart `json:"parts"`
	AnyEncrypted      bool                 `json:"anyEncrypted"`
	AllStored         bool                 `json:"allStored"`
}

// AggregateFiles merges per-volume file blocks into one entry per file name,
// in first-seen order.
func AggregateFiles(vs []*VolumeIndex) []AggregatedFile {
	m := make(map[string]*AggregatedFile)
	order := []string{}
	for _, v := range vs {
		for _, fb := range v.Dump.Blocks {
			if fb.Name == "" || fb.Dir {
				continue
			}
			ag, ok := m[fb.Name]
			if !ok {
				ag = &AggregatedFile{Name: fb.Name, AllStored: true}
				m[fb.Name] = ag
				order = append(order, fb.Name)
			}
			ag.Parts = append(ag.Parts, AggregatedFilePart{
				Path:         v.Path,
				DataOffset:   fb.DataPos,
				PackedSize:   fb.PackedSize,
				UnpackedSize: fb.UnpackedSize,
				Stored:       fb.Stored,
				Encrypted:    fb.Encrypted,
			})
			ag.TotalPackedSize += fb.PackedSize
			// unpacked size is declared per file, not per part
			if ag.TotalUnpackedSize == 0 && fb.UnpackedSize > 0 {
				ag.TotalUnpackedSize = fb.UnpackedSize
			}
			if fb.Encrypted {
				ag.AnyEncrypted = true
			}
			if !fb.Stored {
				ag.AllStored = false
			}
		}
	}
	out := make([]AggregatedFile, 0, len(order))
	for _, name := range order {
		out = append(out, *m[name])
	}
	return out
}

// ListFiles discovers, indexes and aggregates a volume set starting at the
// first volume, rejecting sets whose contents cannot be read byte-exactly.
func ListFiles(fs afero.Fs, first string) ([]AggregatedFile, error) {
	vols, err := DiscoverVolumes(fs, first)
	if err != nil {
		return nil, err
	}
	idx, err := IndexVolumesParallel(fs, vols, 0)
	if err != nil {
		return nil, err
	}
	for _, v := range idx {
		if v.Dump.EncryptedHeaders {
			return nil, fmt.Errorf("%w: %s", ErrPasswordProtected, v.Path)
		}
		for _, fb := range v.Dump.Blocks {
			if fb.Encrypted {
				return nil, fmt.Errorf("%w: %s (%s)", ErrPasswordProtected, fb.Name, v.Path)
			}
			if !fb.Stored && !fb.Dir {
				return nil, fmt.Errorf("%w: %s (%s)", ErrCompressedNotSupported, fb.Name, v.Path)
			}
		}
	}
	return AggregateFiles(idx), nil
}
