package archivenest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestArchiveEntriesAndSummary(t *testing.T) {
	files := map[string][]byte{
		"first.bin":  []byte("aaaaaaaa"),
		"second.bin": []byte("bbbb"),
	}
	buf := buildRar3Stored(files, []string{"first.bin", "second.bin"})
	a, err := FromBuffer(buf)
	require.NoError(t, err)
	require.Equal(t, TypeRAR, a.Type())
	require.True(t, a.AllowsRecursion())
	require.Empty(t, a.LastError())

	entries, err := a.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "first.bin", entries[0].Name)
	require.Equal(t, "second.bin", entries[1].Name)
	require.NotNil(t, entries[0].Range)
	require.Equal(t, int64(8), entries[0].Range.Size())

	s := a.Summary(false)
	require.Equal(t, "RAR", s.Type)
	require.Equal(t, "rarReader", s.Reader)
	require.Equal(t, int64(len(buf)), s.FileSize)
	require.Equal(t, int64(12), s.DataSize)
	require.Empty(t, s.Error)
}

func TestArchiveExtractByteExact(t *testing.T) {
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x42}
	buf := buildRar3Stored(map[string][]byte{"payload.bin": payload}, []string{"payload.bin"})
	a, err := FromBuffer(buf)
	require.NoError(t, err)

	got, err := a.Extract("payload.bin", "")
	require.NoError(t, err)
	require.Equal(t, payload, got)

	dest := filepath.Join(t.TempDir(), "payload.bin")
	n, err := a.ExtractTo("payload.bin", dest, "main")
	require.NoError(t, err)
	require.Equal(t, int64(len(payload)), n)
	written, err := os.ReadFile(dest)
	require.NoError(t, err)
	require.Equal(t, payload, written)
}

func TestArchiveExtractNotFound(t *testing.T) {
	buf := buildRar3Stored(map[string][]byte{"a.bin": []byte("xy")}, []string{"a.bin"})
	a, err := FromBuffer(buf)
	require.NoError(t, err)

	_, err = a.Extract("missing.bin", "")
	require.ErrorIs(t, err, ErrEntryNotFound)
	require.Contains(t, err.Error(), "missing.bin")
	require.Contains(t, err.Error(), "main")
	require.NotEmpty(t, a.LastError())

	// a failed extraction leaves prior state usable
	entries, err := a.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	got, err := a.Extract("a.bin", "main")
	require.NoError(t, err)
	require.Equal(t, []byte("xy"), got)
}

func TestArchiveStickyAnalysisError(t *testing.T) {
	a, err := FromBuffer([]byte("nothing recognizable"))
	require.Error(t, err)
	first := a.LastError()
	require.NotEmpty(t, first)

	// every operation fails deterministically with the same analysis error
	for i := 0; i < 3; i++ {
		_, err := a.Entries()
		require.Error(t, err)
		require.Equal(t, first, err.Error())
	}
	_, err = a.FindSignature()
	require.Error(t, err)
	// extraction surfaces the analysis error, not a lookup miss
	_, err = a.Extract("x", "")
	require.Error(t, err)
	require.Equal(t, first, err.Error())
	require.NotErrorIs(t, err, ErrEntryNotFound)
	_, err = a.ExtractTo("x", filepath.Join(t.TempDir(), "out"), "")
	require.Error(t, err)
	require.Equal(t, first, err.Error())
	require.False(t, a.ContainsArchive())
}

func TestArchiveCloseAfterFailedOpen(t *testing.T) {
	p := filepath.Join(t.TempDir(), "garbage.bin")
	require.NoError(t, os.WriteFile(p, []byte("nothing recognizable"), 0o644))
	a, err := Open(p)
	require.Error(t, err)
	// analysis already released the handle; a deferred Close stays clean
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}

func TestArchiveDump(t *testing.T) {
	buf := buildRar3Stored(map[string][]byte{"d.bin": []byte("zz")}, []string{"d.bin"})
	a, err := FromBuffer(buf)
	require.NoError(t, err)
	d, err := a.Dump()
	require.NoError(t, err)
	dump, ok := d.(RarDump)
	require.True(t, ok)
	require.Equal(t, VersionRar3, dump.Version)
	require.Len(t, dump.Blocks, 1)
}

func TestArchiveFindSignature(t *testing.T) {
	junk := make([]byte, 16)
	buf := append(junk, buildRar3Stored(map[string][]byte{"s.bin": []byte("q")}, []string{"s.bin"})...)
	a, err := FromBuffer(buf)
	require.NoError(t, err)
	pos, err := a.FindSignature()
	require.NoError(t, err)
	require.Equal(t, int64(16), pos)
}

func TestArchiveEncryptedRootEntriesFail(t *testing.T) {
	flags := uint16(rar3MainFlagEncryptedHeaders)
	buf := append(append([]byte{}, rar3Sig...),
		0x00, 0x00, rar3BlockTypeMain, byte(flags), byte(flags>>8), 0x07, 0x00)
	a, err := FromBuffer(buf)
	require.NoError(t, err) // detection succeeds, listing does not
	require.Equal(t, TypeRAR, a.Type())
	_, err = a.Entries()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrEncryptedChild))
}
