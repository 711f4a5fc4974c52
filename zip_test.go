package archivenest

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

// buildZipStored writes a ZIP archive whose entries are stored, so their
// bytes remain addressable without decompression.
func buildZipStored(t *testing.T, files map[string][]byte, order []string) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, name := range order {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
		require.NoError(t, err)
		_, err = w.Write(files[name])
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newZipSource(t *testing.T, b []byte) *zipReader {
	t.Helper()
	return newZipReader(NewBufferSource(afero.NewMemMapFs(), b))
}

func TestZipEntriesStored(t *testing.T) {
	data := []byte("stored payload")
	z := newZipSource(t, buildZipStored(t, map[string][]byte{"a.bin": data}, []string{"a.bin"}))

	pos, err := z.FindSignature()
	require.NoError(t, err)
	require.Zero(t, pos)

	entries, err := z.Entries(true)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]
	require.Equal(t, "a.bin", e.Name)
	require.False(t, e.Compressed)
	require.False(t, e.Encrypted)
	require.Equal(t, int64(len(data)), e.UnpackedSize)
	require.NotNil(t, e.Range)

	got, err := z.Source().ReadRange(*e.Range)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestZipDeflatedAndDirEntries(t *testing.T) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	_, err := zw.CreateHeader(&zip.FileHeader{Name: "dir/"})
	require.NoError(t, err)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "dir/deep.txt", Method: zip.Deflate})
	require.NoError(t, err)
	_, err = w.Write(bytes.Repeat([]byte("compressible "), 50))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	z := newZipSource(t, buf.Bytes())
	entries, err := z.Entries(true)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.True(t, entries[0].Dir)
	require.False(t, entries[0].Compressed, "directories are never compressed")
	require.False(t, entries[1].Dir)
	require.True(t, entries[1].Compressed)
}

func TestZipDump(t *testing.T) {
	z := newZipSource(t, buildZipStored(t, map[string][]byte{"x": []byte("1234")}, []string{"x"}))
	d, err := z.Dump()
	require.NoError(t, err)
	dump, ok := d.(ZipDump)
	require.True(t, ok)
	require.Len(t, dump.Records, 1)
	require.Equal(t, int64(4), dump.Records[0].CompressedSize)
	require.Greater(t, dump.Records[0].DataOffset, dump.Records[0].HeaderOffset)
}

func TestZipMissingEOCD(t *testing.T) {
	// a local header signature without central directory fails the scan
	b := append([]byte{0x50, 0x4B, 0x03, 0x04}, bytes.Repeat([]byte{0}, 40)...)
	z := newZipSource(t, b)
	pos, err := z.FindSignature()
	require.NoError(t, err)
	require.Zero(t, pos)
	_, err = z.Entries(true)
	require.Error(t, err)
	require.Contains(t, err.Error(), "EOCD")
}

func TestZipNoSignature(t *testing.T) {
	z := newZipSource(t, []byte("totally not a zip file"))
	_, err := z.FindSignature()
	require.Error(t, err)
}
