package archivenest

import (
	"fmt"
	"testing"

	"github.com/spf13/afero"
)

func buildLegacyFallbackBytes() []byte {
	// junk after the signature defeats the strict walk and forces the
	// legacy scan over the padding
	data := append(append([]byte{}, rar3Sig...), 0x01, 0x02, 0x03)
	data = append(data, buildRar3FileHeader("legacy-bench.bin", 10, 10)...)
	return append(data, make([]byte, 1024)...)
}

func BenchmarkLegacyParser(b *testing.B) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "bench_legacy.rar", buildLegacyFallbackBytes(), 0o644); err != nil {
		b.Fatalf("write: %v", err)
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		idx, err := IndexVolumes(fs, []string{"bench_legacy.rar"})
		if err != nil {
			b.Fatalf("IndexVolumes: %v", err)
		}
		if len(idx) != 1 || len(idx[0].Dump.Blocks) != 1 {
			b.Fatalf("unexpected index result")
		}
	}
}

func BenchmarkIndexVolumesParallel50Parts(b *testing.B) {
	const parts = 50
	fs := afero.NewMemMapFs()
	data := buildLegacyFallbackBytes()
	for i := 1; i <= parts; i++ {
		name := fmt.Sprintf("multi.part%02d.rar", i)
		if err := afero.WriteFile(fs, name, data, 0o644); err != nil {
			b.Fatalf("write: %v", err)
		}
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		vols, err := DiscoverVolumes(fs, "multi.part01.rar")
		if err != nil {
			b.Fatalf("discover: %v", err)
		}
		if len(vols) != parts {
			b.Fatalf("expected %d volumes, got %d", parts, len(vols))
		}
		idx, err := IndexVolumesParallel(fs, vols, 0)
		if err != nil {
			b.Fatalf("index: %v", err)
		}
		if len(idx) != parts {
			b.Fatalf("index length mismatch")
		}
	}
}

func BenchmarkFlatEntries(b *testing.B) {
	files := map[string][]byte{}
	order := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		name := fmt.Sprintf("file%02d.bin", i)
		files[name] = []byte("payload payload payload")
		order = append(order, name)
	}
	raw := buildRar3Stored(files, order)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		a, err := FromBuffer(raw, WithLogger(discardLogger()))
		if err != nil {
			b.Fatalf("open: %v", err)
		}
		flat, err := a.FlatEntries(true, true, "")
		if err != nil {
			b.Fatalf("flatten: %v", err)
		}
		if len(flat) != 20 {
			b.Fatalf("expected 20 entries, got %d", len(flat))
		}
		a.Close()
	}
}
