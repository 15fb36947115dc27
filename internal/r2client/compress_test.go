package r2client

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCompressDecompress(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	srcPath := filepath.Join(dir, "source.db")
	compressedPath := filepath.Join(dir, "source.db.zst")
	outPath := filepath.Join(dir, "restored.db")

	data := []byte(strings.Repeat("411285001\t王小明\n", 2000))
	if err := os.WriteFile(srcPath, data, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := CompressFile(srcPath, compressedPath); err != nil {
		t.Fatalf("CompressFile failed: %v", err)
	}
	srcInfo, _ := os.Stat(srcPath)
	zInfo, err := os.Stat(compressedPath)
	if err != nil {
		t.Fatalf("compressed file missing: %v", err)
	}
	if zInfo.Size() >= srcInfo.Size() {
		t.Errorf("compressed size %d not smaller than %d", zInfo.Size(), srcInfo.Size())
	}

	f, err := os.Open(compressedPath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()

	if err := DecompressStream(f, outPath); err != nil {
		t.Fatalf("DecompressStream failed: %v", err)
	}
	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("round trip changed the data")
	}
}

func TestCompressFile_MissingSource(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := CompressFile(filepath.Join(dir, "missing"), filepath.Join(dir, "out.zst")); err == nil {
		t.Error("CompressFile() on a missing file should fail")
	}
}

func TestDecompressStream_InvalidData(t *testing.T) {
	t.Parallel()

	out := filepath.Join(t.TempDir(), "out.db")
	if err := DecompressStream(strings.NewReader("definitely not zstd"), out); err == nil {
		t.Fatal("DecompressStream() on garbage should fail")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("partial output should be removed")
	}
}

func TestNew_RequiresConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"empty", Config{}},
		{"missing bucket", Config{Endpoint: "https://a.r2.cloudflarestorage.com", AccessKeyID: "k", SecretKey: "s"}},
		{"missing secret", Config{Endpoint: "https://a.r2.cloudflarestorage.com", AccessKeyID: "k", BucketName: "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(t.Context(), tt.cfg); err == nil {
				t.Error("New() should reject incomplete config")
			}
		})
	}
}
