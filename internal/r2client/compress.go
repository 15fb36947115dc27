package r2client

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// CompressFile writes a zstd-compressed copy of srcPath to dstPath.
func CompressFile(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("compress: open source: %w", err)
	}
	defer func() { _ = src.Close() }()

	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("compress: create dest: %w", err)
	}
	defer func() { _ = dst.Close() }()

	enc, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return fmt.Errorf("compress: create encoder: %w", err)
	}
	if _, err := io.Copy(enc, src); err != nil {
		_ = enc.Close()
		return fmt.Errorf("compress: copy: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("compress: close encoder: %w", err)
	}
	return dst.Sync()
}

// DecompressStream decodes the zstd stream r into dstPath.
// On failure the partial file is removed.
func DecompressStream(r io.Reader, dstPath string) (err error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return fmt.Errorf("decompress: create decoder: %w", err)
	}
	defer dec.Close()

	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("decompress: create dest: %w", err)
	}
	defer func() {
		if cerr := dst.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("decompress: close dest: %w", cerr)
		}
		if err != nil {
			_ = os.Remove(dstPath)
		}
	}()

	if _, err := io.Copy(dst, dec); err != nil {
		return fmt.Errorf("decompress: copy: %w", err)
	}
	return nil
}
