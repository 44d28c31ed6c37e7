package archive

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/klauspost/compress/zstd"
)

// Ext is the suffix appended to a dump path when it is compressed.
const Ext = ".zst"

// Compress writes a zstd-compressed copy of srcPath to srcPath+Ext and
// removes the original. The source is checked first so a vanished dump
// fails with a readable message instead of a stream error halfway through.
// Removal of the original tolerates transient file locks with a bounded
// retry.
func Compress(srcPath string) (string, error) {
	if _, err := os.Stat(srcPath); err != nil {
		return "", fmt.Errorf("source file %s missing: %w", srcPath, err)
	}

	dstPath := srcPath + Ext

	if err := compressFile(srcPath, dstPath); err != nil {
		os.Remove(dstPath)
		return "", err
	}

	if err := removeWithRetry(srcPath); err != nil {
		return "", fmt.Errorf("remove original %s: %w", srcPath, err)
	}

	return dstPath, nil
}

func compressFile(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer dst.Close()

	zw, err := zstd.NewWriter(dst)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}

	if _, err := io.Copy(zw, src); err != nil {
		zw.Close()
		return fmt.Errorf("compress %s: %w", srcPath, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("flush archive: %w", err)
	}

	return dst.Close()
}

// Decompress expands a zstd archive to dstPath.
func Decompress(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer src.Close()

	zr, err := zstd.NewReader(src)
	if err != nil {
		return fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, zr); err != nil {
		return fmt.Errorf("decompress %s: %w", srcPath, err)
	}

	return dst.Close()
}

func removeWithRetry(path string) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxElapsedTime = 5 * time.Second

	return backoff.Retry(func() error {
		err := os.Remove(path)
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}, policy)
}
