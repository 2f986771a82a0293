package fileutil

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// CopyFile streams src on srcFs to dst on dstFs with mode 0o644.
func CopyFile(srcFs afero.Fs, src string, dstFs afero.Fs, dst string) error {
	in, err := srcFs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	_, err = WriteAtomic(dstFs, dst, in, 0o644)
	return err
}

// WriteAtomic streams r into a temporary sibling of dst and renames it into
// place once fully written, so readers never observe a partial file. It
// returns the number of bytes written.
func WriteAtomic(fs afero.Fs, dst string, r io.Reader, mode os.FileMode) (int64, error) {
	if err := fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}
	tmp := dst + ".partial"
	out, err := fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return 0, err
	}
	written, err := io.Copy(out, r)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = fs.Remove(tmp)
		return written, err
	}
	if err := fs.Rename(tmp, dst); err != nil {
		_ = fs.Remove(tmp)
		return written, err
	}
	return written, nil
}

// CopyFileVerified copies src to dst and re-reads dst to confirm size and
// SHA256 match the source. dst is removed on mismatch.
func CopyFileVerified(srcFs afero.Fs, src string, dstFs afero.Fs, dst string) error {
	srcInfo, err := srcFs.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	in, err := srcFs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	srcHasher := sha256.New()
	written, err := WriteAtomic(dstFs, dst, io.TeeReader(in, srcHasher), 0o644)
	if err != nil {
		return err
	}
	if written != srcInfo.Size() {
		_ = dstFs.Remove(dst)
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcInfo.Size(), written)
	}

	copied, err := dstFs.Open(dst)
	if err != nil {
		return err
	}
	defer copied.Close()
	dstHasher := sha256.New()
	if _, err := io.Copy(dstHasher, copied); err != nil {
		return err
	}
	if !bytes.Equal(srcHasher.Sum(nil), dstHasher.Sum(nil)) {
		_ = dstFs.Remove(dst)
		return fmt.Errorf("copy hash mismatch: file corrupted during copy")
	}
	return nil
}
