package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"
)

// rename is replaced in tests.
var rename = os.Rename

// IterationName is the artifact name of an optimization iteration, e.g.
// "3_ITR.post.bin".
func IterationName(iteration int, ext string) string {
	return fmt.Sprintf("%d_ITR%s", iteration, ext)
}

// CopyFile copies src to dst, replacing dst.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Relocate moves every file matching pattern into the directory returned
// by folder for its path, creating the directory when needed. Every match
// is attempted; the moved destinations and the joined failures are
// returned.
func Relocate(pattern string, folder func(path string) string) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	var moved []string
	var errs []error
	for _, path := range matches {
		dir := folder(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			errs = append(errs, err)
			continue
		}
		dst := filepath.Join(dir, filepath.Base(path))
		if err := move(path, dst); err != nil {
			errs = append(errs, err)
			continue
		}
		moved = append(moved, dst)
	}
	return moved, errors.Join(errs...)
}

// move renames src to dst and falls back to copy and remove when they are
// on different devices.
func move(src, dst string) error {
	err := rename(src, dst)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}
	if err := CopyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

// SuffixFolder names the folder of path by replacing ext with suffix, so
// "3_ITR.post.bin" goes to "3_ITR_results".
func SuffixFolder(ext, suffix string) func(string) string {
	return func(path string) string {
		return strings.TrimSuffix(path, ext) + suffix
	}
}

// DeleteIfExists removes each path, file or directory. Missing paths are
// not an error.
func DeleteIfExists(paths ...string) error {
	var errs []error
	for _, p := range paths {
		if _, err := os.Lstat(p); err != nil {
			if !os.IsNotExist(err) {
				errs = append(errs, err)
			}
			continue
		}
		if err := os.RemoveAll(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
