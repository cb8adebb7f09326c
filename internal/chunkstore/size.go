package chunkstore

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// dirSize sums the size of every regular file under root. A missing
// directory counts as zero rather than an error, since a fresh chunk
// root has nothing under its chunks/ subtree yet.
func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	return total, err
}

// Usage returns the sum of chunk-file sizes across all roots: the
// quantity a quota check weighs a write against, and the one the
// filesystem adapter's statfs reports free space relative to.
func (s *Store) Usage() (int64, error) {
	var total int64
	for _, root := range s.roots {
		n, err := dirSize(filepath.Join(root, internalDir, chunksSubdir))
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
