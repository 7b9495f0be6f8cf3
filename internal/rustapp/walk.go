package rustapp

import (
	"io/fs"
	"path/filepath"
)

// filepathWalk walks root, calling fn with each entry's absolute path
// and its path relative to root.
func filepathWalk(root string, fn func(path, rel string, isDir bool) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		return fn(path, rel, d.IsDir())
	})
}
