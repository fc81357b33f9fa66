package verify

import (
	"os"
	"path/filepath"
)

// walkTextFiles is the last-resort marker scan path, used only when
// neither ripgrep nor grep is on PATH. It walks root and calls onContent
// for every regular file whose base name matches at least one of globs
// (or every file, when globs is empty).
func walkTextFiles(root string, globs []string, onContent func(content []byte)) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if len(globs) > 0 && !matchesAny(d.Name(), globs) {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		onContent(data)
		return nil
	})
}

func matchesAny(name string, globs []string) bool {
	for _, g := range globs {
		if ok, _ := filepath.Match(g, name); ok {
			return true
		}
	}
	return false
}
