package scan

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FindTestSource locates the file under root that defines testName and
// returns its path and contents. Go and pytest naming conventions are
// searched; walk order is deterministic, first definition wins. A miss
// returns an empty path, which degrades classification to unknown.
func FindTestSource(root, testName string) (string, []byte) {
	if testName == "" {
		return "", nil
	}

	info, err := os.Stat(root)
	if err != nil {
		return "", nil
	}
	if !info.IsDir() {
		src, err := os.ReadFile(root)
		if err != nil || !defines(root, src, testName) {
			return "", nil
		}
		return root, src
	}

	var foundPath string
	var foundSrc []byte
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || foundPath != "" {
			return filepath.SkipAll
		}
		if d.IsDir() {
			name := d.Name()
			if name == "vendor" || name == "node_modules" || strings.HasPrefix(name, ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !isTestFile(d.Name()) {
			return nil
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		if defines(path, src, testName) {
			foundPath, foundSrc = path, src
			return filepath.SkipAll
		}
		return nil
	})

	return foundPath, foundSrc
}

func isTestFile(name string) bool {
	return strings.HasSuffix(name, "_test.go") ||
		strings.HasSuffix(name, "_test.py") ||
		(strings.HasPrefix(name, "test_") && strings.HasSuffix(name, ".py"))
}

func defines(path string, src []byte, testName string) bool {
	text := string(src)
	if strings.HasSuffix(path, ".go") {
		return strings.Contains(text, "func "+testName+"(")
	}
	return strings.Contains(text, "def "+testName+"(")
}
