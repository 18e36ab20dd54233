package util

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ResolveRoot returns the absolute, symlink-free form of a root directory.
// A root that does not exist yet is returned in its absolute form.
func ResolveRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", root, err)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real, nil
	}
	return abs, nil
}

// SafeJoin joins a POSIX relative path onto root and rejects any result that
// escapes root, lexically or through a symlink.
func SafeJoin(root, rel string) (string, error) {
	if rel == "" || strings.HasPrefix(rel, "/") || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, rel)
	}

	joined := filepath.Join(root, filepath.FromSlash(rel))
	if !within(root, joined) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, rel)
	}

	// A link inside the tree may still point elsewhere.
	if real, err := filepath.EvalSymlinks(joined); err == nil {
		realRoot := root
		if r, err := filepath.EvalSymlinks(root); err == nil {
			realRoot = r
		}
		if !within(realRoot, real) {
			return "", fmt.Errorf("%w: %q", ErrOutsideRoot, rel)
		}
	}

	return joined, nil
}

// RelPOSIX returns p relative to root with forward slashes. It fails for
// paths outside root.
func RelPOSIX(root, p string) (string, error) {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, p)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, p)
	}
	return filepath.ToSlash(rel), nil
}

// FileExists reports whether rel names an existing file inside root. Paths
// that escape root never exist.
func FileExists(root, rel string) bool {
	p, err := SafeJoin(root, rel)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// PathHints returns the file name and immediate parent directory name of a
// stored relative path. Files at the root have an empty parent.
func PathHints(rel string) (name, parent string) {
	if rel == "" {
		return "", ""
	}
	name = path.Base(rel)
	dir := path.Dir(rel)
	if dir == "." || dir == "/" {
		return name, ""
	}
	return name, path.Base(dir)
}

func within(root, p string) bool {
	root = filepath.Clean(root)
	p = filepath.Clean(p)
	if p == root {
		return false
	}
	return strings.HasPrefix(p, root+string(filepath.Separator))
}
