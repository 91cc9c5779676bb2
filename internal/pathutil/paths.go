// Package pathutil resolves and confines file paths that arrive from
// configuration or from remote clients.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nvandessel/neurosim/internal/constants"
)

// RedactPath shortens path for messages shown to remote clients: a path
// under the home directory starts with "~", anything else is reduced to
// .../<parent>/<basename>.
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		if cleaned == home {
			return "~"
		}
		if rel, ok := strings.CutPrefix(cleaned, home+string(filepath.Separator)); ok {
			return "~/" + filepath.ToSlash(rel)
		}
	}
	parent := filepath.Base(filepath.Dir(cleaned))
	if parent == "." || parent == string(filepath.Separator) {
		return filepath.Base(cleaned)
	}
	return ".../" + parent + "/" + filepath.Base(cleaned)
}

// ExpandHome replaces a leading "~/" with the home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("finding home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// ExportRoot is the directory MCP exports are confined to.
func ExportRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("finding home directory: %w", err)
	}
	return filepath.Join(home, constants.DirName, constants.ExportDir), nil
}

// Confine resolves path against root and returns the absolute result. The
// result must stay inside root after symlinks on its existing ancestors are
// resolved. Relative paths are taken relative to root.
func Confine(root, path string) (string, error) {
	if strings.ContainsRune(path, '\x00') {
		return "", fmt.Errorf("path contains null byte")
	}
	if root == "" {
		return "", fmt.Errorf("no export root configured")
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("cannot resolve root: %w", err)
	}
	rootResolved, err := resolveExisting(rootAbs)
	if err != nil {
		return "", err
	}

	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(rootAbs, target)
	}
	target = filepath.Clean(target)
	resolved, err := resolveExisting(target)
	if err != nil {
		return "", err
	}

	if !within(resolved, rootResolved) {
		return "", fmt.Errorf("%q is outside %s", RedactPath(target), RedactPath(rootAbs))
	}
	return resolved, nil
}

// resolveExisting resolves symlinks on the deepest existing ancestor of p
// and re-appends the part that does not exist yet.
func resolveExisting(p string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved, nil
	}
	parent := filepath.Dir(p)
	if parent == p {
		return "", fmt.Errorf("cannot resolve path: %s", RedactPath(p))
	}
	resolvedParent, err := resolveExisting(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolvedParent, filepath.Base(p)), nil
}

// within reports whether p is base or below it. "/tmp/foo" is not within
// "/tmp/fo".
func within(p, base string) bool {
	if p == base {
		return true
	}
	return strings.HasPrefix(p, strings.TrimSuffix(base, string(filepath.Separator))+string(filepath.Separator))
}
