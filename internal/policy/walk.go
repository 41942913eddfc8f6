package policy

import (
	"os"
	"path/filepath"
	"strings"
)

// RelPath reports the POSIX-style path of absPath relative to whichever
// watch root contains it. ok is false if absPath resolves outside every
// watch root (mirroring Classify's out_of_root rule).
func (p *Policy) RelPath(absPath string) (string, bool) {
	_, rel, err := p.resolveRoot(absPath)
	if err != nil {
		return "", false
	}
	return rel, true
}

// WatchRoots returns the policy's resolved, absolute watch roots.
func (p *Policy) WatchRoots() []string {
	out := make([]string, len(p.watchRoots))
	copy(out, p.watchRoots)
	return out
}

// Walk enumerates every regular file under every watch root. It does not
// classify paths; callers run Classify themselves so they control what
// happens to skipped paths.
func (p *Policy) Walk() ([]string, error) {
	var paths []string
	for _, root := range p.watchRoots {
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil // degrade to skip, per the io_error contract
			}
			if info.IsDir() {
				if strings.HasPrefix(info.Name(), ".git") && path != root {
					return filepath.SkipDir
				}
				return nil
			}
			paths = append(paths, path)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return paths, nil
}
