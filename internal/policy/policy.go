// Package policy decides whether a filesystem path should be indexed.
// It is the only component that looks at extensions, ignore files, size
// and binary-content heuristics; everything downstream trusts its verdict.
package policy

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gobwas/glob"
	ignore "github.com/sabhiram/go-gitignore"
	"github.com/maypok86/otter"

	"github.com/agentfusion/contextengine/internal/config"
)

// Kind is the outcome of classify.
type Kind string

const (
	KindIndex    Kind = "INDEX"
	KindSkip     Kind = "SKIP"
	KindTooLarge Kind = "TOO_LARGE"
	KindBinary   Kind = "BINARY"
	KindIgnored  Kind = "IGNORED"
)

// Decision is the result of classifying one path.
type Decision struct {
	Kind   Kind
	Reason string
}

func index() Decision              { return Decision{Kind: KindIndex} }
func skip(reason string) Decision  { return Decision{Kind: KindSkip, Reason: reason} }
func tooLarge() Decision           { return Decision{Kind: KindTooLarge, Reason: "too_large"} }
func binary() Decision             { return Decision{Kind: KindBinary, Reason: "binary"} }
func ignored(pattern string) Decision {
	return Decision{Kind: KindIgnored, Reason: pattern}
}

// IsIndexable reports whether d says the path should be indexed.
func (d Decision) IsIndexable() bool { return d.Kind == KindIndex }

const dirCacheWeight = 8 * 1024 * 1024 // 8MB of compiled matchers, generous for any repo tree

// Policy implements the PathPolicy component: classify(absPath) -> Decision.
type Policy struct {
	watchRoots        []string
	allowedExt        map[string]bool
	blockedExt        map[string]bool
	ignorePatterns    []glob.Glob
	sizeExceptions    []glob.Glob
	maxFileSizeBytes  int64
	warnFileSizeBytes int64
	binaryThreshold   float64
	maxSymlinkDepth   int
	ignoreFileNames   []string

	// dirIgnoreCache memoizes the combined gitignore-style matcher for a
	// directory, keyed by absolute directory path. Avoids re-parsing
	// .gitignore files on every classify call during a bootstrap scan.
	dirIgnoreCache otter.Cache[string, *dirMatchers]

	onWarnLargeFile func(absPath string, size int64)
}

// dirMatchers holds the ignore files discovered from a watch root down to
// one directory, nearest-ancestor last.
type dirMatchers struct {
	matchers []*ignore.GitIgnore
}

// New builds a Policy from a validated Config.
func New(cfg *config.Config) (*Policy, error) {
	p := &Policy{
		watchRoots:        make([]string, 0, len(cfg.WatchRoots)),
		allowedExt:        toExtSet(cfg.AllowedExtensions),
		blockedExt:        toExtSet(cfg.BlockedExtensions),
		maxFileSizeBytes:  cfg.MaxFileSizeBytes,
		warnFileSizeBytes: cfg.WarnFileSizeBytes,
		binaryThreshold:   cfg.BinaryThreshold,
		maxSymlinkDepth:   cfg.MaxSymlinkDepth,
		ignoreFileNames:   cfg.IgnoreFiles,
	}

	for _, root := range cfg.WatchRoots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("policy: resolving watch root %q: %w", root, err)
		}
		p.watchRoots = append(p.watchRoots, filepath.Clean(abs))
	}

	for _, pattern := range cfg.IgnorePatterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("policy: compiling ignore pattern %q: %w", pattern, err)
		}
		p.ignorePatterns = append(p.ignorePatterns, g)
	}
	for _, pattern := range cfg.SizeExceptions {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("policy: compiling size exception %q: %w", pattern, err)
		}
		p.sizeExceptions = append(p.sizeExceptions, g)
	}

	cache, err := otter.MustBuilder[string, *dirMatchers](dirCacheWeight).
		Cost(func(key string, value *dirMatchers) uint32 { return uint32(len(value.matchers)*256 + 1) }).
		Build()
	if err != nil {
		return nil, fmt.Errorf("policy: building ignore-matcher cache: %w", err)
	}
	p.dirIgnoreCache = cache

	return p, nil
}

// OnWarnLargeFile installs a callback invoked for files between
// warn_file_size_bytes and max_file_size_bytes (rule 4).
func (p *Policy) OnWarnLargeFile(fn func(absPath string, size int64)) {
	p.onWarnLargeFile = fn
}

func toExtSet(exts []string) map[string]bool {
	set := make(map[string]bool, len(exts))
	for _, e := range exts {
		set[strings.ToLower(e)] = true
	}
	return set
}

// Classify applies the ordered rules of §4.1 and returns the first matching
// Decision. It never returns an error: I/O failures degrade to SKIP(io_error).
func (p *Policy) Classify(absPath string) Decision {
	root, relPath, err := p.resolveRoot(absPath)
	if err != nil {
		return skip("out_of_root")
	}

	ext := strings.ToLower(filepath.Ext(absPath))
	if p.blockedExt[ext] {
		return skip("blocked")
	}
	if len(p.allowedExt) > 0 && !p.allowedExt[ext] {
		return skip("extension")
	}

	if ig, pattern := p.matchIgnored(root, relPath); ig {
		return ignored(pattern)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return skip("io_error")
	}
	if info.Size() > p.maxFileSizeBytes && !p.matchesAny(p.sizeExceptions, relPath) {
		return tooLarge()
	}
	if info.Size() > p.warnFileSizeBytes && p.onWarnLargeFile != nil {
		p.onWarnLargeFile(absPath, info.Size())
	}

	isBinary, err := p.looksBinary(absPath)
	if err != nil {
		return skip("io_error")
	}
	if isBinary {
		return binary()
	}

	return index()
}

// resolveRoot resolves symlinks (bounded by max_symlink_depth) and returns
// the watch root absPath lives under plus its POSIX-style relative path.
func (p *Policy) resolveRoot(absPath string) (root string, relPath string, err error) {
	resolved, err := p.resolveSymlinks(absPath)
	if err != nil {
		return "", "", err
	}
	for _, r := range p.watchRoots {
		rel, err := filepath.Rel(r, resolved)
		if err != nil {
			continue
		}
		if rel == "." || (!strings.HasPrefix(rel, "..") && rel != "") {
			if strings.HasPrefix(rel, "..") {
				continue
			}
			return r, filepath.ToSlash(rel), nil
		}
	}
	return "", "", fmt.Errorf("policy: %s is outside all watch roots", absPath)
}

func (p *Policy) resolveSymlinks(absPath string) (string, error) {
	current := absPath
	for depth := 0; depth <= p.maxSymlinkDepth; depth++ {
		info, err := os.Lstat(current)
		if err != nil {
			return "", err
		}
		if info.Mode()&os.ModeSymlink == 0 {
			return current, nil
		}
		target, err := os.Readlink(current)
		if err != nil {
			return "", err
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(current), target)
		}
		current = filepath.Clean(target)
	}
	return "", fmt.Errorf("policy: symlink depth exceeded for %s", absPath)
}

// matchIgnored checks explicit config patterns and then every ignore file
// from the watch root down to relPath's directory (rule 3). A path that
// any one ignore file matches is ignored: a negation un-ignores only
// within its own file and does not override an ancestor file's match.
func (p *Policy) matchIgnored(root, relPath string) (bool, string) {
	if p.matchesAny(p.ignorePatterns, relPath) {
		return true, "config_pattern"
	}

	dir := filepath.Join(root, filepath.FromSlash(filepath.Dir(relPath)))
	dm := p.loadDirMatchers(root, dir)

	ignoredState := false
	for _, m := range dm.matchers {
		if m.MatchesPath(relPath) {
			ignoredState = true
		}
	}
	if ignoredState {
		return true, "gitignore"
	}
	return false, ""
}

// loadDirMatchers walks from root down to dir, collecting a GitIgnore
// matcher per directory level that has an ignore file, root first and
// closest-to-file last.
func (p *Policy) loadDirMatchers(root, dir string) *dirMatchers {
	if cached, ok := p.dirIgnoreCache.Get(dir); ok {
		return cached
	}

	var segments []string
	rel, err := filepath.Rel(root, dir)
	if err == nil && rel != "." {
		segments = strings.Split(filepath.ToSlash(rel), "/")
	}

	dm := &dirMatchers{}
	current := root
	dm.matchers = append(dm.matchers, p.loadOneDir(current)...)
	for _, seg := range segments {
		current = filepath.Join(current, seg)
		dm.matchers = append(dm.matchers, p.loadOneDir(current)...)
	}

	p.dirIgnoreCache.Set(dir, dm)
	return dm
}

func (p *Policy) loadOneDir(dir string) []*ignore.GitIgnore {
	var out []*ignore.GitIgnore
	for _, name := range p.ignoreFileNames {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		lines := strings.Split(string(data), "\n")
		gi := ignore.CompileIgnoreLines(lines...)
		out = append(out, gi)
	}
	return out
}

func (p *Policy) matchesAny(patterns []glob.Glob, relPath string) bool {
	for _, g := range patterns {
		if g.Match(relPath) {
			return true
		}
	}
	return false
}

// looksBinary inspects the first 8KiB per §4.1 rule 5.
func (p *Policy) looksBinary(absPath string) (bool, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return false, err
	}
	defer f.Close()

	buf := make([]byte, 8192)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		if err.Error() == "EOF" {
			return false, nil
		}
		return false, err
	}
	buf = buf[:n]

	if bytes.IndexByte(buf, 0) >= 0 {
		return true, nil
	}

	invalid := 0
	total := 0
	for len(buf) > 0 {
		r, size := utf8.DecodeRune(buf)
		total++
		if r == utf8.RuneError && size == 1 {
			invalid++
		}
		buf = buf[size:]
	}
	if total == 0 {
		return false, nil
	}
	return float64(invalid)/float64(total) > p.binaryThreshold, nil
}

// Close releases the ignore-matcher cache.
func (p *Policy) Close() {
	p.dirIgnoreCache.Close()
}
