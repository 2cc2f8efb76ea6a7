// Package repo watches a git working tree of exploit directories and turns
// commits into sets of added/updated/removed exploit directories.
package repo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/starbugs-ctf/fireball/internal/gitutil"
)

// Dir identifies an exploit directory by its two path components.
type Dir struct {
	Challenge string
	Name      string
}

// RelPath returns the "<challenge>/<name>" relative path.
func (d Dir) RelPath() string {
	return filepath.Join(d.Challenge, d.Name)
}

// ExploitID returns the "<challenge>:<name>" catalog key.
func (d Dir) ExploitID() string {
	return d.Challenge + ":" + d.Name
}

// ScanResult is the outcome of a successful scan that observed new commits.
type ScanResult struct {
	Updated []Dir
	Removed []Dir
	NewHash string
}

// Repo wraps a git working tree. Not safe for concurrent use; callers
// serialize access (the orchestrator's main lock).
type Repo struct {
	Path   string // absolute path to the working tree
	Branch string

	lastProcessedHash string
}

// New validates that path contains a .git directory and returns a Repo. The
// caller must call Connect before the first Scan.
func New(path, branch string) (*Repo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("repo: resolve path: %w", err)
	}
	if _, err := os.Stat(filepath.Join(abs, ".git")); err != nil {
		return nil, fmt.Errorf("repo: %s does not look like a git working tree: %w", abs, err)
	}
	return &Repo{Path: abs, Branch: branch}, nil
}

// Connect initializes last_processed_hash from the current HEAD and returns
// every exploit directory present on disk, for bootstrapping the catalog
// without diffing.
func (r *Repo) Connect(ctx context.Context) ([]Dir, error) {
	hash, err := gitutil.Head(ctx, r.Path)
	if err != nil {
		return nil, err
	}
	r.lastProcessedHash = hash
	return r.listAllDirs()
}

// LastProcessedHash returns the most recently processed commit hash.
func (r *Repo) LastProcessedHash() string {
	return r.lastProcessedHash
}

// Scan fetches, checks out Branch, and diffs against the last processed
// commit. Returns (nil, nil) if HEAD did not move.
func (r *Repo) Scan(ctx context.Context) (*ScanResult, error) {
	if err := gitutil.FetchAll(ctx, r.Path); err != nil {
		return nil, fmt.Errorf("repo scan: %w", err)
	}
	if err := gitutil.CheckoutBranch(ctx, r.Path, r.Branch); err != nil {
		return nil, fmt.Errorf("repo scan: %w", err)
	}
	newHash, err := gitutil.Head(ctx, r.Path)
	if err != nil {
		return nil, fmt.Errorf("repo scan: %w", err)
	}
	if newHash == r.lastProcessedHash {
		return nil, nil
	}

	changed, err := gitutil.DiffNameStatus(ctx, r.Path, r.lastProcessedHash)
	if err != nil {
		return nil, fmt.Errorf("repo scan: %w", err)
	}

	dirs := make(map[Dir]struct{})
	for _, c := range changed {
		parts := strings.Split(c.Path, "/")
		if len(parts) < 3 {
			// Change outside exploit folders.
			continue
		}
		dirs[Dir{Challenge: parts[0], Name: parts[1]}] = struct{}{}
	}

	result := &ScanResult{NewHash: newHash}
	for d := range dirs {
		if _, err := os.Stat(filepath.Join(r.Path, d.RelPath())); err == nil {
			result.Updated = append(result.Updated, d)
		} else {
			result.Removed = append(result.Removed, d)
		}
	}

	r.lastProcessedHash = newHash
	return result, nil
}

// listAllDirs performs a two-level enumeration of <challenge>/<exploit>
// directories under the repo root.
func (r *Repo) listAllDirs() ([]Dir, error) {
	challenges, err := os.ReadDir(r.Path)
	if err != nil {
		return nil, fmt.Errorf("repo: list challenges: %w", err)
	}
	var dirs []Dir
	for _, ch := range challenges {
		if !ch.IsDir() || strings.HasPrefix(ch.Name(), ".") {
			continue
		}
		exploits, err := os.ReadDir(filepath.Join(r.Path, ch.Name()))
		if err != nil {
			continue
		}
		for _, ex := range exploits {
			if !ex.IsDir() {
				continue
			}
			dirs = append(dirs, Dir{Challenge: ch.Name(), Name: ex.Name()})
		}
	}
	return dirs, nil
}
