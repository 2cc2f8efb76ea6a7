// Package exploit loads an exploit directory (manifest + image build) into
// a catalog entry.
package exploit

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/starbugs-ctf/fireball/internal/engine"
)

// ManifestFile is the name of the TOML manifest every exploit directory
// must carry.
const ManifestFile = "siren.toml"

// Exploit is an immutable catalog entry. Replaced wholesale on update,
// never mutated in place.
type Exploit struct {
	ExploitID      string // "<challenge>:<name>"
	ChallengeName  string
	Name           string
	ImageID        string
	TimeoutSeconds int
	Enabled        bool
	IgnoreTeams    map[string]struct{}
}

// IgnoresTeam reports whether slug is excluded from this exploit's targets.
func (e *Exploit) IgnoresTeam(slug string) bool {
	_, ok := e.IgnoreTeams[slug]
	return ok
}

// ParseError wraps a manifest or image-build failure for a single exploit
// directory. The scan that encounters it logs and skips the directory
// rather than aborting.
type ParseError struct {
	Dir string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("exploit: parse %s: %v", e.Dir, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// manifest is the on-disk shape of siren.toml.
type manifest struct {
	Timeout     int            `toml:"timeout"`
	Enabled     *bool          `toml:"enabled"`
	IgnoreTeams []string       `toml:"ignore_teams"`
	Meta        map[string]any `toml:"meta"`
}

// FromPath reads dirAbs/siren.toml and builds the exploit's container image,
// returning a complete catalog entry. challenge and name come from the
// directory's two path components, not the manifest.
func FromPath(ctx context.Context, eng engine.Client, dirAbs, challenge, name string) (*Exploit, error) {
	raw, err := os.ReadFile(filepath.Join(dirAbs, ManifestFile))
	if err != nil {
		return nil, &ParseError{Dir: dirAbs, Err: fmt.Errorf("read manifest: %w", err)}
	}

	dec := toml.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var m manifest
	if err := dec.Decode(&m); err != nil {
		return nil, &ParseError{Dir: dirAbs, Err: fmt.Errorf("decode manifest: %w", err)}
	}
	if m.Timeout <= 0 {
		return nil, &ParseError{Dir: dirAbs, Err: fmt.Errorf("manifest: timeout must be positive, got %d", m.Timeout)}
	}

	imageID, err := eng.BuildImage(ctx, dirAbs)
	if err != nil {
		return nil, &ParseError{Dir: dirAbs, Err: fmt.Errorf("build image: %w", err)}
	}

	enabled := true
	if m.Enabled != nil {
		enabled = *m.Enabled
	}
	ignore := make(map[string]struct{}, len(m.IgnoreTeams))
	for _, slug := range m.IgnoreTeams {
		ignore[slug] = struct{}{}
	}

	return &Exploit{
		ExploitID:      challenge + ":" + name,
		ChallengeName:  challenge,
		Name:           name,
		ImageID:        imageID,
		TimeoutSeconds: m.Timeout,
		Enabled:        enabled,
		IgnoreTeams:    ignore,
	}, nil
}
