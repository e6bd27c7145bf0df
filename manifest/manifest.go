// Package manifest handles kindred.toml typesystem configuration.
//
// A manifest declares a type system's static shape: the tags it contains,
// the hierarchy edges between them, fill values for reconciliation, and
// table-driven unification rules. Handlers with real behavior are still
// registered in code; the manifest covers the declarative remainder.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"

	"github.com/chazu/kindred/dispatch"
)

var log = commonlog.GetLogger("kindred.manifest")

// ManifestFile is the file name looked up by Load and FindAndLoad.
const ManifestFile = "kindred.toml"

// Manifest represents a kindred.toml typesystem configuration.
type Manifest struct {
	Project Project `toml:"project"`
	Tags    []Tag   `toml:"tags"`
	Unify   []Unify `toml:"unify"`

	// Dir is the directory containing the kindred.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Tag declares one type tag: its generalization parents and, optionally,
// the fill value used when reconciliation backfills a column of this type.
type Tag struct {
	Name    string   `toml:"name"`
	Parents []string `toml:"parents"`
	Fill    any      `toml:"fill"`
}

// Unify declares one table-driven unification rule: the pair (a, b)
// resolves to result. Rules are registered mirrored, so declaring one
// order covers both.
type Unify struct {
	A      string `toml:"a"`
	B      string `toml:"b"`
	Result string `toml:"result"`
}

// Load parses a kindred.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a kindred.toml file, then
// loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", startDir, err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, ManifestFile)); err == nil {
			return Load(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// Validate checks the manifest's internal consistency: tag names must be
// unique and non-empty, parents and unify rules may only reference declared
// tags, and no unify pair may be declared twice in either order.
func (m *Manifest) Validate() error {
	declared := make(map[string]bool, len(m.Tags))
	for _, tag := range m.Tags {
		if tag.Name == "" {
			return fmt.Errorf("manifest: tag with empty name")
		}
		if declared[tag.Name] {
			return fmt.Errorf("manifest: duplicate tag %q", tag.Name)
		}
		declared[tag.Name] = true
	}
	for _, tag := range m.Tags {
		for _, p := range tag.Parents {
			if !declared[p] {
				return fmt.Errorf("manifest: tag %q references undeclared parent %q", tag.Name, p)
			}
		}
	}

	seen := make(map[[2]string]bool, len(m.Unify))
	for _, u := range m.Unify {
		if !declared[u.A] {
			return fmt.Errorf("manifest: unify rule references undeclared tag %q", u.A)
		}
		if !declared[u.B] {
			return fmt.Errorf("manifest: unify rule references undeclared tag %q", u.B)
		}
		if !declared[u.Result] {
			return fmt.Errorf("manifest: unify rule (%s, %s) resolves to undeclared tag %q", u.A, u.B, u.Result)
		}
		if seen[[2]string{u.A, u.B}] || seen[[2]string{u.B, u.A}] {
			return fmt.Errorf("manifest: duplicate unify rule for (%s, %s)", u.A, u.B)
		}
		seen[[2]string{u.A, u.B}] = true
	}
	return nil
}

// Apply registers the manifest's declarations on an engine: hierarchy
// edges, fill values, and table-driven unify handlers. The engine must not
// be frozen. Apply validates first, so a loaded manifest can be applied
// directly.
func Apply(m *Manifest, e *dispatch.Engine) error {
	if err := m.Validate(); err != nil {
		return err
	}

	for _, tag := range m.Tags {
		child := dispatch.TypeTag(tag.Name)
		for _, p := range tag.Parents {
			if err := e.AddHierarchyEdge(child, dispatch.TypeTag(p)); err != nil {
				return fmt.Errorf("manifest: tag %q: %w", tag.Name, err)
			}
		}
		if tag.Fill != nil {
			fill := tag.Fill
			if err := e.RegisterFill(child, func() any { return fill }); err != nil {
				return fmt.Errorf("manifest: tag %q: %w", tag.Name, err)
			}
		}
	}

	for _, u := range m.Unify {
		result := dispatch.TypeTag(u.Result)
		fn := func(a, b dispatch.TypeChain) (dispatch.TypeTag, error) {
			return result, nil
		}
		if err := e.RegisterUnify(dispatch.TypeTag(u.A), dispatch.TypeTag(u.B), fn); err != nil {
			return fmt.Errorf("manifest: unify rule (%s, %s): %w", u.A, u.B, err)
		}
	}

	log.Infof("applied manifest %q: %d tags, %d unify rules", m.Project.Name, len(m.Tags), len(m.Unify))
	return nil
}

// Build creates a frozen engine from the manifest. Callers needing to add
// code-level handlers use Apply on their own engine instead.
func Build(m *Manifest) (*dispatch.Engine, error) {
	e := dispatch.NewEngine()
	if err := Apply(m, e); err != nil {
		return nil, err
	}
	if err := e.Freeze(); err != nil {
		return nil, err
	}
	return e, nil
}
