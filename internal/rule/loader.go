package rule

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/seqguard/seqguard/internal/logger"
)

// ruleFile is the on-disk document shape: either a top-level rules
// list or a single rule mapping.
type ruleFile struct {
	Rules []*Rule `yaml:"rules"`
}

// Parse parses and validates one rule document. On any violation it
// returns ValidationErrors and no rules — never a partial set.
func Parse(data []byte) ([]*Rule, error) {
	var doc ruleFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, ValidationErrors{&ValidationError{Path: "rules", Cause: fmt.Sprintf("not valid YAML: %v", err)}}
	}

	rules := doc.Rules
	if len(rules) == 0 {
		// Single-rule document form.
		var single Rule
		if err := yaml.Unmarshal(data, &single); err != nil {
			return nil, ValidationErrors{&ValidationError{Path: "rules", Cause: fmt.Sprintf("not valid YAML: %v", err)}}
		}
		if single.ID == "" && len(single.Steps) == 0 {
			return nil, ValidationErrors{&ValidationError{Path: "rules", Cause: "document defines no rules"}}
		}
		rules = []*Rule{&single}
	}

	var errs ValidationErrors
	seen := make(map[string]int, len(rules))
	for i, r := range rules {
		path := fmt.Sprintf("rules[%d]", i)
		errs = append(errs, r.validate(path)...)
		if r.ID == "" {
			continue
		}
		if prev, dup := seen[r.ID]; dup {
			errs = append(errs, &ValidationError{
				Path:  path + ".rule_id",
				Cause: fmt.Sprintf("duplicate rule_id %q (already defined at rules[%d])", r.ID, prev),
			})
			continue
		}
		seen[r.ID] = i
	}
	if err := errs.ErrOrNil(); err != nil {
		return nil, err
	}
	return rules, nil
}

// Loader accumulates validated rules from multiple sources while
// enforcing rule_id uniqueness across the whole set. A source that
// fails validation contributes nothing; previously loaded rules are
// unaffected.
type Loader struct {
	rules  []*Rule
	source map[string]string // rule_id -> where it came from
}

// NewLoader creates an empty rule loader.
func NewLoader() *Loader {
	return &Loader{source: make(map[string]string)}
}

// LoadBytes validates a rule document and adds its rules under the
// given source label.
func (l *Loader) LoadBytes(source string, data []byte) error {
	rules, err := Parse(data)
	if err != nil {
		return err
	}

	var errs ValidationErrors
	for _, r := range rules {
		if prev, dup := l.source[r.ID]; dup {
			errs = append(errs, &ValidationError{
				Path:  "rules.rule_id",
				Cause: fmt.Sprintf("duplicate rule_id %q (already loaded from %s)", r.ID, prev),
			})
		}
	}
	if err := errs.ErrOrNil(); err != nil {
		return err
	}

	for _, r := range rules {
		l.source[r.ID] = source
		l.rules = append(l.rules, r)
	}
	return nil
}

// LoadFile loads one rule file from disk.
func (l *Loader) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading rule file: %w", err)
	}
	return l.LoadBytes(path, data)
}

// LoadDir loads every .yaml/.yml file in dir, in lexical order so the
// resulting rule order is stable. Files that fail validation are
// skipped with a warning; the error for the last failing file is
// returned alongside the successfully loaded remainder.
func (l *Loader) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading rules dir: %w", err)
	}

	var lastErr error
	for _, entry := range entries {
		if entry.IsDir() || !isRuleFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := l.LoadFile(path); err != nil {
			logger.Warn().Str("file", path).Err(err).Msg("Skipping invalid rule file")
			lastErr = fmt.Errorf("%s: %w", path, err)
		}
	}
	return lastErr
}

// LoadFS loads every rule file in an embedded filesystem, used for the
// builtin rule pack.
func (l *Loader) LoadFS(fsys fs.FS) error {
	return fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !isRuleFile(path) {
			return err
		}
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return err
		}
		return l.LoadBytes("builtin:"+path, data)
	})
}

// Rules returns the loaded rules in load order.
func (l *Loader) Rules() []*Rule { return l.rules }

// Snapshot freezes the loaded set into an immutable snapshot shared by
// all sessions created afterward.
func (l *Loader) Snapshot() *Snapshot {
	return newSnapshot(l.rules)
}

func isRuleFile(name string) bool {
	switch filepath.Ext(name) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Snapshot is an immutable view of a loaded rule set. The matching
// path only ever reads it; reloads build a fresh snapshot rather than
// mutating in place.
type Snapshot struct {
	rules            []*Rule
	byID             map[string]*Rule
	maxWindowActions int
}

func newSnapshot(rules []*Rule) *Snapshot {
	s := &Snapshot{
		rules: rules,
		byID:  make(map[string]*Rule, len(rules)),
	}
	for _, r := range rules {
		s.byID[r.ID] = r
		if w := r.EffectiveWindow(); w.Actions > s.maxWindowActions {
			s.maxWindowActions = w.Actions
		}
	}
	return s
}

// Rules returns the snapshot's rules in load order. Callers must not
// modify the returned slice.
func (s *Snapshot) Rules() []*Rule { return s.rules }

// Len returns the number of rules in the snapshot.
func (s *Snapshot) Len() int { return len(s.rules) }

// Get looks a rule up by ID.
func (s *Snapshot) Get(id string) (*Rule, bool) {
	r, ok := s.byID[id]
	return r, ok
}

// IDs returns the sorted rule IDs, for stable listings.
func (s *Snapshot) IDs() []string {
	ids := make([]string, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MaxWindowActions is the largest action-count window across all
// rules; it bounds how much per-session history the tracker retains.
func (s *Snapshot) MaxWindowActions() int { return s.maxWindowActions }
