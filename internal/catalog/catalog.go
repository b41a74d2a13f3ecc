// Package catalog loads the static reference data shared by the registry and
// the escalator: departments and their issue types, the severity rule table,
// and per-severity acknowledgement SLAs. The data is a CUE document checked
// against an embedded schema; an embedded default ships with the binary.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/matthewbaird/civicpulse/internal/types"
)

//go:embed schema.cue
var schemaSource []byte

//go:embed default.cue
var defaultSource []byte

// SeverityRule assigns a severity to alerts of an issue type (empty = any)
// whose impact descriptor satisfies Condition (empty = always).
type SeverityRule struct {
	ID          string         `json:"id"`
	IssueType   string         `json:"issue_type,omitempty"`
	Condition   string         `json:"condition,omitempty"`
	Severity    types.Severity `json:"severity"`
	Description string         `json:"description,omitempty"`
}

// rawCatalog is the decoded CUE shape.
type rawCatalog struct {
	Departments     []types.Department `json:"departments"`
	SeverityRules   []SeverityRule     `json:"severity_rules"`
	DefaultSeverity types.Severity     `json:"default_severity"`
	SLA             map[string]string  `json:"sla"`
}

// Catalog is immutable after Load.
type Catalog struct {
	departments     []types.Department
	byIssueType     map[types.IssueType]string
	canonical       map[string]types.IssueType
	rules           []SeverityRule
	defaultSeverity types.Severity
	sla             map[types.Severity]time.Duration
}

// Default returns the embedded catalog. It panics only if the embedded
// document is broken, which the package tests guard against.
func Default() *Catalog {
	c, err := Parse(defaultSource, "default.cue")
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded default is invalid: %v", err))
	}
	return c
}

// Load reads a catalog from path, or returns the embedded default when path
// is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Parse(defaultSource, "default.cue")
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	return Parse(src, path)
}

// Parse validates src against the catalog schema and builds a Catalog.
func Parse(src []byte, filename string) (*Catalog, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compiling catalog schema: %w", err)
	}
	data := ctx.CompileBytes(src, cue.Filename(filename))
	if err := data.Err(); err != nil {
		return nil, fmt.Errorf("compiling %s: %w", filename, err)
	}

	val := schema.LookupPath(cue.ParsePath("#Catalog")).Unify(data)
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validating %s: %w", filename, err)
	}

	var raw rawCatalog
	if err := val.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filename, err)
	}
	return build(raw)
}

func build(raw rawCatalog) (*Catalog, error) {
	c := &Catalog{
		byIssueType:     make(map[types.IssueType]string),
		canonical:       make(map[string]types.IssueType),
		defaultSeverity: raw.DefaultSeverity,
		sla:             make(map[types.Severity]time.Duration),
	}

	seenDept := make(map[string]bool)
	for _, d := range raw.Departments {
		key := strings.ToLower(d.Name)
		if seenDept[key] {
			return nil, fmt.Errorf("department %q declared twice", d.Name)
		}
		seenDept[key] = true
		for _, it := range d.IssueTypes {
			if owner, dup := c.byIssueType[it]; dup {
				return nil, fmt.Errorf("issue type %q owned by both %s and %s", it, owner, d.Name)
			}
			c.byIssueType[it] = d.Name
			c.canonical[strings.ToLower(string(it))] = it
		}
		c.departments = append(c.departments, types.Department{
			Name:       d.Name,
			IssueTypes: append([]types.IssueType(nil), d.IssueTypes...),
		})
	}

	seenRule := make(map[string]bool)
	for _, r := range raw.SeverityRules {
		if seenRule[r.ID] {
			return nil, fmt.Errorf("severity rule %q declared twice", r.ID)
		}
		seenRule[r.ID] = true
		if r.IssueType != "" {
			it, ok := c.canonical[strings.ToLower(r.IssueType)]
			if !ok {
				return nil, fmt.Errorf("severity rule %q references unknown issue type %q", r.ID, r.IssueType)
			}
			r.IssueType = string(it)
		}
		c.rules = append(c.rules, r)
	}

	for sev, spec := range raw.SLA {
		d, err := time.ParseDuration(spec)
		if err != nil {
			return nil, fmt.Errorf("sla %s: %w", sev, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("sla %s must be positive", sev)
		}
		c.sla[types.Severity(sev)] = d
	}
	return c, nil
}

// Departments returns the departments in declaration order.
func (c *Catalog) Departments() []types.Department {
	out := make([]types.Department, len(c.departments))
	for i, d := range c.departments {
		out[i] = types.Department{Name: d.Name, IssueTypes: append([]types.IssueType(nil), d.IssueTypes...)}
	}
	return out
}

// Department looks a department up by name, ignoring case.
func (c *Catalog) Department(name string) (types.Department, bool) {
	for _, d := range c.departments {
		if strings.EqualFold(d.Name, name) {
			return types.Department{Name: d.Name, IssueTypes: append([]types.IssueType(nil), d.IssueTypes...)}, true
		}
	}
	return types.Department{}, false
}

// DepartmentFor returns the department owning an issue type.
func (c *Catalog) DepartmentFor(it types.IssueType) (string, bool) {
	if d, ok := c.byIssueType[it]; ok {
		return d, true
	}
	canon, ok := c.canonical[strings.ToLower(string(it))]
	if !ok {
		return "", false
	}
	return c.byIssueType[canon], true
}

// Canonical maps a case-insensitive issue type name to its catalog spelling.
func (c *Catalog) Canonical(name string) (types.IssueType, bool) {
	it, ok := c.canonical[strings.ToLower(strings.TrimSpace(name))]
	return it, ok
}

// IssueTypes lists every known issue type in department order.
func (c *Catalog) IssueTypes() []types.IssueType {
	var out []types.IssueType
	for _, d := range c.departments {
		out = append(out, d.IssueTypes...)
	}
	return out
}

// Rules returns the severity rule table in declaration order.
func (c *Catalog) Rules() []SeverityRule {
	return append([]SeverityRule(nil), c.rules...)
}

// DefaultSeverity applies when no rule matches.
func (c *Catalog) DefaultSeverity() types.Severity {
	return c.defaultSeverity
}

// SLA returns the acknowledgement deadline for a severity, if one is set.
func (c *Catalog) SLA(sev types.Severity) (time.Duration, bool) {
	d, ok := c.sla[sev]
	return d, ok
}

// SLAPolicy returns a copy of every configured deadline.
func (c *Catalog) SLAPolicy() map[types.Severity]time.Duration {
	out := make(map[types.Severity]time.Duration, len(c.sla))
	for k, v := range c.sla {
		out[k] = v
	}
	return out
}
