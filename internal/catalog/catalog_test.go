package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matthewbaird/civicpulse/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	depts := c.Departments()
	require.Len(t, depts, 4)
	assert.Equal(t, "Roads", depts[0].Name)

	dept, ok := c.DepartmentFor(types.IssuePowerOutage)
	require.True(t, ok)
	assert.Equal(t, "Electricity", dept)

	it, ok := c.Canonical(" pothole ")
	require.True(t, ok)
	assert.Equal(t, types.IssuePothole, it)

	_, ok = c.Canonical("Graffiti")
	assert.False(t, ok)

	assert.Equal(t, types.SeverityModerate, c.DefaultSeverity())

	sla, ok := c.SLA(types.SeverityCritical)
	require.True(t, ok)
	assert.Equal(t, 30*time.Minute, sla)
	_, ok = c.SLA(types.SeverityLow)
	assert.False(t, ok)

	assert.NotEmpty(t, c.Rules())
	assert.Contains(t, c.IssueTypes(), types.IssueWaterPipeline)
}

func TestParse_RejectsUnknownSeverity(t *testing.T) {
	src := []byte(`
departments: [{name: "Roads", issue_types: ["Pothole"]}]
severity_rules: [{id: "x", issue_type: "Pothole", severity: "urgent"}]
sla: {}
`)
	_, err := Parse(src, "bad.cue")
	require.Error(t, err)
}

func TestParse_RejectsUnknownSLAKey(t *testing.T) {
	src := []byte(`
departments: [{name: "Roads", issue_types: ["Pothole"]}]
severity_rules: []
sla: {urgent: "5m"}
`)
	_, err := Parse(src, "bad.cue")
	require.Error(t, err)
}

func TestParse_RejectsSharedIssueType(t *testing.T) {
	src := []byte(`
departments: [
	{name: "Roads", issue_types: ["Pothole"]},
	{name: "Works", issue_types: ["Pothole"]},
]
severity_rules: []
sla: {}
`)
	_, err := Parse(src, "bad.cue")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "owned by both")
}

func TestParse_RejectsRuleForUnknownIssueType(t *testing.T) {
	src := []byte(`
departments: [{name: "Roads", issue_types: ["Pothole"]}]
severity_rules: [{id: "x", issue_type: "Graffiti", severity: "low"}]
sla: {}
`)
	_, err := Parse(src, "bad.cue")
	require.Error(t, err)
}

func TestParse_DefaultSeverityFallback(t *testing.T) {
	src := []byte(`
departments: [{name: "Roads", issue_types: ["Pothole"]}]
severity_rules: []
sla: {critical: "10m"}
`)
	c, err := Parse(src, "min.cue")
	require.NoError(t, err)
	assert.Equal(t, types.SeverityModerate, c.DefaultSeverity())
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.cue")
	src := []byte(`
departments: [{name: "Parks", issue_types: ["FallenTree"]}]
severity_rules: [{id: "tree", issue_type: "fallentree", severity: "critical"}]
default_severity: "low"
sla: {critical: "15m"}
`)
	require.NoError(t, os.WriteFile(path, src, 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, types.SeverityLow, c.DefaultSeverity())
	rules := c.Rules()
	require.Len(t, rules, 1)
	assert.Equal(t, "FallenTree", rules[0].IssueType)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.cue"))
	require.Error(t, err)
}
