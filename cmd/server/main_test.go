package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalogCommand(t *testing.T) {
	t.Chdir(t.TempDir())

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"catalog"})
	require.NoError(t, cmd.Execute())

	var got struct {
		Source      string `json:"source"`
		Departments []struct {
			Name string `json:"name"`
		} `json:"departments"`
		SLA map[string]string `json:"sla"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "embedded default", got.Source)
	assert.Len(t, got.Departments, 4)
	assert.Equal(t, "30m0s", got.SLA["critical"])
}

func TestCatalogCommand_BadOverride(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.cue"), []byte(`departments: "nope"`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("catalog:\n  path: bad.cue\n"), 0o600))

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"catalog"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading catalog")
}
