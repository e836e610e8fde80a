package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acorg/go3seq/internal/models"
)

func writeProfile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestParse(t *testing.T) {
	dir := t.TempDir()
	path := writeProfile(t, dir, "hiv.yaml", `
name: hiv
description: HIV-1 env alignments
pvalue_table: tables/PVT.3SEQ.2017.700
t: 0.05
filter: /etc/go3seq/strong.lua
`)

	p, err := Parse(path)
	require.NoError(t, err)
	assert.Equal(t, "hiv", p.Name)
	assert.Equal(t, filepath.Join(dir, "tables", "PVT.3SEQ.2017.700"), p.PValueTable)
	assert.Equal(t, 0.05, p.Threshold)
	assert.Equal(t, "/etc/go3seq/strong.lua", p.Filter)
	require.NoError(t, Validate(p))
}

func TestParseQuotedThreshold(t *testing.T) {
	p, err := Parse(writeProfile(t, t.TempDir(), "p.yml", "name: p\npvalue_table: /t\nt: \"0.050\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "0.050", p.Threshold)
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := Parse(writeProfile(t, t.TempDir(), "bad.yaml", "name: [unterminated\n"))
	assert.ErrorContains(t, err, "failed to parse profile YAML")
}

func TestLoadAll(t *testing.T) {
	project := t.TempDir()
	user := t.TempDir()

	writeProfile(t, project, "quick.yaml", "pvalue_table: /project/table\n")
	writeProfile(t, user, "quick.yml", "pvalue_table: /user/table\n")
	writeProfile(t, user, "named.yaml", "name: full\npvalue_table: /user/full\n")
	writeProfile(t, user, "README.md", "not a profile")

	profiles, err := LoadAll([]string{project, user, filepath.Join(t.TempDir(), "missing")})
	require.NoError(t, err)

	require.Len(t, profiles, 2)
	assert.Equal(t, "/project/table", profiles["quick"].PValueTable)
	assert.Equal(t, "/user/full", profiles["full"].PValueTable)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		profile models.Profile
		wantErr string
	}{
		{name: "ok", profile: models.Profile{Name: "a", PValueTable: "/t", Threshold: 7}},
		{name: "no name", profile: models.Profile{PValueTable: "/t"}, wantErr: "must have a name"},
		{name: "no table", profile: models.Profile{Name: "a"}, wantErr: "must set pvalue_table"},
		{name: "bad threshold", profile: models.Profile{Name: "a", PValueTable: "/t", Threshold: []any{1}}, wantErr: "t must be a number or a string"},
		{name: "bad prefix", profile: models.Profile{Name: "a", PValueTable: "/t", OutputPrefix: "x/y"}, wantErr: "path separator"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.profile)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
