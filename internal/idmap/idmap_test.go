package idmap

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile_uuids.json")

	s, err := Open(path)
	require.NoError(t, err)

	home := s.Home()
	assert.NotEmpty(t, home)
	assert.Equal(t, strings.ToUpper(home), home)
	assert.FileExists(t, path)

	again, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, home, again.Home())
}

func TestModelIDIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.json")
	s, err := Open(path)
	require.NoError(t, err)

	first, err := s.ModelID("Hiyori")
	require.NoError(t, err)
	second, err := s.ModelID("Hiyori")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, s.Len())

	reopened, err := Open(path)
	require.NoError(t, err)
	third, err := reopened.ModelID("Hiyori")
	require.NoError(t, err)
	assert.Equal(t, first, third)
	assert.Equal(t, 1, reopened.Len())

	other, err := reopened.ModelID("Mao")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestOpenMigratesLegacyLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.json")
	legacy := `{"Home": "HOME-ID", "Hiyori": "HIYORI-ID", "Mao": "MAO-ID"}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	s, err := Open(path)
	require.NoError(t, err)

	assert.Equal(t, "HOME-ID", s.Home())
	id, err := s.ModelID("Mao")
	require.NoError(t, err)
	assert.Equal(t, "MAO-ID", id)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var m mapping
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "HOME-ID", m.Home)
	assert.Equal(t, map[string]string{"Hiyori": "HIYORI-ID", "Mao": "MAO-ID"}, m.Models)
}

func TestOpenRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := Open(path)
	assert.Error(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(raw))
}
