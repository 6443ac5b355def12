package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	s := Load(filepath.Join(t.TempDir(), "login_state.json"))

	assert.Equal(t, "", s.LoggedInUser)
	assert.Equal(t, DefaultAPI, s.CurrentAPI)
	assert.Equal(t, DefaultTemperature, s.Temperature)
}

func TestSetUserPersistsAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "login_state.json")

	s := Load(path)
	require.NoError(t, s.SetUser("bob"))

	resumed := Load(path)
	assert.Equal(t, "bob", resumed.LoggedInUser)
}

func TestClearUserPersistsNull(t *testing.T) {
	path := filepath.Join(t.TempDir(), "login_state.json")

	s := Load(path)
	require.NoError(t, s.SetUser("bob"))
	require.NoError(t, s.ClearUser())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"logged_in_user": null`)

	resumed := Load(path)
	assert.Equal(t, "", resumed.LoggedInUser)
}

func TestLoadBrokenFileGivesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "login_state.json")
	require.NoError(t, os.WriteFile(path, []byte("{битый json"), 0o644))

	s := Load(path)
	assert.Equal(t, "", s.LoggedInUser)
	assert.Equal(t, DefaultAPI, s.CurrentAPI)
}
