package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultsWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	manager := NewManager(path)

	settings, err := manager.Load()
	require.NoError(t, err)

	assert.Equal(t, "csv", settings.Sync.CSVDirectory)
	assert.Equal(t, 10, settings.Sync.RatingScaleMax)
	assert.True(t, settings.Sync.CollapseSameDayDuplicates)
	assert.Equal(t, 24, settings.Sync.IntervalHours)
	assert.Equal(t, 8585, settings.Server.Port)
	assert.True(t, settings.Letterboxd.Headless)

	_, err = os.Stat(path)
	assert.NoError(t, err, "defaults are written to disk on first load")
}

func TestSaveLoadRoundtrip(t *testing.T) {
	manager := NewManager(filepath.Join(t.TempDir(), "settings.json"))

	settings := DefaultSettings()
	settings.Trakt.ClientID = "client-id"
	settings.Trakt.ClientSecret = "client-secret"
	settings.Trakt.AccessToken = "access"
	settings.Letterboxd.Username = "someone"
	settings.Sync.RatingScaleMax = 5

	require.NoError(t, manager.Save(settings))

	loaded, err := manager.Load()
	require.NoError(t, err)
	assert.Equal(t, "client-id", loaded.Trakt.ClientID)
	assert.Equal(t, "access", loaded.Trakt.AccessToken)
	assert.Equal(t, "someone", loaded.Letterboxd.Username)
	assert.Equal(t, 5, loaded.Sync.RatingScaleMax)
}

func TestLoadMigratesLegacyFlatKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	legacy := map[string]string{
		"traktClientId":      "old-id",
		"traktClientSecret":  "old-secret",
		"letterboxdUsername": "old-user",
		"letterboxdPassword": "old-pass",
	}
	raw, err := json.Marshal(legacy)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	settings, err := NewManager(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "old-id", settings.Trakt.ClientID)
	assert.Equal(t, "old-secret", settings.Trakt.ClientSecret)
	assert.Equal(t, "old-user", settings.Letterboxd.Username)
	assert.Equal(t, "old-pass", settings.Letterboxd.Password)
	assert.Empty(t, settings.LegacyTraktClientID, "legacy keys are cleared after migration")
}

func TestLoadBackfillsMissingDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	partial := `{"trakt":{"clientId":"id","clientSecret":"secret"}}`
	require.NoError(t, os.WriteFile(path, []byte(partial), 0o644))

	settings, err := NewManager(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "csv", settings.Sync.CSVDirectory)
	assert.Equal(t, 10, settings.Sync.RatingScaleMax)
	assert.Equal(t, 3, settings.Sync.FetchRetryAttempts)
	assert.Equal(t, 8585, settings.Server.Port)
	assert.Equal(t, "0.0.0.0", settings.Server.Host)
}

func TestSaveLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	manager := NewManager(path)

	require.NoError(t, manager.Save(DefaultSettings()))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestLoadWithoutPathFails(t *testing.T) {
	_, err := NewManager("").Load()
	assert.Error(t, err)
}
