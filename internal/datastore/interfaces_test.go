package datastore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/pestguard-go/internal/conf"
)

// createTestSettings creates minimal settings for database tests.
func createTestSettings(t *testing.T) *conf.Settings {
	t.Helper()
	settings := &conf.Settings{}
	settings.Main.Name = "test-node"
	return settings
}

// createDatabase initializes a temporary database for testing purposes.
// It ensures the database connection is opened and handles potential errors.
func createDatabase(t *testing.T, settings *conf.Settings) Interface {
	t.Helper()
	tempDir := t.TempDir()
	settings.Database.SQLite.Enabled = true
	settings.Database.SQLite.Path = tempDir + "/test.db"

	dataStore := New(settings)

	require.NoError(t, dataStore.Open(), "Failed to open database")

	t.Cleanup(func() {
		assert.NoError(t, dataStore.Close(), "Failed to close datastore")
	})

	return dataStore
}

// seedCamera creates an integration with one connected camera and returns the
// camera row, for tests that need a valid owner chain.
func seedCamera(t *testing.T, ds Interface) Camera {
	t.Helper()

	integration := Integration{
		Name:    "test-nvr",
		Kind:    "unifi_protect",
		Host:    "https://127.0.0.1",
		Enabled: true,
		Status:  "connected",
	}
	require.NoError(t, ds.SaveIntegration(&integration))

	cameras := []Camera{
		{Name: "barn-east", ProviderID: "dev-1", Status: "online", HasSpeaker: true, Enabled: true},
	}
	require.NoError(t, ds.SyncCameras(integration.ID, cameras))

	active, err := ds.ActiveCameras()
	require.NoError(t, err)
	require.Len(t, active, 1)
	return active[0]
}
