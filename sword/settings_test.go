package sword_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sword-client/models"
	"sword-client/sword"
)

func TestSettingsValidate(t *testing.T) {
	assert.NoError(t, stubSettings().Validate())

	s := stubSettings()
	s.Engine = "unregistered"
	assert.ErrorContains(t, s.Validate(), "unknown server engine")

	s = stubSettings()
	s.UpdateFrequency = "often"
	assert.ErrorContains(t, s.Validate(), "update frequency")

	s = stubSettings()
	s.Username = ""
	assert.ErrorContains(t, s.Validate(), "username")

	s = stubSettings()
	s.Email = ""
	assert.ErrorContains(t, s.Validate(), "email")
}

func TestSettingsFromModel(t *testing.T) {
	updated := time.Date(2026, 2, 14, 8, 0, 0, 0, time.UTC)
	server := &models.RemoteServer{
		Name:            "arXiv.org",
		Engine:          "stub",
		Username:        "depositor",
		Password:        "hunter2",
		Email:           "depositor@example.org",
		UpdateFrequency: "1w3d",
		ServiceDocument: []byte(`{"version":"1.3","collections":{"http://example.org/col/1":{"title":"physics"}}}`),
		LastUpdated:     &updated,
	}
	server.ID = 7

	s, err := sword.SettingsFromModel(server)
	require.NoError(t, err)
	assert.Equal(t, uint(7), s.ServerID)
	assert.Equal(t, updated, s.LastUpdated)
	require.NotNil(t, s.ServiceDocument)
	assert.Contains(t, s.ServiceDocument.Collections, "http://example.org/col/1")
}

func TestSettingsFromModel_NoCachedDocument(t *testing.T) {
	server := &models.RemoteServer{
		Name:            "arXiv.org",
		Engine:          "stub",
		Username:        "depositor",
		Password:        "hunter2",
		Email:           "depositor@example.org",
		UpdateFrequency: "1w",
	}

	s, err := sword.SettingsFromModel(server)
	require.NoError(t, err)
	assert.Nil(t, s.ServiceDocument)
	assert.True(t, s.NeedsUpdate(time.Now()))
}

func TestSettingsFromModel_CorruptDocument(t *testing.T) {
	server := &models.RemoteServer{
		Name:            "arXiv.org",
		Engine:          "stub",
		Username:        "depositor",
		Password:        "hunter2",
		Email:           "depositor@example.org",
		UpdateFrequency: "1w",
		ServiceDocument: []byte("{"),
	}

	_, err := sword.SettingsFromModel(server)
	assert.Error(t, err)
}
