package services_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sword-client/models"
	"sword-client/sword"
)

// relayDocURL is where the relay engine fetches its service document from,
// set per test.
var relayDocURL string

func init() {
	sword.Register("relay", func(*sword.Settings) sword.Engine { return relayEngine{} })
}

// relayEngine is a minimal JSON-speaking engine for workflow tests that need
// an adjustable service document endpoint.
type relayEngine struct{}

func (relayEngine) Name() string               { return "relay" }
func (relayEngine) ServiceDocumentURL() string { return relayDocURL }

func (relayEngine) ParseServiceDocument(raw []byte) (*sword.ServiceDocument, error) {
	var doc sword.ServiceDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (relayEngine) MediaHeaders(http.Header, *sword.FileInfo, *sword.Metadata) {}
func (relayEngine) MetadataHeaders(http.Header, *sword.Metadata)               {}
func (relayEngine) StatusHeaders(http.Header)                                  {}

func (relayEngine) MetadataEntry(*sword.Metadata, []sword.MediaResult) ([]byte, error) {
	return []byte("{}"), nil
}

func (relayEngine) MediaLink([]byte) string             { return "" }
func (relayEngine) MediaError(int, []byte) string       { return "media error" }
func (relayEngine) MetadataLinks([]byte) sword.Links    { return sword.Links{} }
func (relayEngine) MetadataError(int, []byte) string    { return "metadata error" }
func (relayEngine) ParseStatus([]byte) sword.StatusInfo { return sword.StatusInfo{} }

func seedRelayServer(t *testing.T, store *memStore, doc []byte, lastUpdated *time.Time) uint {
	t.Helper()
	server := &models.RemoteServer{
		Name:            "relay",
		Engine:          "relay",
		Username:        "depositor",
		Password:        "hunter2",
		Email:           "account@example.org",
		UpdateFrequency: "1w",
		ServiceDocument: doc,
		LastUpdated:     lastUpdated,
	}
	require.NoError(t, store.CreateServer(context.Background(), server))
	return server.ID
}

func TestChooseServer_RefreshFailureFallsBackToCachedDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()
	relayDocURL = srv.URL

	raw, err := json.Marshal(sword.ServiceDocument{
		Collections: map[string]sword.Collection{
			"http://example.org/col/1": {Title: "physics"},
		},
	})
	require.NoError(t, err)

	store := newMemStore()
	seedRecord(store, 100)
	stale := time.Now().Add(-30 * 24 * time.Hour)
	serverID := seedRelayServer(t, store, raw, &stale)
	wf := newTestWorkflow(store)

	start, err := wf.Start(context.Background(), 5, 100, 0)
	require.NoError(t, err)

	// The refresh fails against the closed remote, the cached collections
	// still carry the step.
	step1, err := wf.ChooseServer(context.Background(), start.SID, serverID)
	require.NoError(t, err)
	require.Len(t, step1.Collections, 1)
	assert.Equal(t, "physics", step1.Collections[0].Title)
}

func TestChooseServer_RefreshFailureWithoutDocumentFailsStep(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()
	relayDocURL = srv.URL

	store := newMemStore()
	seedRecord(store, 100)
	serverID := seedRelayServer(t, store, nil, nil)
	wf := newTestWorkflow(store)

	start, err := wf.Start(context.Background(), 5, 100, 0)
	require.NoError(t, err)

	_, err = wf.ChooseServer(context.Background(), start.SID, serverID)
	assert.ErrorContains(t, err, "refreshing service document")
}
