package services_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sword-client/models"
	"sword-client/services"
	"sword-client/sword"
	_ "sword-client/sword/arxiv"
)

const mediaReceipt = `<?xml version="1.0"?>
<entry xmlns="http://www.w3.org/2005/Atom">
  <link rel="edit-media" href="http://example.org/media/1"/>
</entry>`

const metadataReceipt = `<?xml version="1.0"?>
<entry xmlns="http://www.w3.org/2005/Atom">
  <link rel="alternate" href="http://example.org/abs/1"/>
  <link rel="edit" href="http://example.org/edit/1"/>
</entry>`

// newDepositServer fakes the remote collection endpoint: metadata requests
// are told apart from media deposits by their atom content type.
func newDepositServer(t *testing.T, mediaStatus int, lastEntry *[]byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.Header.Get("Content-Type"), "application/atom+xml") {
			body, _ := io.ReadAll(r.Body)
			if lastEntry != nil {
				*lastEntry = body
			}
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(metadataReceipt))
			return
		}
		w.WriteHeader(mediaStatus)
		if mediaStatus == http.StatusCreated {
			w.Write([]byte(mediaReceipt))
		}
	}))
}

func seedServer(t *testing.T, store *memStore, collectionURL string) uint {
	t.Helper()
	doc := sword.ServiceDocument{
		Version:       "1.3",
		MaxUploadSize: 10 * 1024 * 1024,
		Collections: map[string]sword.Collection{
			collectionURL: {
				Title:   "physics",
				Accepts: []string{"application/pdf"},
				Categories: map[string]sword.Category{
					"physics.acc-ph": {Label: "Accelerator Physics", Scheme: "http://arxiv.org/terms/arXiv/"},
				},
				PrimaryCategories: map[string]sword.Category{
					"physics.gen-ph": {Label: "General Physics", Scheme: "http://arxiv.org/terms/arXiv/"},
				},
			},
		},
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	now := time.Now()
	server := &models.RemoteServer{
		Name:            "arXiv.org",
		Engine:          "arxiv",
		Username:        "depositor",
		Password:        "hunter2",
		Email:           "account@example.org",
		UpdateFrequency: "1w",
		ServiceDocument: raw,
		LastUpdated:     &now,
	}
	require.NoError(t, store.CreateServer(context.Background(), server))
	return server.ID
}

func seedRecord(store *memStore, id uint) {
	store.records[id] = *testRecord(id)
	store.files[id] = []models.RecordFile{
		{ID: 1, RecordID: id, Name: "paper.pdf", S3Key: "files/paper.pdf",
			Checksum: "d41d8cd98f00b204", Size: 1000, MIME: "application/pdf", Extension: ".pdf"},
	}
}

func newTestWorkflow(store *memStore) *services.Workflow {
	media := &memMedia{files: map[string][]byte{"files/paper.pdf": []byte("%PDF-1.4")}}
	return services.NewWorkflow(store, media, zap.NewNop(), 30,
		sword.WithRetryBase(time.Millisecond))
}

func TestStart_DuplicateGuardCreatesNoTempRow(t *testing.T) {
	store := newMemStore()
	seedRecord(store, 42)
	store.archived = append(store.archived, models.ArchivedSubmission{RecordID: 42, ServerID: 7})
	wf := newTestWorkflow(store)

	_, err := wf.Start(context.Background(), 1, 42, 7)
	assert.ErrorIs(t, err, services.ErrAlreadySubmitted)
	assert.Empty(t, store.temps)
}

func TestChooseServer_DuplicateGuard(t *testing.T) {
	store := newMemStore()
	seedRecord(store, 42)
	serverID := seedServer(t, store, "http://example.org/col/1")
	store.archived = append(store.archived, models.ArchivedSubmission{RecordID: 42, ServerID: serverID})
	wf := newTestWorkflow(store)

	start, err := wf.Start(context.Background(), 1, 42, 0)
	require.NoError(t, err)

	_, err = wf.ChooseServer(context.Background(), start.SID, serverID)
	assert.ErrorIs(t, err, services.ErrAlreadySubmitted)
}

func TestWorkflow_UnknownToken(t *testing.T) {
	wf := newTestWorkflow(newMemStore())
	_, err := wf.ChooseServer(context.Background(), "nope", 1)
	assert.ErrorIs(t, err, services.ErrState)
}

func TestWorkflow_HappyPath(t *testing.T) {
	var lastEntry []byte
	srv := newDepositServer(t, http.StatusCreated, &lastEntry)
	defer srv.Close()
	collectionURL := srv.URL + "/col/1"

	store := newMemStore()
	seedRecord(store, 100)
	serverID := seedServer(t, store, collectionURL)
	wf := newTestWorkflow(store)
	ctx := context.Background()

	start, err := wf.Start(ctx, 5, 100, 0)
	require.NoError(t, err)
	require.Len(t, start.Servers, 1)

	step1, err := wf.ChooseServer(ctx, start.SID, serverID)
	require.NoError(t, err)
	require.Len(t, step1.Collections, 1)
	assert.Equal(t, collectionURL, step1.Collections[0].URL)

	step2, err := wf.ChooseCollection(ctx, start.SID, collectionURL)
	require.NoError(t, err)
	require.Len(t, step2.Categories.Mandatory, 1)
	assert.Equal(t, "physics.gen-ph", step2.Categories.Mandatory[0].Term)

	step3, err := wf.ChooseCategories(ctx, start.SID, "physics.gen-ph", []string{"physics.acc-ph"})
	require.NoError(t, err)
	assert.Equal(t, "On the Electrodynamics of Moving Bodies", step3.Metadata.Title)
	require.Len(t, step3.Files, 1)
	assert.Equal(t, "paper.pdf", step3.Files[0].Name)

	editedTitle := "Zur Elektrodynamik bewegter Koerper"
	result, err := wf.Finalize(ctx, start.SID, services.FinalizeRequest{
		Metadata: services.MetadataEdits{Title: &editedTitle},
		Files:    []int{1},
	})
	require.NoError(t, err)

	assert.True(t, result.Archived)
	assert.False(t, result.Response.Error)
	assert.Equal(t, "http://example.org/abs/1", result.Response.Links.Alternate)
	assert.Equal(t, "http://example.org/edit/1", result.Response.Links.Edit)

	// The ingested entry carries the edited title, the padded abstract and
	// the link to the deposited media.
	entry := string(lastEntry)
	assert.Contains(t, entry, "<title>Zur Elektrodynamik bewegter Koerper</title>")
	assert.Contains(t, entry, "<summary>Short text..........</summary>")
	assert.Contains(t, entry, `href="http://example.org/media/1"`)

	require.Len(t, store.archived, 1)
	archived := store.archived[0]
	assert.Equal(t, uint(5), archived.UserID)
	assert.Equal(t, uint(100), archived.RecordID)
	assert.Equal(t, serverID, archived.ServerID)
	assert.Equal(t, "http://example.org/abs/1", archived.AlternateURL)
	assert.Equal(t, "http://example.org/edit/1", archived.EditURL)
	assert.Equal(t, "submitted", archived.Status)

	_, ok := store.temps[start.SID]
	assert.False(t, ok)
}

func TestFinalize_MediaFailureKeepsTempSubmission(t *testing.T) {
	srv := newDepositServer(t, http.StatusBadRequest, nil)
	defer srv.Close()
	collectionURL := srv.URL + "/col/1"

	store := newMemStore()
	seedRecord(store, 100)
	serverID := seedServer(t, store, collectionURL)
	wf := newTestWorkflow(store)
	ctx := context.Background()

	start, err := wf.Start(ctx, 5, 100, 0)
	require.NoError(t, err)
	_, err = wf.ChooseServer(ctx, start.SID, serverID)
	require.NoError(t, err)
	_, err = wf.ChooseCollection(ctx, start.SID, collectionURL)
	require.NoError(t, err)
	_, err = wf.ChooseCategories(ctx, start.SID, "physics.gen-ph", nil)
	require.NoError(t, err)

	result, err := wf.Finalize(ctx, start.SID, services.FinalizeRequest{Files: []int{1}})
	require.NoError(t, err)

	assert.False(t, result.Archived)
	assert.True(t, result.Response.Error)
	assert.Equal(t, sword.MsgMediaErrors, result.Response.Msg)
	assert.Empty(t, store.archived)

	// The temp submission stays so the user can retry the step.
	_, ok := store.temps[start.SID]
	assert.True(t, ok)
}

func TestFinalize_UnknownFileIndex(t *testing.T) {
	srv := newDepositServer(t, http.StatusCreated, nil)
	defer srv.Close()
	collectionURL := srv.URL + "/col/1"

	store := newMemStore()
	seedRecord(store, 100)
	serverID := seedServer(t, store, collectionURL)
	wf := newTestWorkflow(store)
	ctx := context.Background()

	start, err := wf.Start(ctx, 5, 100, 0)
	require.NoError(t, err)
	_, err = wf.ChooseServer(ctx, start.SID, serverID)
	require.NoError(t, err)
	_, err = wf.ChooseCollection(ctx, start.SID, collectionURL)
	require.NoError(t, err)
	_, err = wf.ChooseCategories(ctx, start.SID, "physics.gen-ph", nil)
	require.NoError(t, err)

	_, err = wf.Finalize(ctx, start.SID, services.FinalizeRequest{Files: []int{9}})
	assert.Error(t, err)
}

func TestPollStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<deposit><status>published</status><arxiv_id>2602.01234</arxiv_id></deposit>`))
	}))
	defer srv.Close()

	store := newMemStore()
	serverID := seedServer(t, store, "http://example.org/col/1")
	wf := newTestWorkflow(store)

	resp, err := wf.PollStatus(context.Background(), serverID, srv.URL)
	require.NoError(t, err)
	assert.False(t, resp.Error)
	assert.Equal(t, "published", resp.Status.Status)
	assert.Equal(t, "published (http://arxiv.org/abs/2602.01234)", store.statuses[srv.URL])
}

func TestRefreshStaleServers_SkipsFreshAndInvalid(t *testing.T) {
	store := newMemStore()
	seedServer(t, store, "http://example.org/col/1")
	store.servers[99] = models.RemoteServer{ID: 99, Name: "broken", Engine: "nope"}
	wf := newTestWorkflow(store)

	refreshed, err := wf.RefreshStaleServers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, refreshed)
}
