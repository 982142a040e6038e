package sword_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"sword-client/sword"
)

// The stub engine speaks JSON instead of Atom so the tests can focus on the
// client's transport and two-phase semantics.

var stubServiceDocURL string

func init() {
	sword.Register("stub", func(settings *sword.Settings) sword.Engine {
		return &stubEngine{settings: settings}
	})
}

type stubEngine struct {
	settings *sword.Settings
}

func (e *stubEngine) Name() string               { return "stub" }
func (e *stubEngine) ServiceDocumentURL() string { return stubServiceDocURL }

func (e *stubEngine) ParseServiceDocument(raw []byte) (*sword.ServiceDocument, error) {
	var doc sword.ServiceDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (e *stubEngine) MediaHeaders(h http.Header, file *sword.FileInfo, meta *sword.Metadata) {
	h.Set("X-Stub-File", file.Name)
}

func (e *stubEngine) MetadataHeaders(h http.Header, meta *sword.Metadata) {
	h.Set("Content-Type", "application/atom+xml")
}

func (e *stubEngine) StatusHeaders(h http.Header) {}

func (e *stubEngine) MetadataEntry(meta *sword.Metadata, media []sword.MediaResult) ([]byte, error) {
	return []byte("<entry/>"), nil
}

func (e *stubEngine) MediaLink(body []byte) string {
	return strings.TrimSpace(string(body))
}

func (e *stubEngine) MediaError(statusCode int, body []byte) string {
	return fmt.Sprintf("HTTP Error %d", statusCode)
}

func (e *stubEngine) MetadataLinks(body []byte) sword.Links {
	var links sword.Links
	_ = json.Unmarshal(body, &links)
	return links
}

func (e *stubEngine) MetadataError(statusCode int, body []byte) string {
	return fmt.Sprintf("HTTP Error %d", statusCode)
}

func (e *stubEngine) ParseStatus(body []byte) sword.StatusInfo {
	var info sword.StatusInfo
	_ = json.Unmarshal(body, &info)
	return info
}

type fakeStore struct {
	mu       sync.Mutex
	docs     map[uint][]byte
	statuses map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:     map[uint][]byte{},
		statuses: map[string]string{},
	}
}

func (s *fakeStore) SaveServiceDocument(ctx context.Context, serverID uint, doc []byte, updated time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[serverID] = doc
	return nil
}

func (s *fakeStore) SaveSubmissionStatus(ctx context.Context, serverID uint, statusURL, status string, checked time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[statusURL] = status
	return nil
}

type fakeMedia struct {
	files map[string][]byte
}

func (m *fakeMedia) Fetch(ctx context.Context, key string) ([]byte, error) {
	content, ok := m.files[key]
	if !ok {
		return nil, fmt.Errorf("no such object %q", key)
	}
	return content, nil
}

func stubSettings() *sword.Settings {
	return &sword.Settings{
		ServerID:        1,
		Name:            "Stub Server",
		Engine:          "stub",
		Username:        "depositor",
		Password:        "hunter2",
		Email:           "depositor@example.org",
		UpdateFrequency: "1w",
	}
}
