package services_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"sword-client/models"
	"sword-client/services"
)

// memStore is the in-memory Storage used by the workflow tests.
type memStore struct {
	mu       sync.Mutex
	nextID   uint
	servers  map[uint]models.RemoteServer
	records  map[uint]models.Record
	files    map[uint][]models.RecordFile
	temps    map[string][]byte
	archived []models.ArchivedSubmission
	statuses map[string]string
}

func newMemStore() *memStore {
	return &memStore{
		nextID:   1,
		servers:  map[uint]models.RemoteServer{},
		records:  map[uint]models.Record{},
		files:    map[uint][]models.RecordFile{},
		temps:    map[string][]byte{},
		statuses: map[string]string{},
	}
}

func (m *memStore) Servers(ctx context.Context) ([]models.RemoteServer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	servers := make([]models.RemoteServer, 0, len(m.servers))
	for _, server := range m.servers {
		servers = append(servers, server)
	}
	return servers, nil
}

func (m *memStore) Server(ctx context.Context, id uint) (*models.RemoteServer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	server, ok := m.servers[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	return &server, nil
}

func (m *memStore) CreateServer(ctx context.Context, server *models.RemoteServer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if server.ID == 0 {
		server.ID = m.nextID
		m.nextID++
	}
	m.servers[server.ID] = *server
	return nil
}

func (m *memStore) UpdateServer(ctx context.Context, server *models.RemoteServer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.servers[server.ID] = *server
	return nil
}

func (m *memStore) DeleteServer(ctx context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.servers, id)
	return nil
}

func (m *memStore) Record(ctx context.Context, id uint) (*models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	return &record, nil
}

func (m *memStore) RecordFiles(ctx context.Context, recordID uint) ([]models.RecordFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.files[recordID], nil
}

func (m *memStore) SaveTempSubmission(ctx context.Context, sid string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.temps[sid] = payload
	return nil
}

func (m *memStore) TempSubmission(ctx context.Context, sid string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payload, ok := m.temps[sid]
	if !ok {
		return nil, services.ErrNotFound
	}
	return payload, nil
}

func (m *memStore) DeleteTempSubmission(ctx context.Context, sid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.temps, sid)
	return nil
}

func (m *memStore) Archive(ctx context.Context, submission *models.ArchivedSubmission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	submission.ID = m.nextID
	m.nextID++
	m.archived = append(m.archived, *submission)
	return nil
}

func (m *memStore) IsArchived(ctx context.Context, recordID, serverID uint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, submission := range m.archived {
		if submission.RecordID == recordID && submission.ServerID == serverID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) Submissions(ctx context.Context) ([]services.SubmissionListing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	listings := make([]services.SubmissionListing, 0, len(m.archived))
	for _, submission := range m.archived {
		listings = append(listings, services.SubmissionListing{
			ArchivedSubmission: submission,
			ServerName:         m.servers[submission.ServerID].Name,
		})
	}
	return listings, nil
}

func (m *memStore) SaveServiceDocument(ctx context.Context, serverID uint, doc []byte, updated time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	server, ok := m.servers[serverID]
	if !ok {
		return fmt.Errorf("no server %d", serverID)
	}
	server.ServiceDocument = doc
	server.LastUpdated = &updated
	m.servers[serverID] = server
	return nil
}

func (m *memStore) SaveSubmissionStatus(ctx context.Context, serverID uint, statusURL, status string, checked time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[statusURL] = status
	for i := range m.archived {
		if m.archived[i].ServerID == serverID && m.archived[i].AlternateURL == statusURL {
			m.archived[i].Status = status
			m.archived[i].StatusUpdated = &checked
		}
	}
	return nil
}

type memMedia struct {
	files map[string][]byte
}

func (m *memMedia) Fetch(ctx context.Context, key string) ([]byte, error) {
	content, ok := m.files[key]
	if !ok {
		return nil, fmt.Errorf("no such object %q", key)
	}
	return content, nil
}
