package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"sword-client/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Storage is everything the workflow and the HTTP handlers need from the
// database. The gorm-backed Store implements it; tests use in-memory fakes.
type Storage interface {
	Servers(ctx context.Context) ([]models.RemoteServer, error)
	Server(ctx context.Context, id uint) (*models.RemoteServer, error)
	CreateServer(ctx context.Context, server *models.RemoteServer) error
	UpdateServer(ctx context.Context, server *models.RemoteServer) error
	DeleteServer(ctx context.Context, id uint) error

	Record(ctx context.Context, id uint) (*models.Record, error)
	RecordFiles(ctx context.Context, recordID uint) ([]models.RecordFile, error)

	SaveTempSubmission(ctx context.Context, sid string, payload []byte) error
	TempSubmission(ctx context.Context, sid string) ([]byte, error)
	DeleteTempSubmission(ctx context.Context, sid string) error

	Archive(ctx context.Context, submission *models.ArchivedSubmission) error
	IsArchived(ctx context.Context, recordID, serverID uint) (bool, error)
	Submissions(ctx context.Context) ([]SubmissionListing, error)

	SaveServiceDocument(ctx context.Context, serverID uint, doc []byte, updated time.Time) error
	SaveSubmissionStatus(ctx context.Context, serverID uint, statusURL, status string, checked time.Time) error
}

// SubmissionListing is one archived submission joined with its server name.
type SubmissionListing struct {
	models.ArchivedSubmission
	ServerName string `json:"server_name"`
}

// Store is the gorm-backed Storage implementation.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Servers(ctx context.Context) ([]models.RemoteServer, error) {
	var servers []models.RemoteServer
	if err := s.db.WithContext(ctx).Order("id").Find(&servers).Error; err != nil {
		return nil, fmt.Errorf("loading servers: %w", err)
	}
	return servers, nil
}

func (s *Store) Server(ctx context.Context, id uint) (*models.RemoteServer, error) {
	var server models.RemoteServer
	err := s.db.WithContext(ctx).First(&server, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading server %d: %w", id, err)
	}
	return &server, nil
}

func (s *Store) CreateServer(ctx context.Context, server *models.RemoteServer) error {
	if err := s.db.WithContext(ctx).Create(server).Error; err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	return nil
}

func (s *Store) UpdateServer(ctx context.Context, server *models.RemoteServer) error {
	if err := s.db.WithContext(ctx).Save(server).Error; err != nil {
		return fmt.Errorf("updating server %d: %w", server.ID, err)
	}
	return nil
}

func (s *Store) DeleteServer(ctx context.Context, id uint) error {
	if err := s.db.WithContext(ctx).Delete(&models.RemoteServer{}, id).Error; err != nil {
		return fmt.Errorf("deleting server %d: %w", id, err)
	}
	return nil
}

func (s *Store) Record(ctx context.Context, id uint) (*models.Record, error) {
	var record models.Record
	err := s.db.WithContext(ctx).First(&record, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading record %d: %w", id, err)
	}
	return &record, nil
}

func (s *Store) RecordFiles(ctx context.Context, recordID uint) ([]models.RecordFile, error) {
	var files []models.RecordFile
	if err := s.db.WithContext(ctx).Where("record_id = ?", recordID).Order("id").Find(&files).Error; err != nil {
		return nil, fmt.Errorf("loading files of record %d: %w", recordID, err)
	}
	return files, nil
}

func (s *Store) SaveTempSubmission(ctx context.Context, sid string, payload []byte) error {
	temp := models.TempSubmission{
		SID:         sid,
		Payload:     payload,
		LastUpdated: time.Now(),
	}
	err := s.db.WithContext(ctx).Save(&temp).Error
	if err != nil {
		return fmt.Errorf("saving temp submission %s: %w", sid, err)
	}
	return nil
}

func (s *Store) TempSubmission(ctx context.Context, sid string) ([]byte, error) {
	var temp models.TempSubmission
	err := s.db.WithContext(ctx).First(&temp, "sid = ?", sid).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading temp submission %s: %w", sid, err)
	}
	return temp.Payload, nil
}

func (s *Store) DeleteTempSubmission(ctx context.Context, sid string) error {
	if err := s.db.WithContext(ctx).Delete(&models.TempSubmission{}, "sid = ?", sid).Error; err != nil {
		return fmt.Errorf("deleting temp submission %s: %w", sid, err)
	}
	return nil
}

func (s *Store) Archive(ctx context.Context, submission *models.ArchivedSubmission) error {
	if err := s.db.WithContext(ctx).Create(submission).Error; err != nil {
		return fmt.Errorf("archiving submission: %w", err)
	}
	return nil
}

func (s *Store) IsArchived(ctx context.Context, recordID, serverID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.ArchivedSubmission{}).
		Where("record_id = ? AND server_id = ?", recordID, serverID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("checking archived submissions: %w", err)
	}
	return count > 0, nil
}

func (s *Store) Submissions(ctx context.Context) ([]SubmissionListing, error) {
	var listings []SubmissionListing
	err := s.db.WithContext(ctx).Model(&models.ArchivedSubmission{}).
		Select("archived_submissions.*, remote_servers.name AS server_name").
		Joins("LEFT JOIN remote_servers ON remote_servers.id = archived_submissions.server_id").
		Order("archived_submissions.submitted DESC").
		Find(&listings).Error
	if err != nil {
		return nil, fmt.Errorf("loading submissions: %w", err)
	}
	return listings, nil
}

func (s *Store) SaveServiceDocument(ctx context.Context, serverID uint, doc []byte, updated time.Time) error {
	err := s.db.WithContext(ctx).Model(&models.RemoteServer{}).
		Where("id = ?", serverID).
		Updates(map[string]interface{}{
			"service_document": doc,
			"last_updated":     updated,
		}).Error
	if err != nil {
		return fmt.Errorf("saving service document of server %d: %w", serverID, err)
	}
	return nil
}

func (s *Store) SaveSubmissionStatus(ctx context.Context, serverID uint, statusURL, status string, checked time.Time) error {
	err := s.db.WithContext(ctx).Model(&models.ArchivedSubmission{}).
		Where("server_id = ? AND alternate_url = ?", serverID, statusURL).
		Updates(map[string]interface{}{
			"status":         status,
			"status_updated": checked,
		}).Error
	if err != nil {
		return fmt.Errorf("saving status of submission %s: %w", statusURL, err)
	}
	return nil
}
