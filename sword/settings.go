package sword

import (
	"encoding/json"
	"fmt"
	"time"

	"sword-client/models"
)

// Settings is the typed configuration of one remote server, as needed by
// the deposit client. It is populated from the stored RemoteServer row;
// required fields are validated up front instead of being injected blindly.
type Settings struct {
	ServerID        uint
	Name            string
	Engine          string
	Username        string
	Password        string
	Email           string
	UpdateFrequency string

	ServiceDocument *ServiceDocument
	LastUpdated     time.Time
}

// SettingsFromModel builds Settings from a stored server row, decoding the
// cached service document if one is present.
func SettingsFromModel(server *models.RemoteServer) (*Settings, error) {
	s := &Settings{
		ServerID:        server.ID,
		Name:            server.Name,
		Engine:          server.Engine,
		Username:        server.Username,
		Password:        server.Password,
		Email:           server.Email,
		UpdateFrequency: server.UpdateFrequency,
	}
	if server.LastUpdated != nil {
		s.LastUpdated = *server.LastUpdated
	}
	if len(server.ServiceDocument) > 0 {
		var doc ServiceDocument
		if err := json.Unmarshal(server.ServiceDocument, &doc); err != nil {
			return nil, fmt.Errorf("decoding cached service document for server %d: %w", server.ID, err)
		}
		s.ServiceDocument = &doc
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks that every required field is present, that the engine is
// registered and that the update frequency is well formed.
func (s *Settings) Validate() error {
	required := map[string]string{
		"name":     s.Name,
		"engine":   s.Engine,
		"username": s.Username,
		"password": s.Password,
		"email":    s.Email,
	}
	for field, value := range required {
		if value == "" {
			return fmt.Errorf("missing server %s", field)
		}
	}
	if !Registered(s.Engine) {
		return fmt.Errorf("unknown server engine %q", s.Engine)
	}
	if !ValidFrequency(s.UpdateFrequency) {
		return fmt.Errorf("malformed update frequency %q", s.UpdateFrequency)
	}
	return nil
}

// NeedsUpdate reports whether the cached service document is stale, i.e.
// strictly more than one update frequency has passed since LastUpdated.
func (s *Settings) NeedsUpdate(now time.Time) bool {
	frequency, err := ParseFrequency(s.UpdateFrequency)
	if err != nil {
		return true
	}
	return now.After(s.LastUpdated.Add(frequency))
}
