package services

import (
	"time"

	"sword-client/models"
	"sword-client/sword"
)

// ValidateServer checks a server row against the settings rules before it
// is persisted: required fields, a registered engine and a well-formed
// update frequency.
func ValidateServer(server *models.RemoteServer) error {
	settings := sword.Settings{
		ServerID:        server.ID,
		Name:            server.Name,
		Engine:          server.Engine,
		Username:        server.Username,
		Password:        server.Password,
		Email:           server.Email,
		UpdateFrequency: server.UpdateFrequency,
	}
	return settings.Validate()
}

// ServerView is the listing shape of a configured server, with humanized
// frequency and last-updated strings.
type ServerView struct {
	ID              uint   `json:"id"`
	Name            string `json:"name"`
	Engine          string `json:"engine"`
	Username        string `json:"username"`
	Email           string `json:"email"`
	UpdateFrequency string `json:"update_frequency"`
	Frequency       string `json:"frequency"`
	LastUpdated     string `json:"last_updated"`
}

// NewServerView builds the listing view of one server row.
func NewServerView(server *models.RemoteServer) ServerView {
	return ServerView{
		ID:              server.ID,
		Name:            server.Name,
		Engine:          server.Engine,
		Username:        server.Username,
		Email:           server.Email,
		UpdateFrequency: server.UpdateFrequency,
		Frequency:       sword.HumanizeFrequency(server.UpdateFrequency),
		LastUpdated:     HumanizeLastUpdated(server.LastUpdated, time.Now()),
	}
}

// HumanizeLastUpdated renders a refresh timestamp for listings: "Never"
// without one, "Just now" within the last minute, a plain timestamp
// otherwise.
func HumanizeLastUpdated(updated *time.Time, now time.Time) string {
	if updated == nil || updated.IsZero() {
		return "Never"
	}
	if now.Sub(*updated) < time.Minute {
		return "Just now"
	}
	return updated.Format("2006-01-02 15:04")
}
