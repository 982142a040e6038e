package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"sword-client/sword"
)

// PollStatus fetches the remote status of an archived submission and
// persists the humanized result.
func (w *Workflow) PollStatus(ctx context.Context, serverID uint, statusURL string) (sword.StatusResponse, error) {
	client, err := w.serverClient(ctx, serverID)
	if err != nil {
		return sword.StatusResponse{}, err
	}
	return client.Status(ctx, statusURL), nil
}

// RefreshServer forces a service-document update for one server.
func (w *Workflow) RefreshServer(ctx context.Context, serverID uint) error {
	client, err := w.serverClient(ctx, serverID)
	if err != nil {
		return err
	}
	return client.Update(ctx)
}

// RefreshStaleServers updates every server whose cached service document is
// older than its update frequency. It returns the number of refreshed
// servers and keeps going past individual failures.
func (w *Workflow) RefreshStaleServers(ctx context.Context) (int, error) {
	servers, err := w.store.Servers(ctx)
	if err != nil {
		return 0, err
	}
	refreshed := 0
	for i := range servers {
		settings, err := sword.SettingsFromModel(&servers[i])
		if err != nil {
			w.logger.Warn("skipping server with invalid settings",
				zap.Uint("server_id", servers[i].ID), zap.Error(err))
			continue
		}
		if settings.ServiceDocument != nil && !settings.NeedsUpdate(time.Now()) {
			continue
		}
		client, err := sword.NewClient(settings, w.store, w.media, w.logger, w.clientOpts...)
		if err != nil {
			continue
		}
		if err := client.Update(ctx); err != nil {
			w.logger.Warn("service document refresh failed",
				zap.Uint("server_id", servers[i].ID), zap.Error(err))
			continue
		}
		refreshed++
	}
	return refreshed, nil
}

func (w *Workflow) serverClient(ctx context.Context, serverID uint) (*sword.Client, error) {
	server, err := w.store.Server(ctx, serverID)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("server %d: %w", serverID, ErrState)
	}
	if err != nil {
		return nil, err
	}
	settings, err := sword.SettingsFromModel(server)
	if err != nil {
		return nil, err
	}
	return sword.NewClient(settings, w.store, w.media, w.logger, w.clientOpts...)
}
