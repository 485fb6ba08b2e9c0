package main

import (
	"context"
	"fmt"

	"github.com/awqp/ubidots-export/internal/api"
	"github.com/awqp/ubidots-export/internal/directory"
	"github.com/awqp/ubidots-export/internal/history"
	"github.com/awqp/ubidots-export/internal/pipeline"
)

// runServe starts the session API and blocks until ctx is cancelled.
func (a *app) runServe(ctx context.Context) error {
	cache, err := pipeline.NewCache(
		pipeline.New(a.cfg.Export.Columns, a.log),
		a.sourceForToken,
	)
	if err != nil {
		return err
	}

	var repo history.Repository
	db, sqliteRepo, err := a.openHistory(ctx)
	if err != nil {
		return err
	}
	if db != nil {
		defer func() {
			a.log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				a.log.Error("error closing database", "error", closeErr)
			}
		}()
		repo = sqliteRepo
		a.log.Info("export history enabled", "path", db.Path())
	}

	srv, err := api.New(api.Deps{
		Config:       a.cfg.API,
		WS:           a.cfg.WebSocket,
		Logger:       a.log,
		Cache:        cache,
		History:      repo,
		DeviceType:   a.cfg.Ubidots.DeviceType,
		Token:        a.cfg.Ubidots.Token,
		ExportPrefix: a.cfg.Export.Prefix,
		Version:      version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			a.log.Error("error closing API server", "error", closeErr)
		}
	}()

	a.log.Info("initialisation complete, waiting for shutdown signal",
		"address", fmt.Sprintf("%s:%d", a.cfg.API.Host, a.cfg.API.Port),
		"device_type", a.cfg.Ubidots.DeviceType,
	)
	<-ctx.Done()
	a.log.Info("shutdown signal received, cleaning up")
	return nil
}

// sourceForToken builds an upstream client per cache miss.
func (a *app) sourceForToken(token string) (directory.Source, error) {
	client, err := a.newClient(token)
	if err != nil {
		return nil, err
	}
	return client, nil
}
