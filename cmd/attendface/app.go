package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrCodeEU/attendface/pkg/acceleration"
	"github.com/MrCodeEU/attendface/pkg/config"
	"github.com/MrCodeEU/attendface/pkg/database"
	"github.com/MrCodeEU/attendface/pkg/logging"
	"github.com/MrCodeEU/attendface/pkg/matching"
	"github.com/MrCodeEU/attendface/pkg/recognition"
	"github.com/MrCodeEU/attendface/pkg/storage"
)

// app holds the components shared by the commands.
type app struct {
	cfg        *config.Config
	db         *database.DB
	store      storage.EmbeddingStore
	crops      *storage.CropStore
	recognizer *recognition.Recognizer
	engine     *matching.Engine
}

// newApp opens the store and loads the models. The database is opened for
// the mysql backend, and for the file backend when a DSN is configured.
func newApp(cfg *config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	if err := a.openStore(); err != nil {
		a.Close()
		return nil, err
	}

	crops, err := storage.NewCropStore(cfg.CropsDir())
	if err != nil {
		a.Close()
		return nil, err
	}
	a.crops = crops

	backend := acceleration.NewSelector(cfg.Recognition.ModelPath).
		Select(acceleration.Backend(cfg.Recognition.Backend))

	a.recognizer, err = recognition.New(recognition.Options{
		ModelPath:         cfg.Recognition.ModelPath,
		Backend:           backend,
		DetectTimeout:     time.Duration(cfg.Recognition.DetectTimeout) * time.Second,
		MaxImageDimension: cfg.Recognition.MaxImageDimension,
		MaxImagePixels:    cfg.Recognition.MaxImagePixels,
	})
	if err != nil {
		a.Close()
		if errors.Is(err, recognition.ErrModelNotLoaded) {
			return nil, fmt.Errorf("%w (run 'attendface download-models')", err)
		}
		return nil, err
	}

	var cropWriter matching.CropWriter
	if cfg.Storage.SaveCrops {
		cropWriter = crops
	}
	a.engine, err = matching.NewEngine(a.recognizer, a.store, cropWriter, matching.Options{
		Tolerance:      cfg.Recognition.Tolerance,
		DuplicateCheck: cfg.Recognition.DuplicateCheck,
		CropPadding:    cfg.Recognition.CropPadding,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) openStore() error {
	if a.cfg.Database.DSN != "" {
		db, err := database.Open(a.cfg.Database)
		if err != nil {
			return err
		}
		a.db = db
	}

	switch a.cfg.Storage.Backend {
	case "mysql":
		a.store = database.NewFaceRepository(a.db)
	case "memory":
		logging.Warnf("Using the in-memory embedding store, enrollments are lost on exit")
		a.store = storage.NewMemoryStore()
	default:
		fs, err := storage.NewFileStore(a.cfg.FacesDir(), a.cfg.Storage.EncryptionEnabled)
		if err != nil {
			return err
		}
		a.store = fs
	}
	logging.Component("app").WithField("backend", a.cfg.Storage.Backend).Debug("Embedding store opened")
	return nil
}

// displayName looks up a name when a user directory is available.
func (a *app) displayName(ctx context.Context, id int64) string {
	if a.db == nil {
		return ""
	}
	name, err := database.NewUserRepository(a.db).DisplayName(ctx, id)
	if err != nil {
		return ""
	}
	return name
}

func (a *app) Close() {
	if a.recognizer != nil {
		a.recognizer.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logging.WithError(err).Warn("Failed to close database")
		}
	}
}
