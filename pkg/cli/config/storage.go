package config

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/mnemosyne/pkg/domain/interfaces"
	"github.com/secmon-lab/mnemosyne/pkg/repository/storage"
	"github.com/secmon-lab/mnemosyne/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// Storage holds CLI flags for attachment storage configuration
type Storage struct {
	backend string
	bucket  string
	prefix  string
}

// Flags returns CLI flags for storage configuration
func (s *Storage) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "storage-backend",
			Usage:       "Attachment storage backend (gcs or memory)",
			Category:    "Storage",
			Value:       "memory",
			Sources:     cli.EnvVars("MNEMOSYNE_STORAGE_BACKEND"),
			Destination: &s.backend,
		},
		&cli.StringFlag{
			Name:        "storage-bucket",
			Usage:       "GCS bucket for attachment payloads (required when using gcs backend)",
			Category:    "Storage",
			Sources:     cli.EnvVars("MNEMOSYNE_STORAGE_BUCKET"),
			Destination: &s.bucket,
		},
		&cli.StringFlag{
			Name:        "storage-prefix",
			Usage:       "Object name prefix inside the bucket",
			Category:    "Storage",
			Sources:     cli.EnvVars("MNEMOSYNE_STORAGE_PREFIX"),
			Destination: &s.prefix,
		},
	}
}

// Configure initializes the attachment store based on the configured backend.
func (s *Storage) Configure(ctx context.Context) (interfaces.AttachmentStore, error) {
	switch s.backend {
	case "gcs":
		if s.bucket == "" {
			return nil, goerr.New("storage-bucket is required when using gcs backend")
		}
		var opts []storage.GCSOption
		if s.prefix != "" {
			opts = append(opts, storage.WithObjectPrefix(s.prefix))
		}
		store, err := storage.NewGCS(ctx, s.bucket, opts...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize GCS storage")
		}
		logging.Default().Info("Using GCS attachment storage", "bucket", s.bucket)
		return store, nil

	case "memory":
		logging.Default().Info("Using in-memory attachment storage (development mode)")
		return storage.NewMemory(), nil

	default:
		return nil, goerr.New("invalid storage backend", goerr.V("backend", s.backend))
	}
}
