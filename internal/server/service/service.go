package service

import (
	"context"

	"photovault/internal/server/config"
	"photovault/internal/server/database"
	"photovault/internal/server/quota"
	"photovault/internal/server/session"
	"photovault/internal/server/storage"
)

// Repo is the subset of the database repository the services depend on.
// *database.Repository satisfies it; tests use in-memory fakes.
type Repo interface {
	GetAccountByExternalID(ctx context.Context, externalID int64) (*database.Account, error)
	CreateAccount(ctx context.Context, account *database.Account, storage *database.StorageRecord, maxAccounts int) error
	TouchLastSeen(ctx context.Context, accountID int64) error
	GetStorageByAccount(ctx context.Context, accountID int64) (*database.StorageRecord, error)
	SetUsedBytes(ctx context.Context, accountID int64, used int64) error
	CreatePhoto(ctx context.Context, photo *database.Photo) error
	DeletePhoto(ctx context.Context, photoID int64) error
	ListPhotos(ctx context.Context, accountID int64) ([]*database.Photo, error)
	CountPhotos(ctx context.Context, accountID int64) (int64, error)
	RandomPhoto(ctx context.Context, accountID int64) (*database.Photo, error)
	DeleteAccount(ctx context.Context, accountID int64) error
	GetStats(ctx context.Context) (*database.Stats, error)
}

// Service contains the business logic: quota-guarded photo ingestion,
// registration, the two-phase account deletion flow, random retrieval,
// statistics and the reconciliation pass.
type Service struct {
	repo      Repo
	store     storage.Store
	ledger    *quota.Ledger
	uploads   *session.UploadTracker
	deletions *session.DeletionTracker
	cfg       *config.Config
}

// New creates the service with its collaborators.
func New(repo Repo, store storage.Store, ledger *quota.Ledger, uploads *session.UploadTracker, deletions *session.DeletionTracker, cfg *config.Config) *Service {
	return &Service{
		repo:      repo,
		store:     store,
		ledger:    ledger,
		uploads:   uploads,
		deletions: deletions,
		cfg:       cfg,
	}
}
