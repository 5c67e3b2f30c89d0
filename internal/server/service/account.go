package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"photovault/internal/server/database"
	"photovault/internal/server/session"

	"github.com/google/uuid"
)

// Profile carries the registration attributes the transport knows about.
type Profile struct {
	ExternalID int64
	Username   *string
	FirstName  *string
	LastName   *string
}

// LeaveOutcome is the result of a leave request.
type LeaveOutcome int

const (
	// LeaveArmed means the deletion is pending a second confirming request.
	LeaveArmed LeaveOutcome = iota
	// LeaveDeleted means the account and all its content are gone.
	LeaveDeleted
)

// AccountStats summarizes one account's storage usage.
type AccountStats struct {
	Photos        int64
	UsedBytes     int64
	CapacityBytes int64
}

// ReconcileReport describes what a reconciliation pass found and fixed.
type ReconcileReport struct {
	OrphanFilesRemoved int
	MissingFileRecords int
	UsedBytes          int64
}

// Register creates an account with its quota record and storage root. The
// global account cap is enforced inside the registration transaction; the
// storage root is created first and rolled back if the transaction fails,
// since an account without a quota record (or vice versa) must never exist.
func (s *Service) Register(ctx context.Context, profile Profile) (*database.Account, *database.StorageRecord, error) {
	_, err := s.repo.GetAccountByExternalID(ctx, profile.ExternalID)
	if err == nil {
		return nil, nil, ErrAlreadyRegistered
	}
	if !errors.Is(err, database.ErrAccountNotFound) {
		return nil, nil, err
	}

	root := uuid.New().String()
	if err := s.store.EnsureRoot(root); err != nil {
		return nil, nil, fmt.Errorf("failed to create storage root: %w", err)
	}

	account := &database.Account{
		ExternalID: profile.ExternalID,
		Username:   profile.Username,
		FirstName:  profile.FirstName,
		LastName:   profile.LastName,
	}
	storageRec := &database.StorageRecord{
		RootPath:      root,
		CapacityBytes: s.cfg.DefaultQuotaBytes,
	}

	if err := s.repo.CreateAccount(ctx, account, storageRec, s.cfg.MaxAccounts); err != nil {
		if rerr := s.store.RemoveRoot(root); rerr != nil {
			slog.Error("failed to roll back storage root after registration failure",
				"root", root, "error", rerr)
		}
		if errors.Is(err, database.ErrAccountLimit) {
			slog.Warn("registration refused, account limit reached", "external_id", profile.ExternalID)
			return nil, nil, ErrAccountLimit
		}
		return nil, nil, err
	}

	slog.Info("account registered",
		"account_id", account.ID,
		"external_id", account.ExternalID,
		"root", root,
		"capacity", storageRec.CapacityBytes,
	)
	return account, storageRec, nil
}

// Leave handles one step of the two-phase deletion flow. The first request
// arms the confirmation window; a second request inside the window runs the
// destructive cascade. A leave is refused outright while the account has an
// active upload session.
func (s *Service) Leave(ctx context.Context, externalID int64, replyTo string) (LeaveOutcome, error) {
	account, err := s.repo.GetAccountByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, database.ErrAccountNotFound) {
			return 0, ErrNotRegistered
		}
		return 0, err
	}

	if s.uploads.Active(account.ID) {
		return 0, ErrUploadInProgress
	}

	if s.deletions.Request(account.ID, replyTo) == session.DeletionArmed {
		slog.Info("deletion armed", "account_id", account.ID)
		return LeaveArmed, nil
	}

	storageRec, err := s.repo.GetStorageByAccount(ctx, account.ID)
	if err != nil {
		return 0, err
	}

	// Cascade: photo records, quota record and account go in one
	// transaction, then the on-disk root.
	if err := s.repo.DeleteAccount(ctx, account.ID); err != nil {
		return 0, fmt.Errorf("failed to delete account records: %w", err)
	}
	s.ledger.Forget(account.ID)

	if err := s.store.RemoveRoot(storageRec.RootPath); err != nil {
		// The rows are gone but files remain. Never report this as success.
		slog.Error("account deletion left orphaned storage root",
			"account_id", account.ID,
			"external_id", account.ExternalID,
			"root", storageRec.RootPath,
			"error", err,
		)
		return 0, ErrPartialDelete
	}

	slog.Info("account deleted", "account_id", account.ID, "external_id", account.ExternalID)
	return LeaveDeleted, nil
}

// RandomPhoto picks one of the account's photos uniformly at random and
// returns a reader for its bytes. The caller closes the reader.
func (s *Service) RandomPhoto(ctx context.Context, externalID int64) (io.ReadCloser, *database.Photo, error) {
	account, err := s.repo.GetAccountByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, database.ErrAccountNotFound) {
			return nil, nil, ErrNotRegistered
		}
		return nil, nil, err
	}

	photo, err := s.repo.RandomPhoto(ctx, account.ID)
	if err != nil {
		if errors.Is(err, database.ErrNoPhotos) {
			return nil, nil, ErrNoPhotos
		}
		return nil, nil, err
	}

	storageRec, err := s.repo.GetStorageByAccount(ctx, account.ID)
	if err != nil {
		return nil, nil, err
	}

	rc, err := s.store.Open(storageRec.RootPath, photo.Filename)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open photo: %w", err)
	}

	if err := s.repo.TouchLastSeen(ctx, account.ID); err != nil {
		slog.Warn("failed to touch last seen", "account_id", account.ID, "error", err)
	}
	return rc, photo, nil
}

// Stats returns one account's photo count and quota usage.
func (s *Service) Stats(ctx context.Context, externalID int64) (*AccountStats, error) {
	account, err := s.repo.GetAccountByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, database.ErrAccountNotFound) {
			return nil, ErrNotRegistered
		}
		return nil, err
	}

	count, err := s.repo.CountPhotos(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	used, capacity, err := s.ledger.Usage(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	return &AccountStats{Photos: count, UsedBytes: used, CapacityBytes: capacity}, nil
}

// GlobalStats returns aggregate server statistics.
func (s *Service) GlobalStats(ctx context.Context) (*database.Stats, error) {
	return s.repo.GetStats(ctx)
}

// Reconcile repairs the storage/record/ledger triplet for one account after
// a partial ingestion or deletion: files without a record are removed,
// records without a file are dropped, and used space is recomputed from the
// surviving records.
func (s *Service) Reconcile(ctx context.Context, externalID int64) (*ReconcileReport, error) {
	account, err := s.repo.GetAccountByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, database.ErrAccountNotFound) {
			return nil, ErrNotRegistered
		}
		return nil, err
	}

	storageRec, err := s.repo.GetStorageByAccount(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	photos, err := s.repo.ListPhotos(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	files, err := s.store.List(storageRec.RootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to list storage root: %w", err)
	}

	onDisk := make(map[string]bool, len(files))
	for _, name := range files {
		onDisk[name] = true
	}
	recorded := make(map[string]bool, len(photos))

	report := &ReconcileReport{}
	for _, photo := range photos {
		recorded[photo.Filename] = true
		if !onDisk[photo.Filename] {
			slog.Error("photo record has no file, dropping record",
				"account_id", account.ID, "filename", photo.Filename, "hash", photo.ContentHash)
			if err := s.repo.DeletePhoto(ctx, photo.ID); err != nil {
				return nil, err
			}
			report.MissingFileRecords++
			continue
		}
		report.UsedBytes += photo.SizeBytes
	}

	for _, name := range files {
		if !recorded[name] {
			slog.Warn("orphan file without record, removing",
				"account_id", account.ID, "filename", name)
			if err := s.store.Delete(storageRec.RootPath, name); err != nil {
				return nil, err
			}
			report.OrphanFilesRemoved++
		}
	}

	if err := s.repo.SetUsedBytes(ctx, account.ID, report.UsedBytes); err != nil {
		return nil, err
	}
	s.ledger.Forget(account.ID)

	slog.Info("reconciliation complete",
		"account_id", account.ID,
		"orphan_files_removed", report.OrphanFilesRemoved,
		"missing_file_records", report.MissingFileRecords,
		"used_bytes", report.UsedBytes,
	)
	return report, nil
}
