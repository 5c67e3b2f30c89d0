package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"photovault/internal/server/database"
	"photovault/internal/server/quota"

	"github.com/google/uuid"
)

// IngestResult is returned after a successfully ingested photo.
type IngestResult struct {
	Photo          *database.Photo
	SessionStarted bool
	UsedBytes      int64
	CapacityBytes  int64
}

// Ingest runs the content ingestion pipeline for one inbound photo:
// quota admission on the declared size, a single-pass stream copy into the
// account's storage root under a generated filename while hashing the bytes
// actually written, then the photo record and the quota commit with the
// measured size. Only a fully ingested photo advances the upload session.
//
// declaredSize comes from the transport and is untrusted: it gates admission
// but never the accounting, which always uses the measured byte count.
func (s *Service) Ingest(ctx context.Context, externalID int64, src io.Reader, declaredSize int64, replyTo string) (*IngestResult, error) {
	account, err := s.repo.GetAccountByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, database.ErrAccountNotFound) {
			return nil, ErrNotRegistered
		}
		return nil, err
	}

	if declaredSize > s.cfg.MaxUploadBytes {
		return nil, ErrUploadTooLarge
	}

	storageRec, err := s.repo.GetStorageByAccount(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	// Admission check, no I/O yet. A rejection leaves no trace: no file,
	// no record, no session transition.
	if err := s.ledger.Reserve(ctx, account.ID, declaredSize); err != nil {
		if errors.Is(err, quota.ErrInsufficientSpace) {
			return nil, ErrQuotaExceeded
		}
		return nil, err
	}

	// The filename is generated, never taken from the transport.
	filename := uuid.New().String() + ".png"

	// Single pass: the hash is computed over exactly the bytes written.
	hasher := sha256.New()
	written, err := s.store.Save(storageRec.RootPath, filename, io.TeeReader(src, hasher))
	if err != nil {
		// The store removed the partial file; the reservation held no state,
		// so there is nothing to release.
		return nil, fmt.Errorf("failed to store photo: %w", err)
	}
	contentHash := hex.EncodeToString(hasher.Sum(nil))

	// The bytes are durable: commit ground truth. Commit never re-checks
	// capacity; reserve was the only gate.
	if err := s.ledger.Commit(ctx, account.ID, written); err != nil {
		if derr := s.store.Delete(storageRec.RootPath, filename); derr != nil {
			slog.Error("failed to remove photo after quota commit failure",
				"account_id", account.ID, "filename", filename, "error", derr)
		}
		return nil, fmt.Errorf("failed to commit quota: %w", err)
	}

	photo := &database.Photo{
		AccountID:   account.ID,
		StorageID:   storageRec.ID,
		Filename:    filename,
		SizeBytes:   written,
		ContentHash: contentHash,
	}
	if err := s.repo.CreatePhoto(ctx, photo); err != nil {
		// File and quota commit are durable but the record is not: storage
		// and ledger are now ahead of the record store. Leave everything in
		// place and log enough detail for the reconciliation pass.
		slog.Error("photo record insert failed after durable write and quota commit",
			"account_id", account.ID,
			"filename", filename,
			"hash", contentHash,
			"size", written,
			"error", err,
		)
		return nil, fmt.Errorf("failed to create photo record: %w", err)
	}

	if err := s.repo.TouchLastSeen(ctx, account.ID); err != nil {
		slog.Warn("failed to touch last seen", "account_id", account.ID, "error", err)
	}

	started := s.uploads.RecordUpload(ctx, account.ID, replyTo)

	used, capacity, err := s.ledger.Usage(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	slog.Info("photo ingested",
		"account_id", account.ID,
		"filename", filename,
		"declared_size", declaredSize,
		"measured_size", written,
		"hash", contentHash,
	)

	return &IngestResult{
		Photo:          photo,
		SessionStarted: started,
		UsedBytes:      used,
		CapacityBytes:  capacity,
	}, nil
}
