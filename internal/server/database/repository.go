package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountLimit    = errors.New("account limit reached")
	ErrNoPhotos        = errors.New("account has no photos")
)

// Repository provides CRUD operations for accounts, storages and photos.
type Repository struct {
	db *DB
}

// NewRepository creates a new Repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// CreateAccount registers a new account together with its storage record in a
// single transaction. The global account cap is checked inside the same
// transaction so two concurrent registrations cannot both slip under it.
func (r *Repository) CreateAccount(ctx context.Context, account *Account, storage *StorageRecord, maxAccounts int) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var count int64
	if err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM accounts").Scan(&count); err != nil {
		return fmt.Errorf("failed to count accounts: %w", err)
	}
	if count >= int64(maxAccounts) {
		return ErrAccountLimit
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO accounts (external_id, username, first_name, last_name)
		VALUES ($1, $2, $3, $4)
		RETURNING id, registered_at, last_seen_at
	`,
		account.ExternalID,
		account.Username,
		account.FirstName,
		account.LastName,
	).Scan(&account.ID, &account.RegisteredAt, &account.LastSeenAt)
	if err != nil {
		return fmt.Errorf("failed to insert account: %w", err)
	}
	account.Registered = true

	storage.AccountID = account.ID
	err = tx.QueryRow(ctx, `
		INSERT INTO storages (account_id, root_path, capacity_bytes, used_bytes)
		VALUES ($1, $2, $3, 0)
		RETURNING id, created_at, updated_at
	`,
		storage.AccountID,
		storage.RootPath,
		storage.CapacityBytes,
	).Scan(&storage.ID, &storage.CreatedAt, &storage.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert storage record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit registration: %w", err)
	}
	return nil
}

// GetAccountByExternalID retrieves an account by its external platform ID.
func (r *Repository) GetAccountByExternalID(ctx context.Context, externalID int64) (*Account, error) {
	account := &Account{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, external_id, username, first_name, last_name,
		       registered_at, last_seen_at, is_registered
		FROM accounts WHERE external_id = $1
	`, externalID).Scan(
		&account.ID,
		&account.ExternalID,
		&account.Username,
		&account.FirstName,
		&account.LastName,
		&account.RegisteredAt,
		&account.LastSeenAt,
		&account.Registered,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return account, nil
}

// TouchLastSeen updates the account's last-seen timestamp.
func (r *Repository) TouchLastSeen(ctx context.Context, accountID int64) error {
	_, err := r.db.Pool.Exec(ctx,
		"UPDATE accounts SET last_seen_at = NOW() WHERE id = $1", accountID)
	if err != nil {
		return fmt.Errorf("failed to touch last seen: %w", err)
	}
	return nil
}

// GetStorageByAccount retrieves the storage/quota record for an account.
func (r *Repository) GetStorageByAccount(ctx context.Context, accountID int64) (*StorageRecord, error) {
	storage := &StorageRecord{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, account_id, root_path, capacity_bytes, used_bytes, created_at, updated_at
		FROM storages WHERE account_id = $1
	`, accountID).Scan(
		&storage.ID,
		&storage.AccountID,
		&storage.RootPath,
		&storage.CapacityBytes,
		&storage.UsedBytes,
		&storage.CreatedAt,
		&storage.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get storage record: %w", err)
	}
	return storage, nil
}

// AddUsedBytes adjusts the account's used space by delta (positive or negative).
func (r *Repository) AddUsedBytes(ctx context.Context, accountID int64, delta int64) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE storages SET used_bytes = used_bytes + $2, updated_at = NOW()
		WHERE account_id = $1
	`, accountID, delta)
	if err != nil {
		return fmt.Errorf("failed to update used bytes: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// Usage returns the account's capacity and used byte counts. Together with
// AddUsed this satisfies the quota ledger's store contract.
func (r *Repository) Usage(ctx context.Context, accountID int64) (capacity, used int64, err error) {
	storage, err := r.GetStorageByAccount(ctx, accountID)
	if err != nil {
		return 0, 0, err
	}
	return storage.CapacityBytes, storage.UsedBytes, nil
}

// AddUsed adjusts the account's used byte count by delta.
func (r *Repository) AddUsed(ctx context.Context, accountID int64, delta int64) error {
	return r.AddUsedBytes(ctx, accountID, delta)
}

// SetUsedBytes overwrites the account's used space. Used by the
// reconciliation pass after recomputing usage from photo records.
func (r *Repository) SetUsedBytes(ctx context.Context, accountID int64, used int64) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE storages SET used_bytes = $2, updated_at = NOW()
		WHERE account_id = $1
	`, accountID, used)
	if err != nil {
		return fmt.Errorf("failed to set used bytes: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// CreatePhoto inserts a new photo record.
func (r *Repository) CreatePhoto(ctx context.Context, photo *Photo) error {
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO photos (account_id, storage_id, filename, size_bytes, content_hash)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, uploaded_at
	`,
		photo.AccountID,
		photo.StorageID,
		photo.Filename,
		photo.SizeBytes,
		photo.ContentHash,
	).Scan(&photo.ID, &photo.UploadedAt)
	if err != nil {
		return fmt.Errorf("failed to insert photo record: %w", err)
	}
	return nil
}

// DeletePhoto removes a single photo record.
func (r *Repository) DeletePhoto(ctx context.Context, photoID int64) error {
	_, err := r.db.Pool.Exec(ctx, "DELETE FROM photos WHERE id = $1", photoID)
	if err != nil {
		return fmt.Errorf("failed to delete photo record: %w", err)
	}
	return nil
}

// ListPhotos returns all photo records for an account.
func (r *Repository) ListPhotos(ctx context.Context, accountID int64) ([]*Photo, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, account_id, storage_id, filename, size_bytes, content_hash, uploaded_at
		FROM photos WHERE account_id = $1
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query photos: %w", err)
	}
	defer rows.Close()

	var photos []*Photo
	for rows.Next() {
		photo := &Photo{}
		if err := rows.Scan(
			&photo.ID,
			&photo.AccountID,
			&photo.StorageID,
			&photo.Filename,
			&photo.SizeBytes,
			&photo.ContentHash,
			&photo.UploadedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan photo: %w", err)
		}
		photos = append(photos, photo)
	}
	return photos, rows.Err()
}

// CountPhotos returns the number of photos stored for an account.
func (r *Repository) CountPhotos(ctx context.Context, accountID int64) (int64, error) {
	var count int64
	err := r.db.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM photos WHERE account_id = $1", accountID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count photos: %w", err)
	}
	return count, nil
}

// RandomPhoto picks one of the account's photos uniformly at random.
func (r *Repository) RandomPhoto(ctx context.Context, accountID int64) (*Photo, error) {
	photo := &Photo{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, account_id, storage_id, filename, size_bytes, content_hash, uploaded_at
		FROM photos WHERE account_id = $1
		ORDER BY random() LIMIT 1
	`, accountID).Scan(
		&photo.ID,
		&photo.AccountID,
		&photo.StorageID,
		&photo.Filename,
		&photo.SizeBytes,
		&photo.ContentHash,
		&photo.UploadedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoPhotos
		}
		return nil, fmt.Errorf("failed to pick random photo: %w", err)
	}
	return photo, nil
}

// DeleteAccount removes the account, its storage record and all its photo
// records in one transaction. The caller removes the on-disk storage root.
func (r *Repository) DeleteAccount(ctx context.Context, accountID int64) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM photos WHERE account_id = $1", accountID); err != nil {
		return fmt.Errorf("failed to delete photo records: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM storages WHERE account_id = $1", accountID); err != nil {
		return fmt.Errorf("failed to delete storage record: %w", err)
	}
	tag, err := tx.Exec(ctx, "DELETE FROM accounts WHERE id = $1", accountID)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit account deletion: %w", err)
	}
	return nil
}

// GetStats returns aggregate server statistics.
func (r *Repository) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM accounts),
			(SELECT COUNT(*) FROM photos),
			(SELECT COALESCE(SUM(used_bytes), 0) FROM storages)
	`).Scan(&stats.TotalAccounts, &stats.TotalPhotos, &stats.BytesStored)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}
	return stats, nil
}
