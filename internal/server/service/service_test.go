package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"photovault/internal/server/config"
	"photovault/internal/server/database"
	"photovault/internal/server/quota"
	"photovault/internal/server/session"
	"photovault/internal/server/storage"
)

// fakeRepo is an in-memory implementation of Repo and of the quota ledger's
// store contract.
type fakeRepo struct {
	mu       sync.Mutex
	accounts map[int64]*database.Account       // keyed by external ID
	storages map[int64]*database.StorageRecord // keyed by account ID
	photos   map[int64][]*database.Photo       // keyed by account ID
	nextID   int64

	failCreatePhoto bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		accounts: make(map[int64]*database.Account),
		storages: make(map[int64]*database.StorageRecord),
		photos:   make(map[int64][]*database.Photo),
	}
}

func (r *fakeRepo) GetAccountByExternalID(ctx context.Context, externalID int64) (*database.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[externalID]
	if !ok {
		return nil, database.ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func (r *fakeRepo) CreateAccount(ctx context.Context, account *database.Account, storageRec *database.StorageRecord, maxAccounts int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.accounts) >= maxAccounts {
		return database.ErrAccountLimit
	}
	r.nextID++
	account.ID = r.nextID
	account.Registered = true
	account.RegisteredAt = time.Now()
	r.accounts[account.ExternalID] = account

	r.nextID++
	storageRec.ID = r.nextID
	storageRec.AccountID = account.ID
	r.storages[account.ID] = storageRec
	return nil
}

func (r *fakeRepo) TouchLastSeen(ctx context.Context, accountID int64) error { return nil }

func (r *fakeRepo) GetStorageByAccount(ctx context.Context, accountID int64) (*database.StorageRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	storageRec, ok := r.storages[accountID]
	if !ok {
		return nil, database.ErrAccountNotFound
	}
	copied := *storageRec
	return &copied, nil
}

func (r *fakeRepo) SetUsedBytes(ctx context.Context, accountID int64, used int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	storageRec, ok := r.storages[accountID]
	if !ok {
		return database.ErrAccountNotFound
	}
	storageRec.UsedBytes = used
	return nil
}

func (r *fakeRepo) CreatePhoto(ctx context.Context, photo *database.Photo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreatePhoto {
		return errors.New("record store unavailable")
	}
	r.nextID++
	photo.ID = r.nextID
	photo.UploadedAt = time.Now()
	r.photos[photo.AccountID] = append(r.photos[photo.AccountID], photo)
	return nil
}

func (r *fakeRepo) DeletePhoto(ctx context.Context, photoID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for accountID, photos := range r.photos {
		for i, p := range photos {
			if p.ID == photoID {
				r.photos[accountID] = append(photos[:i], photos[i+1:]...)
				return nil
			}
		}
	}
	return nil
}

func (r *fakeRepo) ListPhotos(ctx context.Context, accountID int64) ([]*database.Photo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*database.Photo(nil), r.photos[accountID]...), nil
}

func (r *fakeRepo) CountPhotos(ctx context.Context, accountID int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.photos[accountID])), nil
}

func (r *fakeRepo) RandomPhoto(ctx context.Context, accountID int64) (*database.Photo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	photos := r.photos[accountID]
	if len(photos) == 0 {
		return nil, database.ErrNoPhotos
	}
	copied := *photos[0]
	return &copied, nil
}

func (r *fakeRepo) DeleteAccount(ctx context.Context, accountID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for externalID, account := range r.accounts {
		if account.ID == accountID {
			delete(r.accounts, externalID)
			delete(r.storages, accountID)
			delete(r.photos, accountID)
			return nil
		}
	}
	return database.ErrAccountNotFound
}

func (r *fakeRepo) GetStats(ctx context.Context) (*database.Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stats := &database.Stats{TotalAccounts: int64(len(r.accounts))}
	for _, photos := range r.photos {
		stats.TotalPhotos += int64(len(photos))
	}
	for _, storageRec := range r.storages {
		stats.BytesStored += storageRec.UsedBytes
	}
	return stats, nil
}

// Usage and AddUsed back the quota ledger.

func (r *fakeRepo) Usage(ctx context.Context, accountID int64) (capacity, used int64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	storageRec, ok := r.storages[accountID]
	if !ok {
		return 0, 0, database.ErrAccountNotFound
	}
	return storageRec.CapacityBytes, storageRec.UsedBytes, nil
}

func (r *fakeRepo) AddUsed(ctx context.Context, accountID int64, delta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	storageRec, ok := r.storages[accountID]
	if !ok {
		return database.ErrAccountNotFound
	}
	storageRec.UsedBytes += delta
	return nil
}

// nopNotifier discards notices.
type nopNotifier struct{}

func (nopNotifier) Notify(ctx context.Context, replyTo, text string) {}

// testEnv bundles a service wired against the fake repo and a real
// filesystem store in a temp dir.
type testEnv struct {
	svc       *Service
	repo      *fakeRepo
	store     *storage.FileSystemStore
	ledger    *quota.Ledger
	uploads   *session.UploadTracker
	deletions *session.DeletionTracker
	cfg       *config.Config
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := newFakeRepo()
	store := storage.NewFileSystemStore(t.TempDir())
	cfg := &config.Config{
		MaxAccounts:          2,
		DefaultQuotaBytes:    100,
		MaxUploadBytes:       1 << 20,
		SessionIdleTimeout:   10 * time.Second,
		DeleteConfirmTimeout: 20 * time.Second,
	}
	uploads := session.NewUploadTracker(nopNotifier{}, cfg.SessionIdleTimeout)
	deletions := session.NewDeletionTracker(cfg.DeleteConfirmTimeout)
	ledger := quota.NewLedger(repo)
	svc := New(repo, store, ledger, uploads, deletions, cfg)
	return &testEnv{svc: svc, repo: repo, store: store, ledger: ledger, uploads: uploads, deletions: deletions, cfg: cfg}
}

// register creates an account through the service and returns it.
func (e *testEnv) register(t *testing.T, externalID int64) (*database.Account, *database.StorageRecord) {
	t.Helper()
	account, storageRec, err := e.svc.Register(context.Background(), Profile{ExternalID: externalID})
	if err != nil {
		t.Fatalf("registration failed: %v", err)
	}
	return account, storageRec
}
