package database

import "time"

// Account is a registered user, keyed internally by ID and externally by the
// platform user ID the bot gateway sees.
type Account struct {
	ID           int64
	ExternalID   int64
	Username     *string
	FirstName    *string
	LastName     *string
	RegisteredAt time.Time
	LastSeenAt   time.Time
	Registered   bool
}

// StorageRecord is the 1:1 quota record for an account: where its photos
// live and how many bytes it may (and does) hold.
type StorageRecord struct {
	ID            int64
	AccountID     int64
	RootPath      string
	CapacityBytes int64
	UsedBytes     int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Photo is the metadata for one durably stored file. Filename is generated,
// never taken from the transport; SizeBytes and ContentHash are measured
// locally over the bytes actually written.
type Photo struct {
	ID          int64
	AccountID   int64
	StorageID   int64
	Filename    string
	SizeBytes   int64
	ContentHash string
	UploadedAt  time.Time
}

// Stats holds aggregate server statistics.
type Stats struct {
	TotalAccounts int64
	TotalPhotos   int64
	BytesStored   int64
}
