package couchbase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"
	"github.com/rs/zerolog/log"
)

const (
	lockDocID  = "export_lock"
	defaultTTL = time.Hour
)

// ErrLocked is returned when another export holds the lock
var ErrLocked = errors.New("export is locked by another run")

type lockDocument struct {
	Locked    bool      `json:"locked"`
	LockedAt  time.Time `json:"lockedAt"`
	LockedBy  string    `json:"lockedBy"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ExportLock keeps two batch exports from writing the same bucket at once.
// A lock left behind by a crashed run expires after TTL.
type ExportLock struct {
	bucket *gocb.Bucket
	owner  string
	TTL    time.Duration
	cas    gocb.Cas
}

// NewExportLock creates a lock held in the name of owner
func NewExportLock(bucket *gocb.Bucket, owner string) *ExportLock {
	return &ExportLock{
		bucket: bucket,
		owner:  owner,
		TTL:    defaultTTL,
	}
}

// Lock takes the lock or fails with ErrLocked
func (l *ExportLock) Lock(ctx context.Context) error {
	col := l.bucket.DefaultCollection()
	now := time.Now().UTC()
	doc := lockDocument{
		Locked:    true,
		LockedAt:  now,
		LockedBy:  l.owner,
		ExpiresAt: now.Add(l.TTL),
	}

	res, err := col.Insert(lockDocID, doc, &gocb.InsertOptions{Context: ctx})
	if err == nil {
		l.cas = res.Cas()
		log.Info().Str("owner", l.owner).Msg("Export locked successfully")
		return nil
	}
	if !errors.Is(err, gocb.ErrDocumentExists) {
		return fmt.Errorf("failed to create lock document: %w", err)
	}

	// Take over an expired lock
	current, err := col.Get(lockDocID, &gocb.GetOptions{Context: ctx})
	if err != nil {
		return fmt.Errorf("failed to check lock status: %w", err)
	}

	var held lockDocument
	if err := current.Content(&held); err != nil {
		return fmt.Errorf("failed to parse lock document: %w", err)
	}
	if now.Before(held.ExpiresAt) {
		return fmt.Errorf("held by %s until %s: %w", held.LockedBy, held.ExpiresAt.Format(time.RFC3339), ErrLocked)
	}

	res2, err := col.Replace(lockDocID, doc, &gocb.ReplaceOptions{Context: ctx, Cas: current.Cas()})
	if err != nil {
		if errors.Is(err, gocb.ErrCasMismatch) {
			return fmt.Errorf("lock taken concurrently: %w", ErrLocked)
		}
		return fmt.Errorf("failed to replace expired lock document: %w", err)
	}

	l.cas = res2.Cas()
	log.Warn().
		Str("owner", l.owner).
		Str("previous_owner", held.LockedBy).
		Msg("Took over expired export lock")
	return nil
}

// Unlock releases a lock taken by this instance
func (l *ExportLock) Unlock(ctx context.Context) error {
	if l.cas == 0 {
		return fmt.Errorf("export is not locked")
	}

	col := l.bucket.DefaultCollection()
	_, err := col.Remove(lockDocID, &gocb.RemoveOptions{Context: ctx, Cas: l.cas})
	if err != nil {
		return fmt.Errorf("failed to remove lock document: %w", err)
	}

	l.cas = 0
	log.Info().Str("owner", l.owner).Msg("Export unlocked successfully")
	return nil
}
