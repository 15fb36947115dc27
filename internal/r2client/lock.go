package r2client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// LockInfo is the JSON body of a lock object.
type LockInfo struct {
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Lock is a lease held as an object in the bucket. Acquisition relies on
// conditional writes, so at most one owner holds an unexpired lease.
type Lock struct {
	store Store
	key   string
	ttl   time.Duration
	owner string
	etag  string
	now   func() time.Time
}

// NewLock creates a lock on key with a fresh owner ID.
func NewLock(store Store, key string, ttl time.Duration) *Lock {
	return &Lock{
		store: store,
		key:   key,
		ttl:   ttl,
		owner: uuid.NewString(),
		now:   time.Now,
	}
}

// Owner returns this lock's owner ID.
func (l *Lock) Owner() string {
	return l.owner
}

// Acquire takes the lease. It reports false, nil when another owner holds
// an unexpired lease. An expired lease is taken over with If-Match on the
// stale ETag so only one contender wins.
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	body, err := l.body()
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}

	created, etag, err := l.store.PutIfNotExists(ctx, l.key, bytes.NewReader(body), "application/json")
	if err != nil {
		return false, fmt.Errorf("acquire lock: %w", err)
	}
	if created {
		l.etag = etag
		return true, nil
	}

	info, staleETag, err := l.read(ctx)
	if errors.Is(err, ErrNotFound) {
		// Released between our two calls; one retry of the create.
		created, etag, err = l.store.PutIfNotExists(ctx, l.key, bytes.NewReader(body), "application/json")
		if err != nil || !created {
			return false, err
		}
		l.etag = etag
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("acquire lock: read holder: %w", err)
	}
	if info != nil && l.now().Before(info.ExpiresAt) {
		return false, nil
	}

	stolen, etag, err := l.store.PutIfMatch(ctx, l.key, bytes.NewReader(body), staleETag, "application/json")
	if err != nil {
		return false, fmt.Errorf("acquire lock: take over: %w", err)
	}
	if stolen {
		l.etag = etag
	}
	return stolen, nil
}

// Renew extends the lease. It reports false when the lease was lost.
func (l *Lock) Renew(ctx context.Context) (bool, error) {
	if l.etag == "" {
		return false, nil
	}
	body, err := l.body()
	if err != nil {
		return false, fmt.Errorf("renew lock: %w", err)
	}

	ok, etag, err := l.store.PutIfMatch(ctx, l.key, bytes.NewReader(body), l.etag, "application/json")
	if err != nil {
		return false, fmt.Errorf("renew lock: %w", err)
	}
	if !ok {
		l.etag = ""
		return false, nil
	}
	l.etag = etag
	return true, nil
}

// Release deletes the lock object if this owner still holds it.
func (l *Lock) Release(ctx context.Context) error {
	defer func() { l.etag = "" }()

	info, _, err := l.read(ctx)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	if info != nil && info.Owner != l.owner {
		return nil
	}
	return l.store.Delete(ctx, l.key)
}

func (l *Lock) body() ([]byte, error) {
	return json.Marshal(LockInfo{Owner: l.owner, ExpiresAt: l.now().Add(l.ttl)})
}

// read returns the current holder. A body that is not valid JSON yields a
// nil info, which callers treat as expired.
func (l *Lock) read(ctx context.Context) (*LockInfo, string, error) {
	rc, etag, err := l.store.Download(ctx, l.key)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = rc.Close() }()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, "", fmt.Errorf("read lock: %w", err)
	}

	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, etag, nil
	}
	return &info, etag, nil
}
