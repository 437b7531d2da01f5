package credentialrepofake

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-integrations/credentials"
)

var _ credentials.Repo = (*FakeCredentialRepo)(nil)

// FakeCredentialRepo is an in-memory credentials.Repo. Records are copied on
// the way in and out so callers never share state with the store.
type FakeCredentialRepo struct {
	credentials map[credentials.Key]*credentials.Credential
	lock        sync.RWMutex
	nowFunc     func() time.Time
}

func NewFakeCredentialRepo() *FakeCredentialRepo {
	return &FakeCredentialRepo{
		credentials: make(map[credentials.Key]*credentials.Credential),
		nowFunc:     time.Now,
	}
}

func (cr *FakeCredentialRepo) Get(_ context.Context, key credentials.Key) (*credentials.Credential, error) {
	cr.lock.RLock()
	defer cr.lock.RUnlock()

	c, ok := cr.credentials[key]
	if !ok {
		return nil, credentials.ErrNotFound
	}
	return c.Clone(), nil
}

func (cr *FakeCredentialRepo) Upsert(_ context.Context, credential *credentials.Credential) error {
	if err := credential.Key().Validate(); err != nil {
		return err
	}

	cr.lock.Lock()
	defer cr.lock.Unlock()

	stored := credential.Clone()
	now := cr.nowFunc()
	if existing, ok := cr.credentials[stored.Key()]; ok {
		stored.ID = existing.ID
		stored.CreatedAt = existing.CreatedAt
	} else {
		if stored.ID == "" {
			stored.ID = uuid.New().String()
		}
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = now
		}
	}
	stored.UpdatedAt = now
	cr.credentials[stored.Key()] = stored
	return nil
}

func (cr *FakeCredentialRepo) Update(_ context.Context, key credentials.Key, fn func(c *credentials.Credential) error) (*credentials.Credential, error) {
	cr.lock.Lock()
	defer cr.lock.Unlock()

	existing, ok := cr.credentials[key]
	if !ok {
		return nil, credentials.ErrNotFound
	}

	working := existing.Clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	// identity is owned by the store
	working.ID = existing.ID
	working.UserID, working.Provider, working.ScopeKey = key.UserID, key.Provider, key.ScopeKey
	working.CreatedAt = existing.CreatedAt
	working.UpdatedAt = cr.nowFunc()

	cr.credentials[key] = working
	return working.Clone(), nil
}

func (cr *FakeCredentialRepo) Delete(_ context.Context, key credentials.Key) error {
	cr.lock.Lock()
	defer cr.lock.Unlock()

	delete(cr.credentials, key)
	return nil
}

func (cr *FakeCredentialRepo) ListByUser(_ context.Context, userID string, provider credentials.Provider) ([]*credentials.Credential, error) {
	cr.lock.RLock()
	defer cr.lock.RUnlock()

	list := make([]*credentials.Credential, 0)
	for k, c := range cr.credentials {
		if k.UserID == userID && k.Provider == provider {
			list = append(list, c.Clone())
		}
	}
	sortByCreated(list)
	return list, nil
}

func (cr *FakeCredentialRepo) List(_ context.Context, offset, limit int) ([]*credentials.Credential, error) {
	cr.lock.RLock()
	defer cr.lock.RUnlock()

	list := make([]*credentials.Credential, 0, len(cr.credentials))
	for _, c := range cr.credentials {
		list = append(list, c.Clone())
	}
	sortByCreated(list)

	if offset < 0 || offset >= len(list) {
		return nil, nil
	}
	end := len(list)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return list[offset:end], nil
}

// Len reports how many records are stored.
func (cr *FakeCredentialRepo) Len() int {
	cr.lock.RLock()
	defer cr.lock.RUnlock()
	return len(cr.credentials)
}

func sortByCreated(list []*credentials.Credential) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].Key().String() < list[j].Key().String()
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}
