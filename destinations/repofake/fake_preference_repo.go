package preferencerepofake

import (
	"context"
	"errors"
	"sync"

	"github.com/jrsteele09/go-integrations/destinations"
)

var _ destinations.PreferenceRepo = (*FakePreferenceRepo)(nil)

type FakePreferenceRepo struct {
	prefs map[string]*destinations.Preferences
	lock  sync.RWMutex
	err   error
}

func NewFakePreferenceRepo() *FakePreferenceRepo {
	return &FakePreferenceRepo{
		prefs: make(map[string]*destinations.Preferences),
	}
}

// FailWith makes every subsequent Get return err.
func (pr *FakePreferenceRepo) FailWith(err error) {
	pr.lock.Lock()
	defer pr.lock.Unlock()
	pr.err = err
}

func (pr *FakePreferenceRepo) Get(_ context.Context, userID string) (*destinations.Preferences, error) {
	pr.lock.RLock()
	defer pr.lock.RUnlock()

	if pr.err != nil {
		return nil, pr.err
	}
	p, ok := pr.prefs[userID]
	if !ok {
		return nil, destinations.ErrNotFound
	}
	return p.Clone(), nil
}

func (pr *FakePreferenceRepo) Upsert(_ context.Context, prefs *destinations.Preferences) error {
	if prefs == nil || prefs.UserID == "" {
		return errors.New("user id is required")
	}

	pr.lock.Lock()
	defer pr.lock.Unlock()

	pr.prefs[prefs.UserID] = prefs.Clone()
	return nil
}
