package credentials

import "context"

// Repo is durable storage of one Credential per Key. Writes replace the whole
// record; Update is the atomic read-modify-write section every mutation of an
// existing record must go through.
type Repo interface {
	// Get returns ErrNotFound when no record exists for the key
	Get(ctx context.Context, key Key) (*Credential, error)

	// Upsert creates or replaces the record for credential.Key()
	Upsert(ctx context.Context, credential *Credential) error

	// Update reads the current record, applies fn and writes it back atomically.
	// Returns ErrNotFound when no record exists. If fn returns an error nothing is written.
	Update(ctx context.Context, key Key, fn func(c *Credential) error) (*Credential, error)

	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, key Key) error

	// ListByUser returns every scoped connection a user has for a provider
	ListByUser(ctx context.Context, userID string, provider Provider) ([]*Credential, error)

	// List pages through all records ordered by creation time
	List(ctx context.Context, offset, limit int) ([]*Credential, error)
}
