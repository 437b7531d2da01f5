package gormrepo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-integrations/credentials"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ credentials.Repo = (*Repo)(nil)

// Repo stores credentials in Postgres through gorm. Token columns are sealed.
type Repo struct {
	db     *gorm.DB
	sealer credentials.Sealer
}

func New(db *gorm.DB, sealer credentials.Sealer) (*Repo, error) {
	if db == nil {
		return nil, errors.New("[gormrepo New] db is required")
	}
	if sealer == nil {
		return nil, errors.New("[gormrepo New] sealer is required")
	}
	return &Repo{db: db, sealer: sealer}, nil
}

// Migrate creates or updates the credentials table and its unique key index.
func (r *Repo) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&credentialRecord{})
}

func byKey(db *gorm.DB, key credentials.Key) *gorm.DB {
	return db.Where("user_id = ? AND provider = ? AND scope_key = ?", key.UserID, string(key.Provider), key.ScopeKey)
}

func (r *Repo) Get(ctx context.Context, key credentials.Key) (*credentials.Credential, error) {
	var rec credentialRecord
	if err := byKey(r.db.WithContext(ctx), key).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, credentials.ErrNotFound
		}
		return nil, err
	}
	return fromRecord(&rec, r.sealer)
}

func (r *Repo) Upsert(ctx context.Context, credential *credentials.Credential) error {
	if err := credential.Key().Validate(); err != nil {
		return err
	}
	rec, err := toRecord(credential, r.sealer)
	if err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "provider"}, {Name: "scope_key"}},
		DoUpdates: clause.AssignmentColumns(mutableColumns),
	}).Create(rec).Error
}

// Update locks the row with SELECT ... FOR UPDATE for the duration of fn.
func (r *Repo) Update(ctx context.Context, key credentials.Key, fn func(c *credentials.Credential) error) (*credentials.Credential, error) {
	var updated *credentials.Credential
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec credentialRecord
		if err := byKey(tx.Clauses(clause.Locking{Strength: "UPDATE"}), key).Take(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return credentials.ErrNotFound
			}
			return err
		}
		current, err := fromRecord(&rec, r.sealer)
		if err != nil {
			return err
		}
		if err := fn(current); err != nil {
			return err
		}
		current.ID, current.CreatedAt = rec.ID, rec.CreatedAt
		current.UserID, current.Provider, current.ScopeKey = key.UserID, key.Provider, key.ScopeKey

		next, err := toRecord(current, r.sealer)
		if err != nil {
			return err
		}
		if err := tx.Save(next).Error; err != nil {
			return err
		}
		current.UpdatedAt = next.UpdatedAt
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *Repo) Delete(ctx context.Context, key credentials.Key) error {
	return byKey(r.db.WithContext(ctx), key).Delete(&credentialRecord{}).Error
}

func (r *Repo) ListByUser(ctx context.Context, userID string, provider credentials.Provider) ([]*credentials.Credential, error) {
	var recs []credentialRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, string(provider)).
		Order("created_at asc").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	return r.openAll(recs), nil
}

func (r *Repo) List(ctx context.Context, offset, limit int) ([]*credentials.Credential, error) {
	q := r.db.WithContext(ctx).Order("created_at asc, id asc").Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []credentialRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	return r.openAll(recs), nil
}

// openAll skips records that cannot be opened; single-key reads still surface them as ErrCorrupt.
func (r *Repo) openAll(recs []credentialRecord) []*credentials.Credential {
	list := make([]*credentials.Credential, 0, len(recs))
	for i := range recs {
		c, err := fromRecord(&recs[i], r.sealer)
		if err != nil {
			log.Warn().Err(err).Str("credential_id", recs[i].ID).Msg("skipping unreadable credential")
			continue
		}
		list = append(list, c)
	}
	return list
}
