package gormrepo

import (
	"context"
	"errors"
	"time"

	"github.com/jrsteele09/go-integrations/credentials"
	"github.com/jrsteele09/go-integrations/destinations"
	"gorm.io/gorm"
)

var _ destinations.PreferenceRepo = (*Repo)(nil)

// preferenceRecord is one row per (user, scope, category). Empty scope and
// category together hold the user default.
type preferenceRecord struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement"`
	UserID    string    `gorm:"column:user_id;not null;size:255;uniqueIndex:idx_destination_preferences_key,priority:1"`
	ScopeKey  string    `gorm:"column:scope_key;not null;default:'';size:255;uniqueIndex:idx_destination_preferences_key,priority:2"`
	Category  string    `gorm:"column:category;not null;default:'';size:64;uniqueIndex:idx_destination_preferences_key,priority:3"`
	Provider  string    `gorm:"column:provider;size:64"`
	Target    string    `gorm:"column:target;not null;size:255"`
	DestScope string    `gorm:"column:destination_scope_key;size:255"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (preferenceRecord) TableName() string {
	return "destination_preferences"
}

type Repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) (*Repo, error) {
	if db == nil {
		return nil, errors.New("[destinations gormrepo New] db is required")
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&preferenceRecord{})
}

func (r *Repo) Get(ctx context.Context, userID string) (*destinations.Preferences, error) {
	var recs []preferenceRecord
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&recs).Error; err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, destinations.ErrNotFound
	}
	return fromRecords(userID, recs), nil
}

// Upsert replaces the user's rows in one transaction.
func (r *Repo) Upsert(ctx context.Context, prefs *destinations.Preferences) error {
	if prefs == nil || prefs.UserID == "" {
		return errors.New("user id is required")
	}
	recs := toRecords(prefs)
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", prefs.UserID).Delete(&preferenceRecord{}).Error; err != nil {
			return err
		}
		if len(recs) == 0 {
			return nil
		}
		return tx.Create(&recs).Error
	})
}

func toRecords(prefs *destinations.Preferences) []preferenceRecord {
	recs := make([]preferenceRecord, 0)
	add := func(scopeKey string, category destinations.Category, d destinations.Destination) {
		if d.IsZero() {
			return
		}
		recs = append(recs, preferenceRecord{
			UserID:    prefs.UserID,
			ScopeKey:  scopeKey,
			Category:  string(category),
			Provider:  string(d.Provider),
			Target:    d.Target,
			DestScope: d.ScopeKey,
		})
	}
	for scopeKey, byCategory := range prefs.ScopeOverrides {
		if scopeKey == "" {
			continue
		}
		for category, d := range byCategory {
			add(scopeKey, category, d)
		}
	}
	for category, d := range prefs.Categories {
		if category == "" {
			continue
		}
		add("", category, d)
	}
	if prefs.Default != nil {
		add("", "", *prefs.Default)
	}
	return recs
}

func fromRecords(userID string, recs []preferenceRecord) *destinations.Preferences {
	prefs := destinations.NewPreferences(userID)
	for _, rec := range recs {
		d := destinations.Destination{
			Provider: credentials.Provider(rec.Provider),
			Target:   rec.Target,
			ScopeKey: rec.DestScope,
		}
		category := destinations.Category(rec.Category)
		switch {
		case rec.ScopeKey != "":
			prefs.SetScopeOverride(rec.ScopeKey, category, d)
		case rec.Category != "":
			prefs.SetCategory(category, d)
		default:
			prefs.Default = &d
		}
	}
	return prefs
}
