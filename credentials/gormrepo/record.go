package gormrepo

import (
	"strings"
	"time"

	"github.com/jrsteele09/go-integrations/credentials"
	"github.com/pkg/errors"
)

type credentialRecord struct {
	ID                string     `gorm:"column:id;primaryKey;size:36"`
	UserID            string     `gorm:"column:user_id;not null;size:255;uniqueIndex:idx_integration_credentials_key,priority:1"`
	Provider          string     `gorm:"column:provider;not null;size:64;uniqueIndex:idx_integration_credentials_key,priority:2"`
	ScopeKey          string     `gorm:"column:scope_key;not null;default:'';size:255;uniqueIndex:idx_integration_credentials_key,priority:3"`
	AccessToken       string     `gorm:"column:access_token;type:text;not null"`
	RefreshToken      string     `gorm:"column:refresh_token;type:text"`
	ExpiresAt         time.Time  `gorm:"column:expires_at;not null"`
	GrantedScopes     string     `gorm:"column:granted_scopes;type:text"`
	AccountIdentifier string     `gorm:"column:account_identifier;size:255"`
	Healthy           bool       `gorm:"column:healthy;not null"`
	LastErrorMessage  string     `gorm:"column:last_error_message;type:text"`
	LastErrorAt       *time.Time `gorm:"column:last_error_at"`
	LastRefreshedAt   *time.Time `gorm:"column:last_refreshed_at"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (credentialRecord) TableName() string {
	return "integration_credentials"
}

// mutableColumns are rewritten on upsert conflicts; id and created_at stay with the first insert.
var mutableColumns = []string{
	"access_token", "refresh_token", "expires_at", "granted_scopes", "account_identifier",
	"healthy", "last_error_message", "last_error_at", "last_refreshed_at", "updated_at",
}

func toRecord(c *credentials.Credential, sealer credentials.Sealer) (*credentialRecord, error) {
	access, err := sealer.Seal(c.AccessToken)
	if err != nil {
		return nil, errors.Wrap(err, "toRecord seal access token")
	}
	refresh, err := sealer.Seal(c.RefreshToken)
	if err != nil {
		return nil, errors.Wrap(err, "toRecord seal refresh token")
	}
	return &credentialRecord{
		ID:                c.ID,
		UserID:            c.UserID,
		Provider:          string(c.Provider),
		ScopeKey:          c.ScopeKey,
		AccessToken:       access,
		RefreshToken:      refresh,
		ExpiresAt:         c.ExpiresAt.UTC(),
		GrantedScopes:     strings.Join(c.GrantedScopes, " "),
		AccountIdentifier: c.AccountIdentifier,
		Healthy:           c.Healthy,
		LastErrorMessage:  c.LastErrorMessage,
		LastErrorAt:       c.LastErrorAt,
		LastRefreshedAt:   c.LastRefreshedAt,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}, nil
}

func fromRecord(rec *credentialRecord, sealer credentials.Sealer) (*credentials.Credential, error) {
	access, err := sealer.Open(rec.AccessToken)
	if err != nil {
		return nil, err
	}
	refresh, err := sealer.Open(rec.RefreshToken)
	if err != nil {
		return nil, err
	}
	c := &credentials.Credential{
		ID:                rec.ID,
		UserID:            rec.UserID,
		Provider:          credentials.Provider(rec.Provider),
		ScopeKey:          rec.ScopeKey,
		AccessToken:       access,
		RefreshToken:      refresh,
		ExpiresAt:         rec.ExpiresAt,
		GrantedScopes:     strings.Fields(rec.GrantedScopes),
		AccountIdentifier: rec.AccountIdentifier,
		Healthy:           rec.Healthy,
		LastErrorMessage:  rec.LastErrorMessage,
		LastErrorAt:       rec.LastErrorAt,
		LastRefreshedAt:   rec.LastRefreshedAt,
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
