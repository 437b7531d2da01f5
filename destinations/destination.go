package destinations

import (
	"context"

	"github.com/jrsteele09/go-integrations/credentials"
	interrors "github.com/jrsteele09/go-integrations/internal/errors"
)

var (
	ErrUnresolved = interrors.ErrUnresolved
	ErrNotFound   = interrors.ErrNotFound
)

// Category is a logical kind of outbound notification.
type Category string

const (
	CategoryTaskAlerts       Category = "task_alerts"
	CategoryInvoiceReminders Category = "invoice_reminders"
	CategoryExpenseAlerts    Category = "expense_alerts"
	CategoryEmailDigest      Category = "email_digest"
	CategoryDailySummary     Category = "daily_summary"
)

// Source records which level of the fallback chain produced a Destination.
type Source string

const (
	SourceExplicit           Source = "explicit"
	SourceScopeOverride      Source = "scope_override"
	SourceCategoryPreference Source = "category_preference"
	SourceUserDefault        Source = "user_default"
	SourceSystemDefault      Source = "system_default"
)

// Destination is the concrete channel or account a notification goes to.
// ScopeKey selects which of the user's connections delivers it.
type Destination struct {
	Provider credentials.Provider `json:"provider"`
	Target   string               `json:"target"`
	ScopeKey string               `json:"scope_key,omitempty"`
	Source   Source               `json:"source,omitempty"`
}

func (d Destination) IsZero() bool {
	return d.Target == ""
}

// Preferences are the user's destination settings. They are owned by the
// settings screens; the resolver only reads them.
type Preferences struct {
	UserID         string
	ScopeOverrides map[string]map[Category]Destination // scope key -> category -> destination
	Categories     map[Category]Destination
	Default        *Destination
}

func NewPreferences(userID string) *Preferences {
	return &Preferences{
		UserID:         userID,
		ScopeOverrides: make(map[string]map[Category]Destination),
		Categories:     make(map[Category]Destination),
	}
}

// SetScopeOverride routes category to dest for notifications about scopeKey.
func (p *Preferences) SetScopeOverride(scopeKey string, category Category, dest Destination) {
	if p.ScopeOverrides == nil {
		p.ScopeOverrides = make(map[string]map[Category]Destination)
	}
	if p.ScopeOverrides[scopeKey] == nil {
		p.ScopeOverrides[scopeKey] = make(map[Category]Destination)
	}
	p.ScopeOverrides[scopeKey][category] = dest
}

func (p *Preferences) SetCategory(category Category, dest Destination) {
	if p.Categories == nil {
		p.Categories = make(map[Category]Destination)
	}
	p.Categories[category] = dest
}

func (p *Preferences) Clone() *Preferences {
	cp := NewPreferences(p.UserID)
	for scope, byCategory := range p.ScopeOverrides {
		for category, dest := range byCategory {
			cp.SetScopeOverride(scope, category, dest)
		}
	}
	for category, dest := range p.Categories {
		cp.Categories[category] = dest
	}
	if p.Default != nil {
		d := *p.Default
		cp.Default = &d
	}
	return cp
}

// PreferenceRepo is the user preference storage the resolver reads from.
type PreferenceRepo interface {
	// Get returns ErrNotFound when the user has saved no preferences
	Get(ctx context.Context, userID string) (*Preferences, error)

	// Upsert replaces all of a user's destination preferences
	Upsert(ctx context.Context, prefs *Preferences) error
}
