package destinations

import (
	"context"
	"errors"

	"github.com/jrsteele09/go-integrations/credentials"
)

// Request asks where a notification of Category for UserID should go.
type Request struct {
	UserID   string
	Category Category
	Explicit *Destination // always wins when set
	ScopeKey string       // the entity (client, workspace) the notification is about
}

// Step is one level of the fallback chain. It reports false when it has nothing to offer.
type Step func(req Request, prefs *Preferences) (Destination, bool)

// Resolver walks an ordered list of Steps; the first match wins.
type Resolver struct {
	prefs           PreferenceRepo
	steps           []Step
	systemDefault   *Destination
	defaultProvider credentials.Provider
}

type ResolverOption func(*Resolver)

// WithSystemDefault sets the operator configured fallback shared by all users.
func WithSystemDefault(dest Destination) ResolverOption {
	return func(r *Resolver) {
		if dest.IsZero() {
			r.systemDefault = nil
			return
		}
		r.systemDefault = &dest
	}
}

// WithDefaultProvider fills in destinations saved without a provider.
func WithDefaultProvider(provider credentials.Provider) ResolverOption {
	return func(r *Resolver) {
		r.defaultProvider = provider
	}
}

// WithSteps replaces the fallback chain.
func WithSteps(steps ...Step) ResolverOption {
	return func(r *Resolver) {
		r.steps = steps
	}
}

func NewResolver(prefs PreferenceRepo, options ...ResolverOption) (*Resolver, error) {
	if prefs == nil {
		return nil, errors.New("[NewResolver] preference repo is required")
	}
	r := &Resolver{
		prefs:           prefs,
		defaultProvider: credentials.ProviderSlack,
	}
	r.steps = []Step{ExplicitStep, ScopeOverrideStep, CategoryStep, UserDefaultStep, r.systemDefaultStep}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

// Resolve returns ErrUnresolved when no level of the chain produced a
// destination. Preference store failures are returned as they are.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Destination, error) {
	prefs := NewPreferences(req.UserID)
	if req.Explicit == nil || req.Explicit.IsZero() {
		req.Explicit = nil
		stored, err := r.prefs.Get(ctx, req.UserID)
		switch {
		case err == nil:
			prefs = stored
		case errors.Is(err, ErrNotFound):
		default:
			return Destination{}, err
		}
	}

	for _, step := range r.steps {
		if dest, ok := step(req, prefs); ok && !dest.IsZero() {
			if dest.Provider == "" {
				dest.Provider = r.defaultProvider
			}
			return dest, nil
		}
	}
	return Destination{}, ErrUnresolved
}

func ExplicitStep(req Request, _ *Preferences) (Destination, bool) {
	if req.Explicit == nil {
		return Destination{}, false
	}
	dest := *req.Explicit
	if dest.ScopeKey == "" {
		dest.ScopeKey = req.ScopeKey
	}
	dest.Source = SourceExplicit
	return dest, true
}

func ScopeOverrideStep(req Request, prefs *Preferences) (Destination, bool) {
	if req.ScopeKey == "" {
		return Destination{}, false
	}
	dest, ok := prefs.ScopeOverrides[req.ScopeKey][req.Category]
	if !ok {
		return Destination{}, false
	}
	if dest.ScopeKey == "" {
		dest.ScopeKey = req.ScopeKey
	}
	dest.Source = SourceScopeOverride
	return dest, true
}

func CategoryStep(req Request, prefs *Preferences) (Destination, bool) {
	dest, ok := prefs.Categories[req.Category]
	if !ok {
		return Destination{}, false
	}
	dest.Source = SourceCategoryPreference
	return dest, true
}

func UserDefaultStep(_ Request, prefs *Preferences) (Destination, bool) {
	if prefs.Default == nil {
		return Destination{}, false
	}
	dest := *prefs.Default
	dest.Source = SourceUserDefault
	return dest, true
}

func (r *Resolver) systemDefaultStep(_ Request, _ *Preferences) (Destination, bool) {
	if r.systemDefault == nil {
		return Destination{}, false
	}
	dest := *r.systemDefault
	dest.ScopeKey = ""
	dest.Source = SourceSystemDefault
	return dest, true
}
