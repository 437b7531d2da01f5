// Package integrations is the entry point other subsystems use to act on a
// user's connected accounts: get a working provider client, deliver a
// notification, and report or change connection state.
package integrations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-integrations/classifier"
	"github.com/jrsteele09/go-integrations/credentials"
	"github.com/jrsteele09/go-integrations/destinations"
	"github.com/jrsteele09/go-integrations/health"
	interrors "github.com/jrsteele09/go-integrations/internal/errors"
	"github.com/jrsteele09/go-integrations/providers"
	"github.com/jrsteele09/go-integrations/token"
	"github.com/rs/zerolog/log"
)

const defaultProviderTimeout = 20 * time.Second

type Service struct {
	repo            credentials.Repo
	refresher       *token.Refresher
	tracker         *health.Tracker
	resolver        *destinations.Resolver
	clients         map[credentials.Provider]ClientFactory
	systemClients   map[credentials.Provider]Client
	providerTimeout time.Duration
}

type Option func(*Service)

// WithClientFactory registers how to build an API client for a provider.
func WithClientFactory(provider credentials.Provider, factory ClientFactory) Option {
	return func(s *Service) {
		s.clients[provider] = factory
	}
}

// WithSystemClient registers an operator owned client used for system default
// destinations and for unscoped preferences of users who have not connected
// the provider.
func WithSystemClient(provider credentials.Provider, client Client) Option {
	return func(s *Service) {
		s.systemClients[provider] = client
	}
}

func WithProviderTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.providerTimeout = d
		}
	}
}

// Deps are the collaborators a Service is assembled from.
type Deps struct {
	Repo      credentials.Repo
	Refresher *token.Refresher
	Tracker   *health.Tracker
	Resolver  *destinations.Resolver
}

func NewService(deps Deps, options ...Option) (*Service, error) {
	if deps.Repo == nil {
		return nil, errors.New("[NewService] credential repo is required")
	}
	if deps.Refresher == nil {
		return nil, errors.New("[NewService] refresher is required")
	}
	if deps.Tracker == nil {
		return nil, errors.New("[NewService] tracker is required")
	}
	if deps.Resolver == nil {
		return nil, errors.New("[NewService] resolver is required")
	}

	s := &Service{
		repo:            deps.Repo,
		refresher:       deps.Refresher,
		tracker:         deps.Tracker,
		resolver:        deps.Resolver,
		clients:         make(map[credentials.Provider]ClientFactory),
		systemClients:   make(map[credentials.Provider]Client),
		providerTimeout: defaultProviderTimeout,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// WithClient obtains a valid token for key and runs fn with a client bound to
// it. fn is not invoked when no token could be obtained. An error returned by
// fn is classified like a refresh failure and flags the connection when the
// provider rejected the token.
func (s *Service) WithClient(ctx context.Context, key credentials.Key, fn func(ctx context.Context, c Client) error) ClientResult {
	result := ClientResult{Key: key}

	accessToken, err := s.refresher.EnsureFreshToken(ctx, key)
	if err != nil {
		var refreshErr *token.RefreshError
		if errors.As(err, &refreshErr) {
			result.Status = statusForReason(refreshErr.Reason)
			result.Class = refreshErr.Class
		} else {
			result.Status = StatusTransient
			result.Class = classifier.Transient
		}
		result.Err = err
		return result
	}

	client, err := s.newClient(key.Provider, accessToken)
	if err != nil {
		result.Status = StatusFailed
		result.Err = err
		return result
	}

	callCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	if err := fn(callCtx, client); err != nil {
		result.Class = s.tracker.RecordSendFailure(context.WithoutCancel(ctx), key, accessToken, err)
		result.Status = statusForSendClass(result.Class)
		result.Err = err
		return result
	}

	result.Status = StatusOK
	return result
}

// Deliver resolves where a notification goes and sends it. Unresolved returns
// without any network call.
func (s *Service) Deliver(ctx context.Context, req DeliveryRequest) DeliveryResult {
	if req.UserID == "" {
		return DeliveryResult{Status: StatusFailed, Err: interrors.Wrapf(interrors.ErrInvalidRequest, "user id is required")}
	}

	dest, err := s.resolver.Resolve(ctx, destinations.Request{
		UserID:   req.UserID,
		Category: req.Category,
		Explicit: req.Explicit,
		ScopeKey: req.ScopeKey,
	})
	switch {
	case errors.Is(err, destinations.ErrUnresolved):
		log.Info().Str("user", req.UserID).Str("category", string(req.Category)).Msg("no destination configured")
		return DeliveryResult{Status: StatusUnresolved, Err: err}
	case err != nil:
		log.Warn().Err(err).Str("user", req.UserID).Msg("destination preferences unavailable")
		return DeliveryResult{Status: StatusTransient, Err: err}
	}

	if dest.Source == destinations.SourceSystemDefault {
		if system, ok := s.systemClients[dest.Provider]; ok {
			return s.sendWithSystemClient(ctx, system, dest, req.Payload)
		}
	}

	key := credentials.Key{UserID: req.UserID, Provider: dest.Provider, ScopeKey: dest.ScopeKey}
	var receipt *providers.Receipt
	result := s.WithClient(ctx, key, func(ctx context.Context, c Client) error {
		r, err := c.Send(ctx, dest.Target, req.Payload)
		receipt = r
		return err
	})

	if result.Status == StatusNotConnected && systemFallbackAllowed(dest) {
		if system, ok := s.systemClients[dest.Provider]; ok {
			return s.sendWithSystemClient(ctx, system, dest, req.Payload)
		}
	}

	out := DeliveryResult{Status: result.Status, Destination: dest, Err: result.Err}
	if result.OK() {
		out.Status = StatusDelivered
		out.Receipt = receipt
	}
	logDelivery(key, out)
	return out
}

// systemFallbackAllowed reports whether an unconnected user's destination may
// be reached with the system client. Explicit and scoped targets name channels
// in the user's own workspace, which the system client cannot post to.
func systemFallbackAllowed(dest destinations.Destination) bool {
	return dest.Source != destinations.SourceExplicit && dest.ScopeKey == ""
}

func (s *Service) sendWithSystemClient(ctx context.Context, client Client, dest destinations.Destination, payload providers.Payload) DeliveryResult {
	callCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	out := DeliveryResult{Destination: dest, UsedSystemClient: true}
	receipt, err := client.Send(callCtx, dest.Target, payload)
	if err != nil {
		class := classifier.Classify(err)
		out.Status = statusForSendClass(class)
		out.Err = err
		log.Error().Err(err).Str("provider", string(dest.Provider)).Str("class", class.String()).Msg("system client delivery failed")
		return out
	}
	out.Status = StatusDelivered
	out.Receipt = receipt
	return out
}

func logDelivery(key credentials.Key, r DeliveryResult) {
	switch r.Status {
	case StatusDelivered:
		log.Debug().Str("credential", key.String()).Str("target", r.Destination.Target).Msg("notification delivered")
	case StatusTransient:
		log.Warn().Err(r.Err).Str("credential", key.String()).Msg("delivery deferred")
	default:
		log.Error().Err(r.Err).Str("credential", key.String()).Str("status", string(r.Status)).Msg("delivery failed")
	}
}

func (s *Service) IsHealthy(ctx context.Context, key credentials.Key) bool {
	return s.tracker.IsHealthy(ctx, key)
}

func (s *Service) DescribeStatus(ctx context.Context, key credentials.Key) (health.Status, error) {
	if err := key.Validate(); err != nil {
		return health.Status{}, err
	}
	return s.tracker.Describe(ctx, key)
}

// ListConnections returns the status of every connection the user has for provider.
func (s *Service) ListConnections(ctx context.Context, userID string, provider credentials.Provider) ([]health.Status, error) {
	creds, err := s.repo.ListByUser(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	statuses := make([]health.Status, 0, len(creds))
	for _, c := range creds {
		statuses = append(statuses, health.StatusOf(c))
	}
	return statuses, nil
}

// Disconnect removes the credential immediately. Disconnecting an unknown key
// is not an error.
func (s *Service) Disconnect(ctx context.Context, key credentials.Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, key); err != nil {
		return interrors.Wrapf(err, "disconnect %s", key)
	}
	log.Info().Str("credential", key.String()).Msg("integration disconnected")
	return nil
}

// ConnectRequest carries the tokens from a completed authorization.
type ConnectRequest struct {
	Key   credentials.Key
	Grant credentials.Grant
}

// Connect stores the result of an authorization. Reconnecting an existing key
// keeps its identity, and keeps its refresh token when the provider did not
// issue a new one.
func (s *Service) Connect(ctx context.Context, req ConnectRequest) (*credentials.Credential, error) {
	if err := req.Key.Validate(); err != nil {
		return nil, err
	}
	if req.Grant.AccessToken == "" {
		return nil, interrors.Wrapf(interrors.ErrInvalidRequest, "%v", interrors.ErrNoAccessToken)
	}

	expiresAt := s.refresher.ExpiresAt(&req.Grant)
	return s.tracker.RecordAuthorized(ctx, req.Key, req.Grant, expiresAt)
}

// CheckHealth refreshes the token if needed and probes the provider with it.
// A successful probe clears a previous error flag.
func (s *Service) CheckHealth(ctx context.Context, key credentials.Key) (health.Status, error) {
	if err := key.Validate(); err != nil {
		return health.Status{}, err
	}

	if _, err := s.refresher.EnsureFreshToken(ctx, key); err != nil {
		if reason, _ := token.ReasonOf(err); reason == token.ReasonTransient {
			return health.Status{}, err
		}
		return s.tracker.Describe(ctx, key)
	}

	factory, ok := s.clients[key.Provider]
	if ok {
		probe := func(ctx context.Context, accessToken string) error {
			client, err := factory(accessToken)
			if err != nil {
				return err
			}
			callCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
			defer cancel()
			return client.Probe(callCtx)
		}
		if err := s.tracker.ReportRecovered(ctx, key, probe); err != nil && classifier.IsTransient(err) {
			return health.Status{}, err
		}
	}
	return s.tracker.Describe(ctx, key)
}

func (s *Service) newClient(provider credentials.Provider, accessToken string) (Client, error) {
	factory, ok := s.clients[provider]
	if !ok {
		return nil, fmt.Errorf("%w: no client for %s", interrors.ErrProviderNotRegistered, provider)
	}
	return factory(accessToken)
}
