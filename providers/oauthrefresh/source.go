// Package oauthrefresh calls standard OAuth2 token endpoints with a refresh
// token using golang.org/x/oauth2.
package oauthrefresh

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-integrations/credentials"
	"golang.org/x/oauth2"
)

// AccountFunc extracts a display identifier from provider specific token fields.
type AccountFunc func(tok *oauth2.Token) string

type Source struct {
	config     *oauth2.Config
	httpClient *http.Client
	account    AccountFunc
}

type Option func(*Source)

func WithHTTPClient(client *http.Client) Option {
	return func(s *Source) {
		s.httpClient = client
	}
}

func WithAccountFunc(fn AccountFunc) Option {
	return func(s *Source) {
		s.account = fn
	}
}

func New(config *oauth2.Config, options ...Option) (*Source, error) {
	if config == nil {
		return nil, errors.New("[oauthrefresh New] oauth2 config is required")
	}
	if config.Endpoint.TokenURL == "" {
		return nil, errors.New("[oauthrefresh New] token url is required")
	}
	s := &Source{config: config}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Refresh exchanges refreshToken for a new access token. x/oauth2 does not
// send a scope parameter on refresh, so the provider reuses the original grant's
// scopes; the requested scopes are only used when the response omits its own.
// Errors are returned as produced by x/oauth2 (typically *oauth2.RetrieveError).
func (s *Source) Refresh(ctx context.Context, refreshToken string, scopes []string) (*credentials.Grant, error) {
	if s.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	}

	tok, err := s.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, err
	}

	grant := &credentials.Grant{
		AccessToken: tok.AccessToken,
		Expiry:      tok.Expiry,
		Scopes:      scopes,
	}
	// x/oauth2 echoes the request's refresh token when the response has none
	if tok.RefreshToken != refreshToken {
		grant.RefreshToken = tok.RefreshToken
	}
	if granted, ok := tok.Extra("scope").(string); ok && granted != "" {
		grant.Scopes = strings.FieldsFunc(granted, func(r rune) bool { return r == ' ' || r == ',' })
	}
	if s.account != nil {
		grant.AccountIdentifier = s.account(tok)
	}
	return grant, nil
}
