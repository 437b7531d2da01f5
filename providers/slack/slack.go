// Package slack delivers notifications through the Slack Web API.
package slack

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-integrations/providers"
	"golang.org/x/oauth2"
)

const (
	ProviderName   = "slack"
	DefaultBaseURL = "https://slack.com/api"
)

// Endpoint is Slack's OAuth v2 endpoint. Slack expects client credentials in
// the form body.
var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://slack.com/oauth/v2/authorize",
	TokenURL:  "https://slack.com/api/oauth.v2.access",
	AuthStyle: oauth2.AuthStyleInParams,
}

func OAuthConfig(clientID, clientSecret string, scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     Endpoint,
		Scopes:       scopes,
	}
}

// AccountFromToken returns the workspace name from an oauth.v2.access response.
func AccountFromToken(tok *oauth2.Token) string {
	team, ok := tok.Extra("team").(map[string]interface{})
	if !ok {
		return ""
	}
	name, _ := team["name"].(string)
	return name
}

type Client struct {
	accessToken string
	baseURL     string
	httpClient  *http.Client
	nowFunc     func() time.Time
}

type Option func(*Client)

func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

func NewClient(accessToken string, options ...Option) (*Client, error) {
	if accessToken == "" {
		return nil, errors.New("[slack NewClient] access token is required")
	}
	c := &Client{
		accessToken: accessToken,
		baseURL:     DefaultBaseURL,
		httpClient:  http.DefaultClient,
		nowFunc:     time.Now,
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

type apiResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Channel string `json:"channel"`
	TS      string `json:"ts"`
}

// Send posts payload to a channel ID or user ID.
func (c *Client) Send(ctx context.Context, target string, payload providers.Payload) (*providers.Receipt, error) {
	if target == "" {
		return nil, &providers.APIError{Provider: ProviderName, StatusCode: http.StatusBadRequest, Code: "channel_not_found"}
	}
	body := map[string]interface{}{
		"channel": target,
		"text":    formatText(payload),
	}
	resp, err := c.call(ctx, "chat.postMessage", body)
	if err != nil {
		return nil, err
	}
	return &providers.Receipt{
		Provider:    ProviderName,
		Target:      resp.Channel,
		MessageID:   resp.TS,
		DeliveredAt: c.nowFunc(),
	}, nil
}

// Probe checks that the access token is still accepted.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.call(ctx, "auth.test", nil)
	return err
}

// call handles Slack's convention of answering 200 with ok=false.
func (c *Client) call(ctx context.Context, method string, body any) (*apiResponse, error) {
	raw, err := providers.DoJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/"+method, c.accessToken, body, decodeError)
	if err != nil {
		return nil, err
	}
	var resp apiResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, &providers.APIError{Provider: ProviderName, StatusCode: http.StatusOK, Code: resp.Error}
	}
	return &resp, nil
}

func decodeError(status int, _ http.Header, body []byte) *providers.APIError {
	apiErr := &providers.APIError{Provider: ProviderName, StatusCode: status}
	var resp apiResponse
	if json.Unmarshal(body, &resp) == nil && resp.Error != "" {
		apiErr.Code = resp.Error
	}
	if apiErr.Code == "" && status == http.StatusTooManyRequests {
		apiErr.Code = "ratelimited"
	}
	return apiErr
}

func formatText(p providers.Payload) string {
	var b strings.Builder
	if p.Subject != "" {
		b.WriteString("*" + p.Subject + "*\n")
	}
	b.WriteString(p.Text)
	for _, k := range p.SortedFieldKeys() {
		b.WriteString("\n• " + k + ": " + p.Fields[k])
	}
	return b.String()
}
