// Package microsoft delivers notifications as mail through Microsoft Graph.
package microsoft

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-integrations/providers"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

const (
	ProviderName   = "microsoft"
	DefaultBaseURL = "https://graph.microsoft.com/v1.0"
)

// DefaultScopes are requested at connect time. offline_access is what makes
// Azure AD issue a refresh token.
var DefaultScopes = []string{"offline_access", "User.Read", "Mail.Send"}

func OAuthConfig(clientID, clientSecret, tenant string, scopes []string) *oauth2.Config {
	if tenant == "" {
		tenant = "common"
	}
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     microsoft.AzureADEndpoint(tenant),
		Scopes:       scopes,
	}
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
		return nil, errors.New("[microsoft NewClient] access token is required")
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

type emailAddress struct {
	Address string `json:"address"`
}

type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

type itemBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type message struct {
	Subject      string      `json:"subject"`
	Body         itemBody    `json:"body"`
	ToRecipients []recipient `json:"toRecipients"`
}

type sendMailRequest struct {
	Message         message `json:"message"`
	SaveToSentItems bool    `json:"saveToSentItems"`
}

// Send mails payload to the target address from the connected mailbox.
func (c *Client) Send(ctx context.Context, target string, payload providers.Payload) (*providers.Receipt, error) {
	if target == "" {
		return nil, &providers.APIError{Provider: ProviderName, StatusCode: http.StatusBadRequest, Code: "ErrorInvalidRecipients"}
	}
	req := sendMailRequest{
		Message: message{
			Subject:      payload.Subject,
			Body:         itemBody{ContentType: "Text", Content: formatText(payload)},
			ToRecipients: []recipient{{EmailAddress: emailAddress{Address: target}}},
		},
		SaveToSentItems: true,
	}
	if _, err := providers.DoJSON(ctx, c.httpClient, http.MethodPost, c.baseURL+"/me/sendMail", c.accessToken, req, decodeError); err != nil {
		return nil, err
	}
	return &providers.Receipt{
		Provider:    ProviderName,
		Target:      target,
		DeliveredAt: c.nowFunc(),
	}, nil
}

type profile struct {
	Mail              string `json:"mail"`
	UserPrincipalName string `json:"userPrincipalName"`
}

// Probe reads the signed-in user's profile.
func (c *Client) Probe(ctx context.Context) error {
	_, err := c.Account(ctx)
	return err
}

// Account returns the mailbox address of the signed-in user.
func (c *Client) Account(ctx context.Context) (string, error) {
	raw, err := providers.DoJSON(ctx, c.httpClient, http.MethodGet, c.baseURL+"/me", c.accessToken, nil, decodeError)
	if err != nil {
		return "", err
	}
	var p profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", err
	}
	if p.Mail != "" {
		return p.Mail, nil
	}
	return p.UserPrincipalName, nil
}

type graphError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeError(status int, _ http.Header, body []byte) *providers.APIError {
	apiErr := &providers.APIError{Provider: ProviderName, StatusCode: status}
	var ge graphError
	if json.Unmarshal(body, &ge) == nil {
		apiErr.Code = ge.Error.Code
		apiErr.Message = ge.Error.Message
	}
	return apiErr
}

func formatText(p providers.Payload) string {
	var b strings.Builder
	b.WriteString(p.Text)
	for _, k := range p.SortedFieldKeys() {
		b.WriteString("\n" + k + ": " + p.Fields[k])
	}
	return b.String()
}
