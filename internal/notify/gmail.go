package notify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailSender delivers email through the Gmail REST API using stored
// OAuth credentials. The service is built lazily on first send so a
// misconfigured primary channel degrades to the fallback instead of
// failing startup.
// Params: OAuth client credentials file and cached token file.
// Returns: email sender authenticated as the token's account.
type GmailSender struct {
	credentialsPath string
	tokenPath       string
	from            string

	once    sync.Once
	service *gmail.Service
	initErr error
}

// NewGmailSender builds the lazy Gmail sender.
// Params: credentials.json path, token.json path, and From address.
// Returns: sender; credential problems surface on the first Send.
func NewGmailSender(credentialsPath, tokenPath, from string) *GmailSender {
	return &GmailSender{
		credentialsPath: credentialsPath,
		tokenPath:       tokenPath,
		from:            from,
	}
}

// Send delivers one email as a raw MIME message.
// Params: context and email payload.
// Returns: init or API error; either makes this attempt a failure.
func (g *GmailSender) Send(ctx context.Context, msg Email) error {
	g.once.Do(func() { g.service, g.initErr = g.buildService(ctx) })
	if g.initErr != nil {
		return fmt.Errorf("gmail service: %w", g.initErr)
	}

	raw, err := buildMIME(g.from, msg)
	if err != nil {
		return fmt.Errorf("compose email: %w", err)
	}
	payload := &gmail.Message{Raw: base64.URLEncoding.EncodeToString(raw)}
	if _, err := g.service.Users.Messages.Send("me", payload).Context(ctx).Do(); err != nil {
		return fmt.Errorf("gmail send: %w", err)
	}
	return nil
}

// buildService authenticates from the stored credential and token files.
// Params: context for the HTTP client.
// Returns: gmail service or the first credential error.
func (g *GmailSender) buildService(ctx context.Context) (*gmail.Service, error) {
	credentials, err := os.ReadFile(g.credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials %q: %w", g.credentialsPath, err)
	}
	oauthConfig, err := google.ConfigFromJSON(credentials, gmail.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	tokenBody, err := os.ReadFile(g.tokenPath)
	if err != nil {
		return nil, fmt.Errorf("read token %q: %w", g.tokenPath, err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(tokenBody, &token); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	client := oauthConfig.Client(ctx, &token)
	service, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("build service: %w", err)
	}
	return service, nil
}
