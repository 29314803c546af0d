package indexing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"FeedPress/internal/domain"
)

const indexingScope = "https://www.googleapis.com/auth/indexing"

// Authorizer decorates an outgoing indexing request with credentials.
type Authorizer interface {
	Authorize(ctx context.Context, req *http.Request) error
}

// StaticKey sends a fixed bearer token.
type StaticKey string

func (k StaticKey) Authorize(_ context.Context, req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+string(k))
	return nil
}

// ServiceAccount exchanges a service-account key for OAuth2 access tokens.
type ServiceAccount struct {
	source oauth2.TokenSource
}

// NewServiceAccount parses service-account JSON credentials. Token requests go through client.
func NewServiceAccount(credentials []byte, client *http.Client) (*ServiceAccount, error) {
	conf, err := google.JWTConfigFromJSON(credentials, indexingScope)
	if err != nil {
		return nil, &domain.NotifierError{Class: domain.ErrorPrivateKey, Message: fmt.Sprintf("parse credentials: %v", err)}
	}
	ctx := context.Background()
	if client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, client)
	}
	return &ServiceAccount{source: oauth2.ReuseTokenSource(nil, conf.TokenSource(ctx))}, nil
}

// LoadServiceAccount reads credentials from a file.
func LoadServiceAccount(path string, client *http.Client) (*ServiceAccount, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.NotifierError{Class: domain.ErrorPrivateKey, Message: fmt.Sprintf("read credentials: %v", err)}
	}
	return NewServiceAccount(raw, client)
}

// Authorize sets the bearer header. A rejected token exchange is an authentication failure;
// anything else (typically an unparsable private key) is a private key failure.
func (s *ServiceAccount) Authorize(_ context.Context, req *http.Request) error {
	tok, err := s.source.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			status := 0
			if retrieveErr.Response != nil {
				status = retrieveErr.Response.StatusCode
			}
			return &domain.NotifierError{Class: domain.ErrorAuthentication, StatusCode: status, Message: retrieveErr.Error()}
		}
		return &domain.NotifierError{Class: domain.ErrorPrivateKey, Message: err.Error()}
	}
	tok.SetAuthHeader(req)
	return nil
}

// failedAuthorizer reports a credential problem found at construction time on every call.
type failedAuthorizer struct {
	err error
}

func (f failedAuthorizer) Authorize(context.Context, *http.Request) error { return f.err }
