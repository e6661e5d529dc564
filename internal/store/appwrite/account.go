// Where: cli/internal/store/appwrite/account.go
// What: Account and session endpoints.
// Why: Let the auth service act as an end user instead of the API key.
package appwrite

import (
	"context"
	"net/http"

	"github.com/poruru/restaurant-baas/cli/internal/store"
)

const (
	opCurrentAccount = "current account"
	opCreateAccount  = "create account"
	opCreateSession  = "create session"
	opDeleteSession  = "delete session"
)

func (c *Client) CurrentAccount(ctx context.Context) (store.Account, error) {
	var out store.Account
	err := c.do(ctx, request{
		method:   http.MethodGet,
		path:     "/account",
		op:       opCurrentAccount,
		resource: "current",
		auth:     authSession,
	}, &out)
	return out, err
}

func (c *Client) CreateAccount(ctx context.Context, userID, email, password, name string) (store.Account, error) {
	if userID == "" {
		userID = store.UniqueID
	}
	var out store.Account
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/account",
		body: map[string]any{
			"userId":   userID,
			"email":    email,
			"password": password,
			"name":     name,
		},
		op:       opCreateAccount,
		resource: email,
		auth:     authSession,
	}, &out)
	return out, err
}

func (c *Client) CreateEmailSession(ctx context.Context, email, password string) (store.Session, error) {
	var out store.Session
	err := c.do(ctx, request{
		method:   http.MethodPost,
		path:     "/account/sessions/email",
		body:     map[string]any{"email": email, "password": password},
		op:       opCreateSession,
		resource: email,
		auth:     authSession,
	}, &out)
	return out, err
}

func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	err := c.do(ctx, request{
		method:   http.MethodDelete,
		path:     apiPath("account", "sessions", sessionID),
		op:       opDeleteSession,
		resource: sessionID,
		auth:     authSession,
	}, nil)
	if err == nil && sessionID == "current" {
		c.clearSessionCookies()
	}
	return err
}
