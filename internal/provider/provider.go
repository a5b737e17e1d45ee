// Package provider defines the contract with the upstream identity
// provider that signs users in.
package provider

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
)

// User is the identity verified by the provider.
type User struct {
	Login string
	Name  string
	Email string
}

// Adapter drives the provider side of the authorization flow.
type Adapter interface {
	// RedirectToProvider sends the browser to the provider's consent page.
	// state is returned unchanged on the callback.
	RedirectToProvider(w http.ResponseWriter, r *http.Request, state string)

	// Middleware guards the callback route. It redirects to the provider
	// when the request carries no authorization code, otherwise it checks
	// CSRF, exchanges the code and verifies the user. Only then it calls
	// next with the token and user available from the request context.
	Middleware(next http.Handler) http.Handler
}

type tokenContextKey struct{}
type userContextKey struct{}

func IntoContext(ctx context.Context, token *oauth2.Token, user *User) context.Context {
	ctx = context.WithValue(ctx, tokenContextKey{}, token)
	return context.WithValue(ctx, userContextKey{}, user)
}

func TokenFromContext(ctx context.Context) *oauth2.Token {
	t, _ := ctx.Value(tokenContextKey{}).(*oauth2.Token)
	return t
}

func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userContextKey{}).(*User)
	return u
}
