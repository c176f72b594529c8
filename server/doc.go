// Package server implements the authorization code and refresh token grants.
//
// A Server validates requests against a static ClientRegistry and keeps its
// state behind a storage.Gateway. It has no HTTP dependency: the root
// package parses requests with ParseAuthorizationRequest and
// ParseTokenRequest, calls Authorize, Exchange or CheckAccess, and maps the
// sentinel errors in this package to responses.
//
// Lifecycle of a grant:
//   - Authorize stores a pending authorization and returns the redirect URL
//     carrying a single-use code.
//   - ExchangeAuthorizationCode consumes the code and creates an
//     authorization with a refresh token and a first access token.
//   - RefreshAccessToken adds access tokens to an existing authorization.
//   - CheckAccess reports whether an access token exists and is unexpired.
//
// Example usage:
//
//	registry := server.NewClientRegistry(map[string]server.Client{
//	    "c1": {ClientSecret: "s1", RedirectURI: "https://app.example.com/cb"},
//	})
//	gateway := storage.NewGateway(memory.New())
//
//	srv, err := server.New(registry, gateway, &server.Config{}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
package server
