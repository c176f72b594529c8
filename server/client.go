package server

import (
	"crypto/subtle"
	"sort"
)

// Client is a statically registered OAuth2 client.
type Client struct {
	// ClientSecret is compared in constant time against the secret presented
	// to the token endpoint.
	ClientSecret string

	// RedirectURI is the only redirect target accepted for the client. It is
	// compared byte for byte, without normalization.
	RedirectURI string
}

// ClientRegistry maps client IDs to their registration. It is immutable
// after construction and safe for concurrent use.
type ClientRegistry struct {
	clients map[string]Client
}

// NewClientRegistry builds a registry from clients. The map is copied, so
// later changes by the caller are not observed.
func NewClientRegistry(clients map[string]Client) *ClientRegistry {
	copied := make(map[string]Client, len(clients))
	for id, c := range clients {
		copied[id] = c
	}
	return &ClientRegistry{clients: copied}
}

// Lookup returns the registration for clientID.
func (r *ClientRegistry) Lookup(clientID string) (Client, bool) {
	c, ok := r.clients[clientID]
	return c, ok
}

// Authenticate returns the registration for clientID if secret matches the
// registered secret.
func (r *ClientRegistry) Authenticate(clientID, secret string) (Client, bool) {
	c, ok := r.clients[clientID]
	if !ok {
		return Client{}, false
	}
	if subtle.ConstantTimeCompare([]byte(c.ClientSecret), []byte(secret)) != 1 {
		return Client{}, false
	}
	return c, true
}

// Len returns the number of registered clients.
func (r *ClientRegistry) Len() int {
	return len(r.clients)
}

// ClientIDs returns the registered client IDs in sorted order.
func (r *ClientRegistry) ClientIDs() []string {
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
