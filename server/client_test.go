package server

import (
	"slices"
	"testing"

	"github.com/giantswarm/oauth2-server/internal/testutil"
)

func TestNewClientRegistry_CopiesInput(t *testing.T) {
	clients := map[string]Client{
		"c1": {ClientSecret: "s1", RedirectURI: "https://app/cb"},
	}
	registry := NewClientRegistry(clients)

	clients["c2"] = Client{ClientSecret: "s2", RedirectURI: "https://evil/cb"}
	clients["c1"] = Client{ClientSecret: "changed", RedirectURI: "https://evil/cb"}

	if _, ok := registry.Lookup("c2"); ok {
		t.Error("registry observed a client added after construction")
	}
	c, ok := registry.Lookup("c1")
	if !ok {
		t.Fatal("Lookup(c1) not found")
	}
	if c.RedirectURI != "https://app/cb" {
		t.Errorf("RedirectURI = %q, want original registration", c.RedirectURI)
	}
}

func TestClientRegistry_Lookup(t *testing.T) {
	registry := testRegistry()

	c, ok := registry.Lookup(testutil.TestClientID)
	if !ok {
		t.Fatal("Lookup() did not find registered client")
	}
	if c.RedirectURI != testutil.TestRedirectURI {
		t.Errorf("RedirectURI = %q, want %q", c.RedirectURI, testutil.TestRedirectURI)
	}

	if _, ok := registry.Lookup("unknown"); ok {
		t.Error("Lookup(unknown) should not succeed")
	}
}

func TestClientRegistry_Authenticate(t *testing.T) {
	registry := testRegistry()

	tests := []struct {
		name     string
		clientID string
		secret   string
		want     bool
	}{
		{name: "valid credentials", clientID: testutil.TestClientID, secret: testutil.TestClientSecret, want: true},
		{name: "wrong secret", clientID: testutil.TestClientID, secret: "wrong", want: false},
		{name: "secret prefix", clientID: testutil.TestClientID, secret: testutil.TestClientSecret[:4], want: false},
		{name: "other client's secret", clientID: testutil.TestClientID, secret: testutil.OtherClientSecret, want: false},
		{name: "empty secret", clientID: testutil.TestClientID, secret: "", want: false},
		{name: "unknown client", clientID: "unknown", secret: testutil.TestClientSecret, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, got := registry.Authenticate(tt.clientID, tt.secret)
			if got != tt.want {
				t.Errorf("Authenticate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClientRegistry_ClientIDs(t *testing.T) {
	got := testRegistry().ClientIDs()
	want := []string{testutil.OtherClientID, testutil.TestClientID}

	if !slices.Equal(got, want) {
		t.Errorf("ClientIDs() = %v, want %v", got, want)
	}
}
