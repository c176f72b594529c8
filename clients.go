package oauth

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/giantswarm/oauth2-server/server"
)

// clientsFile is the on-disk format read by LoadClients:
//
//	clients:
//	  my-client:
//	    client_secret: s3cret
//	    redirect_uri: https://app.example.com/callback
type clientsFile struct {
	Clients map[string]clientEntry `yaml:"clients"`
}

type clientEntry struct {
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
}

// LoadClients reads a client registry from a YAML file.
func LoadClients(path string) (map[string]server.Client, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-supplied configuration
	if err != nil {
		return nil, fmt.Errorf("read clients file: %w", err)
	}

	clients, err := ParseClients(data)
	if err != nil {
		return nil, fmt.Errorf("parse clients file %s: %w", path, err)
	}
	return clients, nil
}

// ParseClients decodes a client registry document. Unknown fields and
// entries without a secret or redirect URI are rejected.
func ParseClients(data []byte) (map[string]server.Client, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file clientsFile
	if err := dec.Decode(&file); err != nil {
		return nil, err
	}
	if len(file.Clients) == 0 {
		return nil, errors.New("no clients defined")
	}

	clients := make(map[string]server.Client, len(file.Clients))
	for id, entry := range file.Clients {
		if entry.ClientSecret == "" {
			return nil, fmt.Errorf("client %q: client_secret is required", id)
		}
		if entry.RedirectURI == "" {
			return nil, fmt.Errorf("client %q: redirect_uri is required", id)
		}
		clients[id] = server.Client{
			ClientSecret: entry.ClientSecret,
			RedirectURI:  entry.RedirectURI,
		}
	}
	return clients, nil
}
