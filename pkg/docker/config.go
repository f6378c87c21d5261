package docker

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/google/go-containerregistry/pkg/authn"
)

// configFile is the subset of `~/.docker/config.json` layerscan understands.
type configFile struct {
	Auths map[string]authEntry `json:"auths"`
}

type authEntry struct {
	Auth          string `json:"auth,omitempty"`
	Username      string `json:"username,omitempty"`
	Password      string `json:"password,omitempty"`
	IdentityToken string `json:"identitytoken,omitempty"`
}

// Config holds registry credentials keyed by registry host, e.g.
// `index.docker.io` or `harbor.domain:8443`.
type Config struct {
	registries map[string]authn.AuthConfig
}

// ReadConfigFile reads and decodes the Docker configuration stored at path.
func ReadConfigFile(path string) (Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading docker config: %w", err)
	}
	config, err := Parse(contents)
	if err != nil {
		return Config{}, fmt.Errorf("decoding docker config %s: %w", path, err)
	}
	return config, nil
}

// Parse decodes a Docker configuration. Entries without any credential are
// skipped.
func Parse(contents []byte) (Config, error) {
	var file configFile
	if err := json.Unmarshal(contents, &file); err != nil {
		return Config{}, err
	}
	config := Config{registries: make(map[string]authn.AuthConfig, len(file.Auths))}
	for key, entry := range file.Auths {
		if entry == (authEntry{}) {
			continue
		}
		host, err := RegistryHost(key)
		if err != nil {
			return Config{}, fmt.Errorf("invalid auth key %q: %w", key, err)
		}
		auth, err := entry.authConfig()
		if err != nil {
			return Config{}, fmt.Errorf("auth of %s: %w", key, err)
		}
		config.registries[host] = auth
	}
	return config, nil
}

func (e authEntry) authConfig() (authn.AuthConfig, error) {
	auth := authn.AuthConfig{
		Username:      e.Username,
		Password:      e.Password,
		IdentityToken: e.IdentityToken,
	}
	if strings.TrimSpace(e.Auth) == "" {
		return auth, nil
	}
	decoded, err := base64.StdEncoding.DecodeString(e.Auth)
	if err != nil {
		return authn.AuthConfig{}, err
	}
	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return authn.AuthConfig{}, errors.New("expected username and password concatenated with a colon (:)")
	}
	auth.Username, auth.Password = username, password
	return auth, nil
}

// Registries returns the sorted hosts credentials are configured for.
func (c Config) Registries() []string {
	hosts := make([]string, 0, len(c.registries))
	for host := range c.registries {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)
	return hosts
}

// Keychain returns an authn.Keychain serving the credentials of this config.
// Registries without credentials resolve to anonymous access.
func (c Config) Keychain() authn.Keychain {
	return keychain(c.registries)
}

type keychain map[string]authn.AuthConfig

func (k keychain) Resolve(target authn.Resource) (authn.Authenticator, error) {
	auth, ok := k[target.RegistryStr()]
	if !ok {
		return authn.Anonymous, nil
	}
	return authn.FromConfig(auth), nil
}

// RegistryHost normalizes a Docker auth key to the registry host.
//
// In ~/.docker/config.json auth keys can be specified as URLs or host names.
func RegistryHost(key string) (string, error) {
	absoluteURL := key
	if !(strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://")) {
		absoluteURL = "https://" + absoluteURL
	}
	parsed, err := url.Parse(absoluteURL)
	if err != nil {
		return "", err
	}
	if parsed.Host == "" {
		return "", errors.New("missing registry host")
	}
	return parsed.Host, nil
}
