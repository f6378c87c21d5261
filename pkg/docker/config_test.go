package docker_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aquasecurity/layerscan/pkg/docker"
)

// registryCredentials resolves the credentials config serves for imageRef.
func registryCredentials(t *testing.T, config docker.Config, imageRef string) *authn.AuthConfig {
	t.Helper()
	ref, err := name.ParseReference(imageRef)
	require.NoError(t, err)
	authenticator, err := config.Keychain().Resolve(ref.Context())
	require.NoError(t, err)
	auth, err := authenticator.Authorization()
	require.NoError(t, err)
	return auth
}

func TestParse(t *testing.T) {
	testCases := []struct {
		name               string
		contents           string
		expectedRegistries []string
		expectedError      string
	}{
		{
			name:               "Should accept a config without auths",
			contents:           `{"credsStore": "desktop"}`,
			expectedRegistries: []string{},
		},
		{
			name:               "Should accept null",
			contents:           "null",
			expectedRegistries: []string{},
		},
		{
			name:          "Should fail on empty input",
			contents:      "",
			expectedError: "unexpected end of JSON input",
		},
		{
			name: "Should normalize auth keys to registry hosts",
			contents: `{"auths": {
				"https://index.docker.io/v1/": {"auth": "bGF5ZXJzY2FuOnMzY3IzdA=="},
				"harbor.domain:8443/library": {"username": "robot", "password": "token"},
				"http://registry.local:5000/": {"identitytoken": "refresh"}
			}}`,
			expectedRegistries: []string{"harbor.domain:8443", "index.docker.io", "registry.local:5000"},
		},
		{
			name:               "Should skip entries without credentials",
			contents:           `{"auths": {"quay.io": {}, "ghcr.io": {"username": "ci", "password": "pat"}}}`,
			expectedRegistries: []string{"ghcr.io"},
		},
		{
			name:          "Should fail on malformed basic auth",
			contents:      `{"auths": {"quay.io": {"auth": "%%%"}}}`,
			expectedError: "auth of quay.io: illegal base64 data at input byte 0",
		},
		{
			name:          "Should fail on basic auth without a colon",
			contents:      `{"auths": {"quay.io": {"auth": "bGF5ZXJzY2Fu"}}}`,
			expectedError: "auth of quay.io: expected username and password concatenated with a colon (:)",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			config, err := docker.Parse([]byte(tc.contents))
			if tc.expectedError != "" {
				assert.EqualError(t, err, tc.expectedError)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedRegistries, config.Registries())
		})
	}
}

func TestConfig_Keychain(t *testing.T) {
	config, err := docker.Parse([]byte(`{"auths": {
		"https://index.docker.io/v1/": {"auth": "bGF5ZXJzY2FuOnMzY3IzdA=="},
		"harbor.domain:8443/library": {"username": "robot", "password": "token"},
		"registry.local:5000": {"identitytoken": "refresh"}
	}}`))
	require.NoError(t, err)

	testCases := []struct {
		imageRef string
		expected *authn.AuthConfig
	}{
		{imageRef: "alpine:3.20", expected: &authn.AuthConfig{Username: "layerscan", Password: "s3cr3t"}},
		{imageRef: "harbor.domain:8443/library/app:1", expected: &authn.AuthConfig{Username: "robot", Password: "token"}},
		{imageRef: "registry.local:5000/app/worker:1", expected: &authn.AuthConfig{IdentityToken: "refresh"}},
		{imageRef: "gcr.io/distroless/static:nonroot", expected: &authn.AuthConfig{}},
	}
	for _, tc := range testCases {
		t.Run(tc.imageRef, func(t *testing.T) {
			assert.Equal(t, tc.expected, registryCredentials(t, config, tc.imageRef))
		})
	}
}

func TestRegistryHost(t *testing.T) {
	testCases := map[string]string{
		"34.86.43.13:80":                 "34.86.43.13:80",
		"harbor.domain:8443":             "harbor.domain:8443",
		"rg.pl-waw.scw.cloud/layerscan":  "rg.pl-waw.scw.cloud",
		"https://index.docker.io/v1/":    "index.docker.io",
		"http://registry.local:5000/v2/": "registry.local:5000",
	}
	for key, expected := range testCases {
		t.Run(key, func(t *testing.T) {
			host, err := docker.RegistryHost(key)
			require.NoError(t, err)
			assert.Equal(t, expected, host)
		})
	}

	_, err := docker.RegistryHost("https:///v1/")
	assert.EqualError(t, err, "missing registry host")
}

func TestReadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"auths": {"quay.io": {"username": "ci", "password": "pat"}}}`), 0o600))

	config, err := docker.ReadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, &authn.AuthConfig{Username: "ci", Password: "pat"}, registryCredentials(t, config, "quay.io/app/api:1"))

	_, err = docker.ReadConfigFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
