package oci

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/go-logr/logr"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	v1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
)

// Client retrieves image manifests and blobs from an OCI registry.
type Client interface {
	Manifest(ctx context.Context, imageRef string) (Manifest, error)
	Blob(ctx context.Context, imageRef string, blob BlobRef) (io.ReadCloser, error)
}

// FlattenedImageClient is implemented by clients which can also produce the
// merged filesystem of all image layers.
type FlattenedImageClient interface {
	Client
	Flattened(ctx context.Context, imageRef string) (io.ReadCloser, error)
}

// RegistryClient implements FlattenedImageClient on top of the registry API.
type RegistryClient struct {
	keychain  authn.Keychain
	transport http.RoundTripper
	insecure  bool
	logger    logr.Logger
}

type Option func(*RegistryClient)

func WithKeychain(keychain authn.Keychain) Option {
	return func(c *RegistryClient) {
		c.keychain = keychain
	}
}

func WithTransport(transport http.RoundTripper) Option {
	return func(c *RegistryClient) {
		c.transport = transport
	}
}

// WithInsecure allows plain HTTP and self-signed registries.
func WithInsecure(insecure bool) Option {
	return func(c *RegistryClient) {
		c.insecure = insecure
	}
}

func WithLogger(logger logr.Logger) Option {
	return func(c *RegistryClient) {
		c.logger = logger
	}
}

func NewClient(opts ...Option) *RegistryClient {
	c := &RegistryClient{
		keychain:  authn.DefaultKeychain,
		transport: remote.DefaultTransport,
		logger:    logr.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithName("oci")
	return c
}

func (c *RegistryClient) parse(imageRef string) (name.Reference, error) {
	var opts []name.Option
	if c.insecure {
		opts = append(opts, name.Insecure)
	}
	ref, err := name.ParseReference(imageRef, opts...)
	if err != nil {
		return nil, fmt.Errorf("parsing image reference %q: %w", imageRef, err)
	}
	return ref, nil
}

func (c *RegistryClient) remoteOptions(ctx context.Context) []remote.Option {
	return []remote.Option{
		remote.WithContext(ctx),
		remote.WithAuthFromKeychain(c.keychain),
		remote.WithTransport(c.transport),
	}
}

func (c *RegistryClient) image(ctx context.Context, imageRef string) (v1.Image, error) {
	ref, err := c.parse(imageRef)
	if err != nil {
		return nil, err
	}
	img, err := remote.Image(ref, c.remoteOptions(ctx)...)
	if err != nil {
		return nil, fmt.Errorf("fetching image %s: %w", imageRef, err)
	}
	return img, nil
}

func (c *RegistryClient) Manifest(ctx context.Context, imageRef string) (Manifest, error) {
	img, err := c.image(ctx, imageRef)
	if err != nil {
		return Manifest{}, err
	}
	m, err := img.Manifest()
	if err != nil {
		return Manifest{}, fmt.Errorf("reading manifest of %s: %w", imageRef, err)
	}
	manifest := Manifest{
		Config:        blobRef(m.Config),
		Layers:        make([]BlobRef, 0, len(m.Layers)),
		MediaType:     m.MediaType,
		SchemaVersion: m.SchemaVersion,
	}
	for _, layer := range m.Layers {
		manifest.Layers = append(manifest.Layers, blobRef(layer))
	}
	c.logger.V(1).Info("Fetched manifest", "image", imageRef, "layers", len(manifest.Layers))
	return manifest, nil
}

func blobRef(d v1.Descriptor) BlobRef {
	return BlobRef{
		Digest:    d.Digest.String(),
		MediaType: d.MediaType,
		Size:      d.Size,
	}
}

// Blob streams the (compressed) blob as stored in the registry.
func (c *RegistryClient) Blob(ctx context.Context, imageRef string, blob BlobRef) (io.ReadCloser, error) {
	ref, err := c.parse(imageRef)
	if err != nil {
		return nil, err
	}
	layer, err := remote.Layer(ref.Context().Digest(blob.Digest), c.remoteOptions(ctx)...)
	if err != nil {
		return nil, fmt.Errorf("fetching blob %s of %s: %w", blob.Digest, imageRef, err)
	}
	rc, err := layer.Compressed()
	if err != nil {
		return nil, fmt.Errorf("reading blob %s of %s: %w", blob.Digest, imageRef, err)
	}
	return rc, nil
}

// Flattened streams a tarball of the merged filesystem of all image layers.
func (c *RegistryClient) Flattened(ctx context.Context, imageRef string) (io.ReadCloser, error) {
	img, err := c.image(ctx, imageRef)
	if err != nil {
		return nil, err
	}
	return mutate.Extract(img), nil
}
