package oci

import (
	"io"

	"github.com/google/go-containerregistry/pkg/v1/types"
)

// BlobRef references a content-addressed blob of an image.
type BlobRef struct {
	Digest    string          `json:"digest"`
	MediaType types.MediaType `json:"mediaType"`
	Size      int64           `json:"size"`
}

// Manifest is the subset of an image manifest needed to enumerate its blobs.
type Manifest struct {
	Config        BlobRef         `json:"config"`
	Layers        []BlobRef       `json:"layers"`
	MediaType     types.MediaType `json:"mediaType"`
	SchemaVersion int64           `json:"schemaVersion"`
}

// ContentUnit is one readable piece of an image handed to the scanner, e.g. a
// single layer blob or the flattened image filesystem.
//
// The receiver of a ContentUnit owns Content and must close it.
type ContentUnit struct {
	Content io.ReadCloser
	Path    string
}
