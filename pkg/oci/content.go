package oci

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/emirpasic/gods/sets/hashset"
)

// ErrFlattenUnsupported is returned when the flattened image is requested
// from a Client which cannot produce it.
var ErrFlattenUnsupported = errors.New("client does not support flattened images")

// ContentUnits lazily yields one content unit per distinct layer of the image,
// optionally followed by the flattened image. Blobs are only fetched when the
// consumer pulls the next unit.
//
// The sequence stops after the first error.
func ContentUnits(ctx context.Context, client Client, imageRef string, flattened bool) iter.Seq2[ContentUnit, error] {
	return func(yield func(ContentUnit, error) bool) {
		manifest, err := client.Manifest(ctx, imageRef)
		if err != nil {
			yield(ContentUnit{}, err)
			return
		}

		seen := hashset.New()
		for _, layer := range manifest.Layers {
			if seen.Contains(layer.Digest) {
				continue
			}
			seen.Add(layer.Digest)

			rc, err := client.Blob(ctx, imageRef, layer)
			if err != nil {
				yield(ContentUnit{}, err)
				return
			}
			if !yield(ContentUnit{Content: rc, Path: LayerPath(imageRef, layer)}, nil) {
				return
			}
		}

		if !flattened {
			return
		}
		fc, ok := client.(FlattenedImageClient)
		if !ok {
			yield(ContentUnit{}, ErrFlattenUnsupported)
			return
		}
		rc, err := fc.Flattened(ctx, imageRef)
		if err != nil {
			yield(ContentUnit{}, err)
			return
		}
		yield(ContentUnit{Content: rc, Path: imageRef}, nil)
	}
}

// LayerPath labels a layer of the image for reporting.
func LayerPath(imageRef string, layer BlobRef) string {
	return fmt.Sprintf("%s@%s", imageRef, layer.Digest)
}
