package component

import "iter"

// EnumerateOCIResources lazily yields every resource of type ociImage
// declared by the given components, in declaration order. The access kind is
// not inspected; resources of type ociImage may still use non-OCI access.
func EnumerateOCIResources(components ...Component) iter.Seq2[ComponentResource, error] {
	return func(yield func(ComponentResource, error) bool) {
		for _, c := range components {
			for _, r := range c.Resources {
				if r.Type != ResourceTypeOCIImage {
					continue
				}
				if !yield(ComponentResource{Component: c, Resource: r}, nil) {
					return
				}
			}
		}
	}
}
