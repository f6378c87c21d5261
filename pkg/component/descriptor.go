package component

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/emirpasic/gods/sets/hashset"
	"github.com/hashicorp/go-version"
	"gopkg.in/yaml.v3"
)

// ReadDescriptors decodes all YAML (or JSON) documents from r and returns the
// components they describe. Duplicate components, i.e. same name and version,
// are returned once.
func ReadDescriptors(r io.Reader) ([]Component, error) {
	decoder := yaml.NewDecoder(r)
	seen := hashset.New()
	var components []Component
	for i := 0; ; i++ {
		var descriptor Descriptor
		err := decoder.Decode(&descriptor)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decoding component descriptor #%d: %w", i, err)
		}
		if err := Validate(descriptor.Component); err != nil {
			return nil, fmt.Errorf("component descriptor #%d: %w", i, err)
		}
		key := descriptor.Component.Name + ":" + descriptor.Component.Version
		if seen.Contains(key) {
			continue
		}
		seen.Add(key)
		components = append(components, descriptor.Component)
	}
	return components, nil
}

// ReadDescriptorFile reads component descriptors from the file at path.
func ReadDescriptorFile(path string) ([]Component, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadDescriptors(f)
}

// Validate checks that the component and its resources are named and carry
// valid versions.
func Validate(c Component) error {
	if c.Name == "" {
		return errors.New("component name must not be empty")
	}
	if _, err := version.NewVersion(c.Version); err != nil {
		return fmt.Errorf("component %s: invalid version %q: %w", c.Name, c.Version, err)
	}
	names := hashset.New()
	for _, r := range c.Resources {
		if r.Name == "" {
			return fmt.Errorf("component %s: resource name must not be empty", c.Name)
		}
		if r.Version != "" {
			if _, err := version.NewVersion(r.Version); err != nil {
				return fmt.Errorf("component %s: resource %s: invalid version %q: %w", c.Name, r.Name, r.Version, err)
			}
		}
		key := r.Name + ":" + r.Version
		if names.Contains(key) {
			return fmt.Errorf("component %s: duplicate resource %s", c.Name, key)
		}
		names.Add(key)
	}
	return nil
}
