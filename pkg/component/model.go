package component

import "fmt"

const (
	ResourceTypeOCIImage = "ociImage"

	AccessTypeOCIRegistry       = "ociRegistry"
	AccessTypeOCIRegistryLegacy = "OCIRegistry"
)

// Descriptor is a component descriptor document.
type Descriptor struct {
	Meta      Meta      `json:"meta" yaml:"meta"`
	Component Component `json:"component" yaml:"component"`
}

type Meta struct {
	SchemaVersion string `json:"schemaVersion" yaml:"schemaVersion"`
}

// Component is a named, versioned unit of software composed of resources.
type Component struct {
	Name      string     `json:"name" yaml:"name"`
	Version   string     `json:"version" yaml:"version"`
	Resources []Resource `json:"resources" yaml:"resources"`
}

// Resource is a named, versioned artifact declared by a component.
type Resource struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
	Type    string `json:"type" yaml:"type"`
	Access  Access `json:"access" yaml:"access"`
}

// Access describes how a resource can be retrieved. Only ImageReference is
// meaningful for OCI registry access.
type Access struct {
	Type           string `json:"type" yaml:"type"`
	ImageReference string `json:"imageReference,omitempty" yaml:"imageReference,omitempty"`
	LocalReference string `json:"localReference,omitempty" yaml:"localReference,omitempty"`
	MediaType      string `json:"mediaType,omitempty" yaml:"mediaType,omitempty"`
}

// IsOCI returns true if the resource is stored in an OCI registry.
func (a Access) IsOCI() bool {
	return a.Type == AccessTypeOCIRegistry || a.Type == AccessTypeOCIRegistryLegacy
}

// Identity identifies a resource within a component.
type Identity struct {
	ComponentName    string `json:"componentName"`
	ComponentVersion string `json:"componentVersion"`
	ResourceName     string `json:"resourceName"`
	ResourceVersion  string `json:"resourceVersion"`
}

func (i Identity) String() string {
	return fmt.Sprintf("%s/%s", i.ComponentName, i.ResourceName)
}

// ComponentResource pairs a resource with the component declaring it.
type ComponentResource struct {
	Component Component
	Resource  Resource
}

func (cr ComponentResource) Identity() Identity {
	return Identity{
		ComponentName:    cr.Component.Name,
		ComponentVersion: cr.Component.Version,
		ResourceName:     cr.Resource.Name,
		ResourceVersion:  cr.Resource.Version,
	}
}
