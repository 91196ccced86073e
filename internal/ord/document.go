// Package ord carries the slice of the Open Resource Discovery content model
// this server observes: perspective, baseUrl override, resource definitions and
// their access strategies. Everything else passes through opaquely.
package ord

import "encoding/json"

// Perspective values defined by the ORD specification.
const (
	PerspectiveSystemVersion     = "system-version"
	PerspectiveSystemInstance    = "system-instance"
	PerspectiveSystemIndependent = "system-independent"
)

// Document is a parsed ORD document. Only the fields the server rewrites are
// accessed in a typed way; the rest of the structure is preserved verbatim.
type Document map[string]any

// ParseDocument decodes raw JSON into a Document.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Perspective returns the document's perspective, defaulting to
// system-instance when absent or not a string.
func (d Document) Perspective() string {
	if p, ok := d["perspective"].(string); ok && p != "" {
		return p
	}
	return PerspectiveSystemInstance
}

// ValidPerspective reports whether p is one of the three defined perspectives.
func ValidPerspective(p string) bool {
	switch p {
	case PerspectiveSystemVersion, PerspectiveSystemInstance, PerspectiveSystemIndependent:
		return true
	}
	return false
}

// resourceCollections lists the top-level arrays whose entries carry
// resourceDefinitions the server rewrites.
var resourceCollections = []string{"apiResources", "eventResources"}

// Resources iterates all API and event resources, yielding each as a mutable map.
func (d Document) Resources(fn func(resource map[string]any)) {
	for _, key := range resourceCollections {
		list, ok := d[key].([]any)
		if !ok {
			continue
		}
		for _, entry := range list {
			if resource, ok := entry.(map[string]any); ok {
				fn(resource)
			}
		}
	}
}

// OrdID extracts the ordId of a resource entry, if present.
func OrdID(resource map[string]any) string {
	id, _ := resource["ordId"].(string)
	return id
}

// ResourceDefinitions returns the resourceDefinitions entries of a resource as
// mutable maps.
func ResourceDefinitions(resource map[string]any) []map[string]any {
	list, ok := resource["resourceDefinitions"].([]any)
	if !ok {
		return nil
	}
	defs := make([]map[string]any, 0, len(list))
	for _, entry := range list {
		if def, ok := entry.(map[string]any); ok {
			defs = append(defs, def)
		}
	}
	return defs
}
