package ord

import (
	"sort"
	"strings"
)

// DocumentDescriptor is one entry of the ORD configuration's document list.
type DocumentDescriptor struct {
	URL              string           `json:"url"`
	AccessStrategies []AccessStrategy `json:"accessStrategies"`
	Perspective      string           `json:"perspective,omitempty"`
}

// ConfigurationPayload is the object served at /.well-known/open-resource-discovery.
type ConfigurationPayload struct {
	BaseURL               string `json:"baseUrl,omitempty"`
	OpenResourceDiscovery struct {
		Documents []DocumentDescriptor `json:"documents"`
	} `json:"openResourceDiscoveryV1"`
}

// NewConfigurationPayload assembles the wire payload.
func NewConfigurationPayload(baseURL string, docs []DocumentDescriptor) ConfigurationPayload {
	var p ConfigurationPayload
	p.BaseURL = baseURL
	p.OpenResourceDiscovery.Documents = docs
	if p.OpenResourceDiscovery.Documents == nil {
		p.OpenResourceDiscovery.Documents = []DocumentDescriptor{}
	}
	return p
}

// DescriptorForPath builds the configuration entry for one document path.
// Request paths omit the .json extension; the server re-appends it on lookup.
func DescriptorForPath(relPath string, strategies []AccessStrategy, perspective string) DocumentDescriptor {
	return DocumentDescriptor{
		URL:              DocumentsPathPrefix + strings.TrimSuffix(relPath, ".json"),
		AccessStrategies: strategies,
		Perspective:      perspective,
	}
}

// DocumentsPathPrefix is the serving prefix for processed ORD documents.
const DocumentsPathPrefix = "/ord/v1/documents/"

// FilterByPerspective returns the descriptors whose perspective matches.
// Descriptors without an explicit perspective default to system-instance.
func FilterByPerspective(docs []DocumentDescriptor, perspective string) []DocumentDescriptor {
	out := make([]DocumentDescriptor, 0, len(docs))
	for _, d := range docs {
		p := d.Perspective
		if p == "" {
			p = PerspectiveSystemInstance
		}
		if p == perspective {
			out = append(out, d)
		}
	}
	return out
}

// FqnLocation points at a file carrying a resource definition for an ordId.
type FqnLocation struct {
	FileName string `json:"fileName"`
	FilePath string `json:"filePath"`
}

// FqnMap maps ordId to the files that define it.
type FqnMap map[string][]FqnLocation

// SortDescriptors orders descriptors by URL for stable output.
func SortDescriptors(docs []DocumentDescriptor) {
	sort.Slice(docs, func(i, j int) bool { return docs[i].URL < docs[j].URL })
}
