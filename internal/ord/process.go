package ord

import (
	"net/url"
	"path"
	"strings"
)

// Processor applies the server-side rewrites to parsed ORD documents.
// Processing is deterministic and pure: the same document, fingerprint and
// configuration always yield the same result.
type Processor struct {
	BaseURL    string
	Strategies []AccessStrategy
}

// Process rewrites doc in place and returns it:
//   - describedSystemInstance.baseUrl is overridden with the configured base URL
//   - system-version documents without describedSystemVersion get a version
//     derived from the content fingerprint
//   - every resourceDefinitions entry has its url rewritten and its
//     accessStrategies replaced with the server's configured ones
func (p *Processor) Process(doc Document, fingerprint string) Document {
	p.overrideSystemInstance(doc)
	p.injectSystemVersion(doc, fingerprint)

	doc.Resources(func(resource map[string]any) {
		for _, def := range ResourceDefinitions(resource) {
			if raw, ok := def["url"].(string); ok {
				def["url"] = RewriteDefinitionURL(raw)
			}
			def["accessStrategies"] = strategyMaps(p.Strategies)
		}
	})
	return doc
}

func (p *Processor) overrideSystemInstance(doc Document) {
	instance, ok := doc["describedSystemInstance"].(map[string]any)
	if !ok {
		instance = map[string]any{}
		doc["describedSystemInstance"] = instance
	}
	instance["baseUrl"] = p.BaseURL
}

// injectSystemVersion fills describedSystemVersion for system-version documents
// that omit it. The fingerprint ties the synthetic version to the content
// snapshot so it changes on every update.
func (p *Processor) injectSystemVersion(doc Document, fingerprint string) {
	if doc.Perspective() != PerspectiveSystemVersion {
		return
	}
	if _, present := doc["describedSystemVersion"]; present {
		return
	}
	doc["describedSystemVersion"] = map[string]any{"version": SyntheticVersion(fingerprint)}
}

// SyntheticVersion derives a version string from a content fingerprint.
func SyntheticVersion(fingerprint string) string {
	hexPart := fingerprint
	if i := strings.IndexByte(hexPart, ':'); i >= 0 {
		hexPart = hexPart[:i]
	}
	if len(hexPart) < 8 {
		return "1.0.0-unknown"
	}
	return "1.0.0-" + hexPart[:8]
}

// RewriteDefinitionURL adjusts a resource definition URL for serving:
// absolute http(s) URLs keep their host but get the escaped ordId path segment
// decoded; everything else is served by this process under /ord/v1/.
func RewriteDefinitionURL(raw string) string {
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return unescapeOrdIDSegment(raw)
	}
	return path.Join(ServerPathPrefix, raw)
}

// ServerPathPrefix is the path under which referenced resource definition files
// are served by this process.
const ServerPathPrefix = "/ord/v1"

// unescapeOrdIDSegment decodes the single path segment that carries a
// percent-encoded ordId (identified by an escaped colon). Other segments are
// left untouched.
func unescapeOrdIDSegment(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	segments := strings.Split(u.EscapedPath(), "/")
	for i, seg := range segments {
		if !strings.Contains(seg, "%3A") && !strings.Contains(seg, "%3a") {
			continue
		}
		if decoded, derr := url.PathUnescape(seg); derr == nil {
			segments[i] = decoded
		}
	}
	u.RawPath = ""
	u.Path = strings.Join(segments, "/")
	return u.String()
}
