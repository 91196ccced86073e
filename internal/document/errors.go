package document

import "fmt"

// NotFoundError signals a requested document or file that does not exist in
// the served snapshot.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("document not found: %s", e.Path)
}

// ConfigError signals that the content snapshot cannot be identified, usually
// because no content has been fetched yet or the metadata sidecar is missing.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("content snapshot unavailable: %v", e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }
