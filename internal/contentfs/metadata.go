package contentfs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// MetadataFileName is the sidecar written inside current/ after a swap.
const MetadataFileName = ".metadata.json"

// Metadata describes the content snapshot held in current/.
type Metadata struct {
	CommitHash       string    `json:"commitHash"`
	DirectoryTreeSha string    `json:"directoryTreeSha,omitempty"`
	FetchTime        time.Time `json:"fetchTime"`
	Branch           string    `json:"branch"`
	Repository       string    `json:"repository"` // "<owner>/<repo>"
	TotalFiles       int       `json:"totalFiles"`
}

// SaveMetadata writes the sidecar atomically (temp file + rename).
func (m *Manager) SaveMetadata(meta *Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	target := filepath.Join(m.CurrentDir(), MetadataFileName)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("replace metadata: %w", err)
	}
	return nil
}

// GetMetadata reads the sidecar. A missing file returns (nil, nil).
func (m *Manager) GetMetadata() (*Metadata, error) {
	data, err := os.ReadFile(filepath.Join(m.CurrentDir(), MetadataFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	return &meta, nil
}

// GetCurrentVersion returns the commit hash of the served snapshot, or ""
// when no metadata exists yet.
func (m *Manager) GetCurrentVersion() string {
	meta, err := m.GetMetadata()
	if err != nil || meta == nil {
		return ""
	}
	return meta.CommitHash
}
