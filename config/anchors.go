package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"homeradius/server/internal/models"
)

var (
	anchorConfig []models.Anchor
	anchorLock   sync.RWMutex
	anchorPath   = "config/anchors.json"
)

// LoadAnchors reads the saved anchor set from file. A missing file is
// not an error; it just means no anchors were saved yet.
func LoadAnchors() error {
	anchorLock.Lock()
	defer anchorLock.Unlock()

	absPath, err := filepath.Abs(anchorPath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %v", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			anchorConfig = nil
			return nil
		}
		return fmt.Errorf("failed to read anchors file: %v", err)
	}

	var anchors []models.Anchor
	if err := json.Unmarshal(data, &anchors); err != nil {
		return fmt.Errorf("failed to parse anchors file: %v", err)
	}

	anchorConfig = anchors
	return nil
}

// SaveAnchors persists the anchor set for the next start.
func SaveAnchors(anchors []models.Anchor) error {
	anchorLock.Lock()
	defer anchorLock.Unlock()

	absPath, err := filepath.Abs(anchorPath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %v", err)
	}

	data, err := json.MarshalIndent(anchors, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal anchors: %v", err)
	}

	if err := os.WriteFile(absPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write anchors file: %v", err)
	}

	anchorConfig = anchors
	return nil
}

// GetAnchors returns the currently configured anchors.
func GetAnchors() []models.Anchor {
	anchorLock.RLock()
	defer anchorLock.RUnlock()

	anchors := make([]models.Anchor, len(anchorConfig))
	copy(anchors, anchorConfig)
	return anchors
}
