// Package storage owns the on-disk layout of a harvest: one directory per
// item holding the raw HTML snapshot, the metadata document and the asset
// files. All writes are atomic (temp file plus rename) so an interrupted run
// never leaves half-written files behind.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"libharvest/pkg/config"
	"libharvest/pkg/imagecheck"
	"libharvest/pkg/logger"
	"libharvest/pkg/models"
)

const (
	htmlFilename     = "item.html"
	metadataFilename = "metadata.json"
)

// Manager handles item directory creation and file persistence.
type Manager struct {
	baseDir     string
	itemsSubdir string
	idPadding   int
	log         logger.Logger
}

// NewManager creates a storage manager rooted at the configured output
// directory.
func NewManager(cfg *config.OutputConfig, log logger.Logger) *Manager {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Manager{
		baseDir:     cfg.BaseDirectory,
		itemsSubdir: cfg.ItemsSubdir,
		idPadding:   cfg.IDPadding,
		log:         log,
	}
}

// PadID zero-pads an item id for directory naming.
func (m *Manager) PadID(id string) string {
	return fmt.Sprintf("%0*s", m.idPadding, id)
}

// ItemDir returns the directory path for an item id.
func (m *Manager) ItemDir(id string) string {
	return filepath.Join(m.baseDir, m.itemsSubdir, m.PadID(id))
}

// EnsureItemDir creates the item directory if needed.
func (m *Manager) EnsureItemDir(id string) (string, error) {
	dir := m.ItemDir(id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create item directory: %w", err)
	}
	return dir, nil
}

// WriteHTML persists the raw page snapshot for an item.
func (m *Manager) WriteHTML(id string, html []byte) error {
	return m.writeAtomic(filepath.Join(m.ItemDir(id), htmlFilename), html)
}

// WriteMetadata persists the metadata document for an item.
func (m *Manager) WriteMetadata(id string, item *models.Item) error {
	data, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	data = append(data, '\n')
	return m.writeAtomic(filepath.Join(m.ItemDir(id), metadataFilename), data)
}

// WriteAsset persists a downloaded asset under its role filename.
func (m *Manager) WriteAsset(id, filename string, data []byte) error {
	return m.writeAtomic(filepath.Join(m.ItemDir(id), filename), data)
}

// DerivativeExists reports whether a derivative file exists with nonzero
// size. Derivatives are assumed stable once any bytes exist.
func (m *Manager) DerivativeExists(id string, role models.AssetRole) bool {
	fi, err := os.Stat(filepath.Join(m.ItemDir(id), DerivativeFilename(role)))
	return err == nil && fi.Size() > 0
}

// DerivativeFilename returns the fixed filename for a derivative role.
func DerivativeFilename(role models.AssetRole) string {
	switch role {
	case models.RoleMedium:
		return "image_medium.jpg"
	case models.RoleThumbnail:
		return "image_thumbnail.jpg"
	}
	return ""
}

// HasValidNative reports whether the item already holds a validator-passing
// native image.
func (m *Manager) HasValidNative(id string) bool {
	return imagecheck.HasValidNative(m.ItemDir(id))
}

// NativePath returns the native-image path for an item and extension.
func (m *Manager) NativePath(id, ext string) string {
	return imagecheck.NativePath(m.ItemDir(id), ext)
}

// RemoveStaleNatives deletes native files that fail validation, except one
// under keepPath. Run before writing a fresh native so broken files never
// accumulate under alternate extensions.
func (m *Manager) RemoveStaleNatives(id, keepPath string) {
	for _, p := range imagecheck.FindNativeFiles(m.ItemDir(id)) {
		if p == keepPath {
			continue
		}
		if imagecheck.IsValidImage(p) {
			continue
		}
		if err := os.Remove(p); err != nil {
			m.log.WithError(err).WithField("path", p).Warn("failed to remove stale native file")
		} else {
			m.log.WithField("path", p).Debug("removed stale native file")
		}
	}
}

// CountValidNative recomputes how many of the given items hold a valid
// native image on disk.
func (m *Manager) CountValidNative(ids []string) int {
	count := 0
	for _, id := range ids {
		if m.HasValidNative(id) {
			count++
		}
	}
	return count
}

// writeAtomic writes data via a temp file and rename.
func (m *Manager) writeAtomic(path string, data []byte) error {
	tempFile := path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to finalize %s: %w", filepath.Base(path), err)
	}
	return nil
}
