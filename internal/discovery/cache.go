package discovery

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// PortCache is the durable owner of the last-known server port.
type PortCache interface {
	// GetPort returns the cached port; ok is false when no port is cached.
	GetPort() (port int, ok bool, err error)
	SetPort(port int) error
	ClearPort() error
}

type portRecord struct {
	Port    int    `json:"port"`
	SavedAt string `json:"savedAt"`
}

// FileCache persists the port as a small JSON document in the state dir.
type FileCache struct {
	path string
}

func NewFileCache(stateDir string) *FileCache {
	return &FileCache{path: filepath.Join(stateDir, "server-port.json")}
}

func (c *FileCache) GetPort() (int, bool, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("read port cache: %w", err)
	}

	var rec portRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return 0, false, fmt.Errorf("decode port cache: %w", err)
	}
	if rec.Port <= 0 {
		return 0, false, nil
	}
	return rec.Port, true, nil
}

func (c *FileCache) SetPort(port int) error {
	rec := portRecord{Port: port, SavedAt: time.Now().UTC().Format(time.RFC3339)}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode port cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("write port cache: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("write port cache: %w", err)
	}
	return nil
}

func (c *FileCache) ClearPort() error {
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clear port cache: %w", err)
	}
	return nil
}
