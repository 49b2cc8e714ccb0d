package cfddns

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// DefaultIPFile is the file name used for the last applied IP when none is configured.
const DefaultIPFile = "cloudflare_ddns_currentIP.txt"

// FileStore keeps the last applied IP as a single line in a plain text file.
//
// A missing file is not an error; it means no run has succeeded yet.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	if path == "" {
		path = DefaultIPFile
	}
	return &FileStore{Path: path}
}

// Load implements cfddns.Store.
func (s *FileStore) Load() (string, bool, error) {
	b, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: error loading last IP from %s: %s", ErrIO, s.Path, err)
	}
	ip := strings.TrimSpace(string(b))
	if ip == "" {
		return "", false, nil
	}
	return ip, true, nil
}

// Save implements cfddns.Store. The file is overwritten.
func (s *FileStore) Save(ip string) error {
	if err := os.WriteFile(s.Path, []byte(strings.TrimSpace(ip)), 0644); err != nil {
		return fmt.Errorf("%w: error saving current IP to %s: %s", ErrIO, s.Path, err)
	}
	return nil
}
