// Package credstore keeps the login credential in a small JSON file so a
// restarted client can resume its session without asking for a password.
package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"calclient/internal/fileutil"
	"calclient/internal/model"
)

// File stores one credential at Path with 0600 permissions.
type File struct {
	Path string
}

func New(path string) *File {
	return &File{Path: path}
}

// Load returns the stored credential, or nil if none has been saved.
func (f *File) Load() (*model.Credential, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var cred model.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("credstore: %s: %w", f.Path, err)
	}
	return &cred, nil
}

func (f *File) Save(c *model.Credential) error {
	if !c.Valid() {
		return errors.New("credstore: refusing to save invalid credential")
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return fileutil.WriteAtomic(f.Path, data, 0o600)
}

// Clear removes the stored credential. A missing file is not an error.
func (f *File) Clear() error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
