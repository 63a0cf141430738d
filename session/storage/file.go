package storage

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/gravitational/trace"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type fileRecord struct {
	RefreshToken string    `json:"refreshToken"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// NB: not safe for use by several processes at once, no file locking.
type fileStore struct {
	filename string
}

// NewFileStore keeps the refresh token in a JSON file readable only by the owner.
func NewFileStore(filename string) (Store, error) {
	if filename == "" {
		return nil, trace.BadParameter("missing file name")
	}
	return &fileStore{filename: filename}, nil
}

func (f *fileStore) GetRefreshToken(_ context.Context) (string, error) {
	payload, err := os.ReadFile(f.filename)
	if err != nil {
		return "", trace.ConvertSystemError(err)
	}

	var record fileRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return "", trace.Wrap(err)
	} else if record.RefreshToken == "" {
		return "", trace.NotFound("state does not contain `refreshToken`")
	}

	return record.RefreshToken, nil
}

func (f *fileStore) PutRefreshToken(_ context.Context, token string) error {
	if token == "" {
		return trace.BadParameter("empty refresh token")
	}
	payload, err := json.Marshal(&fileRecord{RefreshToken: token, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return trace.Wrap(err)
	}

	if err := os.MkdirAll(filepath.Dir(f.filename), 0700); err != nil {
		return trace.ConvertSystemError(err)
	}
	tmp := f.filename + ".tmp"
	if err := os.WriteFile(tmp, payload, 0600); err != nil {
		return trace.ConvertSystemError(err)
	}
	if err := os.Rename(tmp, f.filename); err != nil {
		os.Remove(tmp)
		return trace.ConvertSystemError(err)
	}
	return nil
}

func (f *fileStore) DeleteRefreshToken(_ context.Context) error {
	err := os.Remove(f.filename)
	if err != nil && !os.IsNotExist(err) {
		return trace.ConvertSystemError(err)
	}
	return nil
}
