package storage

import (
	"context"

	"github.com/gravitational/trace"
	"github.com/peterbourgon/diskv/v3"
)

const (
	// cacheSizeMaxBytes max memory cache
	cacheSizeMaxBytes = 1024

	// refreshTokenKey is the refresh token variable name
	refreshTokenKey = "refresh_token"
)

type diskvStore struct {
	dv *diskv.Diskv
}

// NewDiskvStore keeps the refresh token in a diskv directory.
func NewDiskvStore(dir string) (Store, error) {
	if dir == "" {
		return nil, trace.BadParameter("missing storage directory")
	}

	// Simplest transform function: put all the data files into the base dir.
	flatTransform := func(s string) []string { return []string{} }

	dv := diskv.New(diskv.Options{
		BasePath:     dir,
		Transform:    flatTransform,
		CacheSizeMax: cacheSizeMaxBytes,
		PathPerm:     0700,
		FilePerm:     0600,
	})

	return &diskvStore{dv: dv}, nil
}

func (s *diskvStore) GetRefreshToken(_ context.Context) (string, error) {
	if !s.dv.Has(refreshTokenKey) {
		return "", trace.NotFound("no refresh token stored")
	}

	b, err := s.dv.Read(refreshTokenKey)
	if err != nil {
		return "", trace.Wrap(err)
	}
	if len(b) == 0 {
		return "", trace.NotFound("no refresh token stored")
	}

	return string(b), nil
}

func (s *diskvStore) PutRefreshToken(_ context.Context, token string) error {
	if token == "" {
		return trace.BadParameter("empty refresh token")
	}
	return trace.Wrap(s.dv.Write(refreshTokenKey, []byte(token)))
}

func (s *diskvStore) DeleteRefreshToken(_ context.Context) error {
	if !s.dv.Has(refreshTokenKey) {
		return nil
	}
	return trace.Wrap(s.dv.Erase(refreshTokenKey))
}
