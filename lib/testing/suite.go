package testing

import (
	"context"
	"path/filepath"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/campusmarket/market-client/lib/logger"
)

const defaultTestTimeout = 5 * time.Second

// Suite is a testify suite whose tests get a context with a deadline and a
// logger tagged with the test name.
type Suite struct {
	suite.Suite
	ctx context.Context
}

// SetContext replaces the context of the current test.
func (s *Suite) SetContext(timeout time.Duration) context.Context {
	t := s.T()
	t.Helper()

	require.Nil(t, s.ctx, "Context cannot be set twice")

	ctx, _ := logger.WithField(context.Background(), "test", t.Name())
	ctx, cancel := context.WithTimeout(ctx, timeout)
	t.Cleanup(func() {
		cancel()
		s.ctx = nil
	})
	s.ctx = ctx
	return ctx
}

// Ctx returns the context of the current test.
func (s *Suite) Ctx() context.Context {
	t := s.T()
	t.Helper()

	if ctx := s.ctx; ctx != nil {
		return ctx
	}
	return s.SetContext(defaultTestTimeout)
}

// TempPath returns a path inside a directory removed after the test.
func (s *Suite) TempPath(name string) string {
	return filepath.Join(s.T().TempDir(), name)
}
