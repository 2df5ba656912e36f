package llm

import (
	"context"
	"time"

	"github.com/cogniscient-io/cogniscient-sub000/pkg/credentials"
)

// CredentialTokenSource adapts a credentials.Store into a TokenSource, so
// providers requiring OAuth bearer auth obtain their token via C1/C2 before
// each call (§4.3).
type CredentialTokenSource struct {
	Store       *credentials.Store
	LockTimeout time.Duration
}

// AccessToken implements TokenSource.
func (c CredentialTokenSource) AccessToken(_ context.Context) (string, error) {
	timeout := c.LockTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return c.Store.GetValidAccessToken(timeout)
}

var _ TokenSource = CredentialTokenSource{}
