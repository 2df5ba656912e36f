// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package credentials is the Credential Store (C1): it persists OAuth
// tokens atomically with file locking and an in-memory freshness cache.
//
// Grounded on the original source's token_manager.py: a single JSON file
// under a runtime-data directory, guarded by an advisory file lock, written
// via temp-file-then-rename so a crash mid-write never leaves a partial
// file, with a short in-memory cache so repeated reads in a tight loop
// don't re-acquire the lock every time.
package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/cogniscient-io/cogniscient-sub000/pkg/gcserr"
)

const freshnessWindow = 30 * time.Second
const expiryBuffer = 5 * time.Minute

// Credentials is the persisted credential record (§3 Data Model).
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	// ExpiryDate is stored as either epoch seconds or epoch milliseconds;
	// see ExpiresAt for the disambiguation rule.
	ExpiryDate  float64        `json:"expiry_date"`
	ResourceURL string         `json:"resource_url,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// ExpiresAt returns the absolute expiry instant.
func (c Credentials) ExpiresAt() time.Time {
	if c.ExpiryDate > 1e10 {
		// magnitude indicates milliseconds
		return time.UnixMilli(int64(c.ExpiryDate))
	}
	return time.Unix(int64(c.ExpiryDate), 0)
}

// IsExpired reports whether the credentials are expired, with the given
// buffer added to "now" so a near-expiry token is treated as expired
// early enough to refresh before it actually lapses.
func (c Credentials) IsExpired(buffer time.Duration) bool {
	return time.Now().Add(buffer).After(c.ExpiresAt())
}

// Refresher performs the refresh-token grant; implemented by pkg/oauth.
type Refresher interface {
	Refresh(refreshToken string) (Credentials, error)
}

// Store is the Credential Store: atomic persistence, file locking, and a
// freshness cache, plus token refresh via an injected Refresher.
type Store struct {
	path string
	lock *flock.Flock

	mu        sync.Mutex
	cached    *Credentials
	cachedAt  time.Time
	refresher Refresher
}

// New constructs a Store backed by path. The directory is created if
// missing. refresher may be nil; GetValidAccessToken then fails with
// NO_VALID_CREDENTIALS instead of refreshing an expired token.
func New(path string, refresher Refresher) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating credentials dir: %w", err)
	}
	return &Store{
		path:      path,
		lock:      flock.New(path + ".lock"),
		refresher: refresher,
	}, nil
}

func (s *Store) withLock(timeout time.Duration, fn func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	locked, err := s.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil || !locked {
		return gcserr.New(gcserr.LockTimeout, "could not acquire credentials file lock")
	}
	defer s.lock.Unlock()
	return fn()
}

// Load reads credentials from disk (or the in-memory cache if fresh).
func (s *Store) Load(lockTimeout time.Duration) (Credentials, error) {
	s.mu.Lock()
	if s.cached != nil && time.Since(s.cachedAt) < freshnessWindow {
		c := *s.cached
		s.mu.Unlock()
		return c, nil
	}
	s.mu.Unlock()

	var creds Credentials
	err := s.withLock(lockTimeout, func() error {
		data, err := os.ReadFile(s.path)
		if err != nil {
			return fmt.Errorf("reading credentials: %w", err)
		}
		return json.Unmarshal(data, &creds)
	})
	if err != nil {
		return Credentials{}, err
	}

	s.mu.Lock()
	s.cached = &creds
	s.cachedAt = time.Now()
	s.mu.Unlock()

	return creds, nil
}

// Save writes creds atomically (temp file + rename) with mode 0600, and
// refreshes the in-memory cache.
func (s *Store) Save(creds Credentials, lockTimeout time.Duration) error {
	return s.withLock(lockTimeout, func() error {
		data, err := json.MarshalIndent(creds, "", "  ")
		if err != nil {
			return fmt.Errorf("marshalling credentials: %w", err)
		}

		tmp := s.path + ".tmp"
		if err := os.WriteFile(tmp, data, 0o600); err != nil {
			return fmt.Errorf("writing temp credentials: %w", err)
		}
		if err := os.Chmod(tmp, 0o600); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("chmod temp credentials: %w", err)
		}
		if err := os.Rename(tmp, s.path); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("renaming credentials into place: %w", err)
		}

		s.mu.Lock()
		c := creds
		s.cached = &c
		s.cachedAt = time.Now()
		s.mu.Unlock()
		return nil
	})
}

// HasValid reports whether stored credentials exist and are not expired.
func (s *Store) HasValid(lockTimeout time.Duration) bool {
	creds, err := s.Load(lockTimeout)
	if err != nil {
		return false
	}
	return !creds.IsExpired(expiryBuffer)
}

// GetValidAccessToken returns a non-expired access token, refreshing via the
// configured Refresher if the stored token is within the expiry buffer of
// expiring. Fails with NO_VALID_CREDENTIALS if there is nothing to refresh
// with, or AUTH_ERROR if refresh itself fails.
func (s *Store) GetValidAccessToken(lockTimeout time.Duration) (string, error) {
	creds, err := s.Load(lockTimeout)
	if err != nil {
		return "", gcserr.Wrap(gcserr.NoValidCredential, "no credentials on disk", err)
	}

	if !creds.IsExpired(expiryBuffer) {
		return creds.AccessToken, nil
	}

	if s.refresher == nil || creds.RefreshToken == "" {
		return "", gcserr.New(gcserr.NoValidCredential, "credentials expired and no refresher configured")
	}

	refreshed, err := s.refresher.Refresh(creds.RefreshToken)
	if err != nil {
		if gcserr.Is(err, gcserr.AuthError) {
			_ = s.Clear(lockTimeout)
		}
		return "", gcserr.Wrap(gcserr.AuthError, "token refresh failed", err)
	}

	if err := s.Save(refreshed, lockTimeout); err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

// Clear removes the credentials file and the in-memory cache. Used both for
// explicit logout and as the terminal response to a refresh rejection.
func (s *Store) Clear(lockTimeout time.Duration) error {
	return s.withLock(lockTimeout, func() error {
		s.mu.Lock()
		s.cached = nil
		s.mu.Unlock()

		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing credentials: %w", err)
		}
		return nil
	})
}
