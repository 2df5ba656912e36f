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

package oauth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cogniscient-io/cogniscient-sub000/pkg/credentials"
	"github.com/cogniscient-io/cogniscient-sub000/pkg/gcserr"
)

// Prompter displays the verification URI/code to the user and optionally
// opens a browser; implemented by the CLI layer so this package stays
// free of terminal/browser concerns.
type Prompter interface {
	PromptVerification(auth DeviceAuthorization)
}

// Authenticate drives the full device-authorization flow: generates a PKCE
// pair, requests device authorization, prompts the user via p, then polls
// until success, expiry, or denial (§4.2).
func (c *Client) Authenticate(ctx context.Context, scope string, p Prompter) (credentials.Credentials, error) {
	pkce, err := GeneratePKCEPair()
	if err != nil {
		return credentials.Credentials{}, fmt.Errorf("generating PKCE pair: %w", err)
	}

	auth, err := c.RequestDeviceAuthorization(ctx, pkce, scope)
	if err != nil {
		return credentials.Credentials{}, fmt.Errorf("requesting device authorization: %w", err)
	}

	if p != nil {
		p.PromptVerification(auth)
	}

	interval := time.Duration(auth.Interval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	deadline := time.Now().Add(time.Duration(auth.ExpiresIn) * time.Second)

	for {
		if time.Now().After(deadline) {
			return credentials.Credentials{}, gcserr.New(gcserr.AuthError, "device code expired before authorization")
		}

		select {
		case <-ctx.Done():
			return credentials.Credentials{}, gcserr.Wrap(gcserr.Cancelled, "authentication cancelled", ctx.Err())
		case <-time.After(interval):
		}

		outcome, tok, err := c.PollDeviceToken(ctx, auth.DeviceCode, pkce)
		if err != nil {
			return credentials.Credentials{}, gcserr.Wrap(gcserr.AuthError, "device token poll failed", err)
		}

		switch outcome {
		case PollSuccess:
			return tokenResultToCredentials(tok), nil
		case PollAuthorizationPending:
			continue
		case PollSlowDown:
			interval += 5 * time.Second
			continue
		case PollExpiredToken:
			return credentials.Credentials{}, gcserr.New(gcserr.AuthError, "device code expired")
		case PollAccessDenied:
			return credentials.Credentials{}, gcserr.New(gcserr.AuthError, "authorization denied")
		default:
			return credentials.Credentials{}, gcserr.New(gcserr.AuthError, "device token poll returned an unrecognised error")
		}
	}
}

func tokenResultToCredentials(tok TokenResult) credentials.Credentials {
	expiresIn := tok.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	return credentials.Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		ExpiryDate:   float64(time.Now().Add(time.Duration(expiresIn) * time.Second).Unix()),
		ResourceURL:  tok.ResourceURL,
	}
}

// CredentialRefresher adapts Client to credentials.Refresher so the
// Credential Store can refresh expired tokens without depending on this
// package's wider API.
type CredentialRefresher struct {
	Client *Client
}

// Refresh implements credentials.Refresher.
func (r CredentialRefresher) Refresh(refreshToken string) (credentials.Credentials, error) {
	tok, err := r.Client.Refresh(refreshToken)
	if err != nil {
		return credentials.Credentials{}, err
	}
	return tokenResultToCredentials(tok), nil
}

var _ credentials.Refresher = CredentialRefresher{}

// LogPrompter is a Prompter that writes the verification instructions to
// the structured logger; the CLI can supply a richer terminal/browser
// prompter instead.
type LogPrompter struct{}

func (LogPrompter) PromptVerification(auth DeviceAuthorization) {
	slog.Info("visit this URL to authorize",
		"verification_uri", auth.VerificationURI,
		"user_code", auth.UserCode,
		"verification_uri_complete", auth.VerificationURIComplete)
}

var _ Prompter = LogPrompter{}
