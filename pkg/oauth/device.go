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
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cogniscient-io/cogniscient-sub000/pkg/gcserr"
)

// PollOutcome classifies a single /oauth/token poll response.
type PollOutcome string

const (
	PollSuccess               PollOutcome = "success"
	PollAuthorizationPending  PollOutcome = "authorization_pending"
	PollSlowDown              PollOutcome = "slow_down"
	PollExpiredToken          PollOutcome = "expired_token"
	PollAccessDenied          PollOutcome = "access_denied"
	PollOtherError            PollOutcome = "other_error"
)

// TokenResult carries the tokens returned by a successful poll or refresh.
type TokenResult struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int // seconds
	ResourceURL  string
}

// DeviceAuthorization is the response to the initial device-code request.
type DeviceAuthorization struct {
	DeviceCode              string
	UserCode                string
	VerificationURI         string
	VerificationURIComplete string
	ExpiresIn               int
	Interval                int
}

// Client drives the device-authorization grant with PKCE S256 against a
// single authorization server.
type Client struct {
	ClientID            string
	AuthorizationServer string
	HTTPClient          *http.Client
}

// New constructs a device-flow Client. authServer is the base URL (e.g.
// "https://chat.qwen.ai"); endpoints are resolved relative to it per §4.2/§6.
func New(clientID, authServer string) *Client {
	return &Client{
		ClientID:            clientID,
		AuthorizationServer: authServer,
		HTTPClient:          &http.Client{Timeout: 30 * time.Second},
	}
}

// RequestDeviceAuthorization posts to /oauth/device/code.
func (c *Client) RequestDeviceAuthorization(ctx context.Context, pkce PKCEPair, scope string) (DeviceAuthorization, error) {
	form := url.Values{
		"client_id":             {c.ClientID},
		"code_challenge":        {pkce.Challenge},
		"code_challenge_method": {"S256"},
	}
	if scope != "" {
		form.Set("scope", scope)
	}

	var raw struct {
		DeviceCode              string `json:"device_code"`
		UserCode                string `json:"user_code"`
		VerificationURI         string `json:"verification_uri"`
		VerificationURIComplete string `json:"verification_uri_complete"`
		ExpiresIn               int    `json:"expires_in"`
		Interval                int    `json:"interval"`
	}
	if err := c.post(ctx, "/oauth/device/code", form, &raw); err != nil {
		return DeviceAuthorization{}, err
	}
	if raw.Interval == 0 {
		raw.Interval = 5
	}
	return DeviceAuthorization{
		DeviceCode:              raw.DeviceCode,
		UserCode:                raw.UserCode,
		VerificationURI:         raw.VerificationURI,
		VerificationURIComplete: raw.VerificationURIComplete,
		ExpiresIn:               raw.ExpiresIn,
		Interval:                raw.Interval,
	}, nil
}

// pollResponse is the raw shape of a /oauth/token poll response, success or
// error alike (the error case uses the standard OAuth `error` field).
type pollResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	ResourceURL  string `json:"resource_url"`
	Error        string `json:"error"`
}

// PollDeviceToken performs a single poll of /oauth/token for the device
// grant. Callers loop on the returned outcome per §4.2's state machine.
func (c *Client) PollDeviceToken(ctx context.Context, deviceCode string, pkce PKCEPair) (PollOutcome, TokenResult, error) {
	form := url.Values{
		"grant_type":    {"urn:ietf:params:oauth:grant-type:device_code"},
		"client_id":     {c.ClientID},
		"device_code":   {deviceCode},
		"code_verifier": {pkce.Verifier},
	}

	status, resp, err := c.postRaw(ctx, "/oauth/token", form)
	if err != nil {
		return PollOtherError, TokenResult{}, err
	}

	var body pollResponse
	if err := json.Unmarshal(resp, &body); err != nil {
		return PollOtherError, TokenResult{}, fmt.Errorf("parsing poll response: %w", err)
	}

	if status == http.StatusOK && body.AccessToken != "" {
		return PollSuccess, TokenResult{
			AccessToken:  body.AccessToken,
			RefreshToken: body.RefreshToken,
			TokenType:    body.TokenType,
			ExpiresIn:    body.ExpiresIn,
			ResourceURL:  body.ResourceURL,
		}, nil
	}

	switch body.Error {
	case "authorization_pending":
		return PollAuthorizationPending, TokenResult{}, nil
	case "slow_down":
		return PollSlowDown, TokenResult{}, nil
	case "expired_token":
		return PollExpiredToken, TokenResult{}, nil
	case "access_denied":
		return PollAccessDenied, TokenResult{}, nil
	default:
		return PollOtherError, TokenResult{}, fmt.Errorf("device token poll failed: %s", body.Error)
	}
}

// Refresh performs the refresh_token grant. A 400 response is a terminal
// signal: translated into an AUTH_ERROR so callers (pkg/credentials) know to
// clear stored credentials rather than retry.
func (c *Client) Refresh(refreshToken string) (TokenResult, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {c.ClientID},
		"refresh_token": {refreshToken},
	}

	status, resp, err := c.postRaw(context.Background(), "/oauth/token", form)
	if err != nil {
		return TokenResult{}, gcserr.Wrap(gcserr.NetworkError, "refresh request failed", err)
	}

	if status == http.StatusBadRequest {
		return TokenResult{}, gcserr.New(gcserr.AuthError, "refresh token rejected (400)")
	}

	var body pollResponse
	if err := json.Unmarshal(resp, &body); err != nil {
		return TokenResult{}, gcserr.Wrap(gcserr.AuthError, "parsing refresh response", err)
	}
	if body.AccessToken == "" {
		return TokenResult{}, gcserr.New(gcserr.AuthError, "refresh response missing access_token")
	}

	return TokenResult{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		TokenType:    body.TokenType,
		ExpiresIn:    body.ExpiresIn,
		ResourceURL:  body.ResourceURL,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, form url.Values, out any) error {
	_, body, err := c.postRaw(ctx, path, form)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

func (c *Client) postRaw(ctx context.Context, path string, form url.Values) (int, []byte, error) {
	endpoint := strings.TrimRight(c.AuthorizationServer, "/") + path

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, fmt.Errorf("building request to %s: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		slog.Debug("oauth request failed", "endpoint", endpoint, "error", err)
		return 0, nil, fmt.Errorf("request to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response from %s: %w", endpoint, err)
	}
	return resp.StatusCode, body, nil
}
