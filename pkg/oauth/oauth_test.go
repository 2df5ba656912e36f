package oauth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGeneratePKCEPairLengthAndCharset(t *testing.T) {
	pair, err := GeneratePKCEPair()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(pair.Verifier), minVerifierLen)
	require.LessOrEqual(t, len(pair.Verifier), maxVerifierLen)
	require.NotEmpty(t, pair.Challenge)
	require.NotContains(t, pair.Challenge, "=") // base64url, no padding
}

func TestGeneratePKCEPairIsRandom(t *testing.T) {
	a, err := GeneratePKCEPair()
	require.NoError(t, err)
	b, err := GeneratePKCEPair()
	require.NoError(t, err)
	require.NotEqual(t, a.Verifier, b.Verifier)
}

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, New("test-client", srv.URL)
}

func TestPollDeviceTokenSuccess(t *testing.T) {
	srv, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "tok",
			"refresh_token": "rtok",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	})
	_ = srv

	pkce, _ := GeneratePKCEPair()
	outcome, tok, err := c.PollDeviceToken(t.Context(), "devicecode", pkce)
	require.NoError(t, err)
	require.Equal(t, PollSuccess, outcome)
	require.Equal(t, "tok", tok.AccessToken)
}

func TestPollDeviceTokenPending(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"error": "authorization_pending"})
	})

	pkce, _ := GeneratePKCEPair()
	outcome, _, err := c.PollDeviceToken(t.Context(), "devicecode", pkce)
	require.NoError(t, err)
	require.Equal(t, PollAuthorizationPending, outcome)
}

func TestPollDeviceTokenSlowDown(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"error": "slow_down"})
	})

	pkce, _ := GeneratePKCEPair()
	outcome, _, err := c.PollDeviceToken(t.Context(), "devicecode", pkce)
	require.NoError(t, err)
	require.Equal(t, PollSlowDown, outcome)
}

func TestRefreshTerminalOn400(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"error": "invalid_grant"})
	})

	_, err := c.Refresh("some-refresh-token")
	require.Error(t, err)
}

func TestRequestDeviceAuthorizationParsesResponse(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		require.Equal(t, "test-client", r.Form.Get("client_id"))
		require.Equal(t, "S256", r.Form.Get("code_challenge_method"))
		json.NewEncoder(w).Encode(map[string]any{
			"device_code":      "dc",
			"user_code":        "ABCD-1234",
			"verification_uri": "https://example.com/device",
			"expires_in":       600,
			"interval":         5,
		})
	})

	pkce, _ := GeneratePKCEPair()
	auth, err := c.RequestDeviceAuthorization(t.Context(), pkce, "")
	require.NoError(t, err)
	require.Equal(t, "dc", auth.DeviceCode)
	require.Equal(t, "ABCD-1234", auth.UserCode)
}
