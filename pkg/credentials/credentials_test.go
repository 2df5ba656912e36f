package credentials

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := New(filepath.Join(dir, "oauth_creds.json"), nil)
	require.NoError(t, err)

	creds := Credentials{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		TokenType:    "Bearer",
		ExpiryDate:   float64(time.Now().Add(time.Hour).Unix()),
	}

	require.NoError(t, store.Save(creds, time.Second))

	loaded, err := store.Load(time.Second)
	require.NoError(t, err)
	require.Equal(t, creds.AccessToken, loaded.AccessToken)
	require.Equal(t, creds.RefreshToken, loaded.RefreshToken)
}

func TestSaveSetsFileMode0600(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "oauth_creds.json")
	store, err := New(path, nil)
	require.NoError(t, err)

	require.NoError(t, store.Save(Credentials{AccessToken: "a"}, time.Second))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, uint32(0o600), uint32(info.Mode().Perm()))
}

func TestExpiryDisambiguatesSecondsVsMillis(t *testing.T) {
	future := time.Now().Add(time.Hour)

	secs := Credentials{ExpiryDate: float64(future.Unix())}
	require.WithinDuration(t, future, secs.ExpiresAt(), 2*time.Second)

	millis := Credentials{ExpiryDate: float64(future.UnixMilli())}
	require.WithinDuration(t, future, millis.ExpiresAt(), 2*time.Second)
}

func TestIsExpiredHonorsBuffer(t *testing.T) {
	c := Credentials{ExpiryDate: float64(time.Now().Add(2 * time.Minute).Unix())}
	require.True(t, c.IsExpired(5*time.Minute))
	require.False(t, c.IsExpired(time.Minute))
}

func TestClearRemovesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "oauth_creds.json")
	store, err := New(path, nil)
	require.NoError(t, err)

	require.NoError(t, store.Save(Credentials{AccessToken: "a"}, time.Second))
	require.False(t, store.HasValid(time.Second)) // no expiry set => treated as expired

	require.NoError(t, store.Clear(time.Second))
	_, err = store.Load(time.Second)
	require.Error(t, err)
}

type fakeRefresher struct {
	called bool
	result Credentials
	err    error
}

func (f *fakeRefresher) Refresh(refreshToken string) (Credentials, error) {
	f.called = true
	return f.result, f.err
}

func TestGetValidAccessTokenRefreshesWhenExpired(t *testing.T) {
	dir := t.TempDir()
	refresher := &fakeRefresher{
		result: Credentials{
			AccessToken:  "new-access",
			RefreshToken: "new-refresh",
			ExpiryDate:   float64(time.Now().Add(time.Hour).Unix()),
		},
	}
	store, err := New(filepath.Join(dir, "oauth_creds.json"), refresher)
	require.NoError(t, err)

	require.NoError(t, store.Save(Credentials{
		AccessToken:  "old-access",
		RefreshToken: "old-refresh",
		ExpiryDate:   float64(time.Now().Add(-time.Hour).Unix()),
	}, time.Second))

	token, err := store.GetValidAccessToken(time.Second)
	require.NoError(t, err)
	require.Equal(t, "new-access", token)
	require.True(t, refresher.called)
}
