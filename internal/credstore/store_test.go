package credstore

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/gmailrelay/internal/google"
)

var (
	testCreds  = google.ClientCredentials{ClientID: "abc.apps.googleusercontent.com", ClientSecret: "GOCSPX-secret"}
	testTokens = &google.TokenPair{AccessToken: "ya29.a", RefreshToken: "1//r", TokenType: "Bearer", ExpiryDate: 1700000000000}
)

const testRedirect = "http://localhost:3000/callback"

// storeFactories runs every Store implementation through the same tests.
func storeFactories(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"file": func() Store {
			return NewFileStore(filepath.Join(t.TempDir(), "gmailrelay", FileName))
		},
	}
}

func TestStore_Lifecycle(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore()

			r, err := s.Load()
			require.NoError(t, err)
			assert.Equal(t, Record{}, r)
			assert.False(t, r.HasCredentials())

			require.NoError(t, s.SaveCredentials(testCreds, testRedirect))
			r, err = s.Load()
			require.NoError(t, err)
			assert.True(t, r.HasCredentials())
			assert.False(t, r.Authorized())
			assert.Equal(t, testCreds, r.Credentials())

			require.NoError(t, s.SaveTokens(testTokens))
			r, err = s.Load()
			require.NoError(t, err)
			assert.True(t, r.Authorized())

			want := Record{
				ClientID:     testCreds.ClientID,
				ClientSecret: testCreds.ClientSecret,
				RedirectURI:  testRedirect,
				Tokens:       testTokens,
			}
			if diff := cmp.Diff(want, r); diff != "" {
				t.Errorf("Load() mismatch (-want +got):\n%s", diff)
			}

			require.NoError(t, s.Clear())
			r, err = s.Load()
			require.NoError(t, err)
			assert.Equal(t, Record{}, r)

			// Clearing an empty store is not an error.
			require.NoError(t, s.Clear())
		})
	}
}

func TestStore_SaveCredentialsKeepsTokens(t *testing.T) {
	for name, newStore := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			s := newStore()
			require.NoError(t, s.SaveCredentials(testCreds, testRedirect))
			require.NoError(t, s.SaveTokens(testTokens))

			other := google.ClientCredentials{ClientID: "other", ClientSecret: "other-secret"}
			require.NoError(t, s.SaveCredentials(other, testRedirect))

			r, err := s.Load()
			require.NoError(t, err)
			assert.Equal(t, other, r.Credentials())
			assert.Equal(t, testTokens.AccessToken, r.Tokens.AccessToken)
		})
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	tokens := &google.TokenPair{AccessToken: "a"}
	require.NoError(t, s.SaveTokens(tokens))

	tokens.AccessToken = "mutated"
	r, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "a", r.Tokens.AccessToken)

	r.Tokens.AccessToken = "mutated again"
	r, err = s.Load()
	require.NoError(t, err)
	assert.Equal(t, "a", r.Tokens.AccessToken)
}

func TestFileStore_FileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	s := NewFileStore(path)
	require.NoError(t, s.SaveCredentials(testCreds, testRedirect))
	require.NoError(t, s.SaveTokens(testTokens))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, key := range []string{"gmail_client_id", "gmail_client_secret", "gmail_redirect_uri", "gmail_tokens", "access_token", "expiry_date"} {
		assert.Contains(t, string(data), `"`+key+`"`)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	s := NewFileStore(path)
	_, err := s.Load()
	require.Error(t, err)

	// A failed save leaves the existing file untouched.
	require.Error(t, s.SaveTokens(testTokens))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(data))
}

func TestDefaultPath(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG_CACHE_HOME only applies on linux")
	}
	t.Setenv("XDG_CACHE_HOME", "/tmp/xdg-cache")

	path, err := DefaultPath()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/xdg-cache/gmailrelay/credentials.json", path)
}
