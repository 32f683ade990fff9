package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken("client-42", testSecret, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := ValidateToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "client-42", claims.ClientID)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, err := GenerateToken("client-42", testSecret, time.Hour)
	require.NoError(t, err)

	_, err = ValidateToken(token, "another-secret")
	require.Error(t, err)
}

func TestValidateTokenExpired(t *testing.T) {
	token, err := GenerateToken("client-42", testSecret, -time.Minute)
	require.NoError(t, err)

	_, err = ValidateToken(token, testSecret)
	require.Error(t, err)
}

func identifiedClient(t *testing.T, prepare func(*http.Request)) string {
	t.Helper()
	var got string
	handler := Identify(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClientID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	req.RemoteAddr = "203.0.113.7:54321"
	prepare(req)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	return got
}

func TestIdentifyPrefersBearerToken(t *testing.T) {
	token, err := GenerateToken("session-client", testSecret, time.Hour)
	require.NoError(t, err)

	got := identifiedClient(t, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})
	assert.Equal(t, "session-client", got)
}

func TestIdentifyFallsBackToRemoteAddr(t *testing.T) {
	got := identifiedClient(t, func(*http.Request) {})
	assert.Equal(t, "203.0.113.7", got)
}

func TestIdentifyHonorsForwardedFor(t *testing.T) {
	got := identifiedClient(t, func(r *http.Request) {
		r.Header.Set("X-Forwarded-For", "198.51.100.4, 10.0.0.1")
	})
	assert.Equal(t, "198.51.100.4", got)
}

func TestIdentifyInvalidTokenFallsBack(t *testing.T) {
	got := identifiedClient(t, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer not-a-token")
	})
	assert.Equal(t, "203.0.113.7", got)
}
