package authclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefreshTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/refresh", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		ck, err := r.Cookie("refreshToken")
		require.NoError(t, err)
		if ck.Value != "good-refresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(RefreshResponse{AccessToken: "a2", RefreshToken: "r2", AccessExp: 10, RefreshExp: 20})
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")

	resp, err := c.RefreshTokens(context.Background(), "good-refresh", "a1")
	require.NoError(t, err)
	assert.Equal(t, "a2", resp.AccessToken)
	assert.Equal(t, "r2", resp.RefreshToken)
	assert.EqualValues(t, 20, resp.RefreshExp)

	_, err = c.RefreshTokens(context.Background(), "bad", "a1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}
