package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSiteverify(t *testing.T, success bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "captcha-secret", r.PostForm.Get("secret"))
		assert.Equal(t, "client-token", r.PostForm.Get("response"))
		assert.Equal(t, "203.0.113.7", r.PostForm.Get("remoteip"))

		w.Header().Set("Content-Type", "application/json")
		if success {
			_, _ = w.Write([]byte(`{"success": true}`))
			return
		}
		_, _ = w.Write([]byte(`{"success": false, "error-codes": ["invalid-input-response"]}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRecaptchaVerifier(t *testing.T) {
	for _, success := range []bool{true, false} {
		srv := newSiteverify(t, success)
		v := NewRecaptchaVerifier("captcha-secret", srv.Client())
		v.endpoint = srv.URL

		ok, err := v.Verify(context.Background(), "client-token", "203.0.113.7")
		require.NoError(t, err)
		assert.Equal(t, success, ok)
	}
}

func TestRecaptchaVerifier_EmptyTokenFailsWithoutCall(t *testing.T) {
	v := NewRecaptchaVerifier("captcha-secret", nil)
	v.endpoint = "http://127.0.0.1:1"

	ok, err := v.Verify(context.Background(), "", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecaptchaVerifier_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	v := NewRecaptchaVerifier("captcha-secret", srv.Client())
	v.endpoint = srv.URL
	ok, err := v.Verify(context.Background(), "client-token", "")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestDisabledCaptcha(t *testing.T) {
	ok, err := DisabledCaptcha{}.Verify(context.Background(), "", "")
	require.NoError(t, err)
	assert.True(t, ok)
}
