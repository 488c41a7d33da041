package objectstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPTransfer_PutsBody(t *testing.T) {
	var gotBody, gotType string
	var gotLen int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		b, _ := io.ReadAll(r.Body)
		gotBody, gotType, gotLen = string(b), r.Header.Get("Content-Type"), r.ContentLength
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := HTTPTransfer{}.Transfer(context.Background(), srv.URL+"/bucket/key", strings.NewReader("hello"), 5, "application/pdf")
	require.NoError(t, err)
	assert.Equal(t, "hello", gotBody)
	assert.Equal(t, "application/pdf", gotType)
	assert.EqualValues(t, 5, gotLen)
}

func TestHTTPTransfer_RejectedUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		http.Error(w, "SignatureDoesNotMatch", http.StatusForbidden)
	}))
	defer srv.Close()

	err := HTTPTransfer{Client: srv.Client()}.Transfer(context.Background(), srv.URL, strings.NewReader("x"), 1, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Contains(t, err.Error(), "SignatureDoesNotMatch")
}
