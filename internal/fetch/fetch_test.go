package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	svcerrors "github.com/dans-labs/transformer/internal/errors"
)

func TestGetSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte("<doc/>"))
	}))
	defer srv.Close()

	res, err := New(5*time.Second).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "<doc/>", string(res.Body))
	assert.Equal(t, "application/xml", res.ContentType)
}

func TestGetNon200PropagatesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := New(5*time.Second).Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, svcerrors.KindFetch, svcerrors.KindOf(err))
	assert.Equal(t, http.StatusNotFound, svcerrors.HTTPStatus(err))
}

func TestGetTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := New(20*time.Millisecond).Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, svcerrors.KindFetch, svcerrors.KindOf(err))
}

func TestGetBadURL(t *testing.T) {
	_, err := New(time.Second).Get(context.Background(), "http://127.0.0.1:1/nothing")
	require.Error(t, err)
	assert.Equal(t, svcerrors.KindFetch, svcerrors.KindOf(err))
}
