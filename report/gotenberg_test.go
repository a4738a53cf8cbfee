package report

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderHTMLPostsMultipartForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forms/chromium/convert/html", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "8.27", r.FormValue("paperWidth"))
		assert.Equal(t, "true", r.FormValue("printBackground"))
		f, hdr, err := r.FormFile("files")
		require.NoError(t, err)
		assert.Equal(t, "index.html", hdr.Filename)
		body, _ := io.ReadAll(f)
		assert.Equal(t, "<p>hi</p>", string(body))
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer srv.Close()

	pdf, err := NewClient(srv.URL+"/", 0).RenderHTML(context.Background(), "<p>hi</p>")
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(pdf))
}

func TestRenderHTMLReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "chromium crashed", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, 0).RenderHTML(context.Background(), "<p/>")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.Status)
	assert.Equal(t, "chromium crashed", statusErr.Body)

	require.Error(t, NewClient(srv.URL, 0).Ping(context.Background()))
}

func TestUnconfiguredClient(t *testing.T) {
	_, err := NewClient("", 0).RenderHTML(context.Background(), "<p/>")
	require.ErrorIs(t, err, ErrNotConfigured)
}
