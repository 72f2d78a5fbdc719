package utils

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mp4Header is the smallest ftyp box recognized as video/mp4 by the content sniffer.
var mp4Header = append([]byte{0x00, 0x00, 0x00, 0x18}, []byte("ftypmp42\x00\x00\x00\x00mp42isom")...)

func sampleVideo() []byte {
	return append(append([]byte{}, mp4Header...), make([]byte, 1024)...)
}

func TestUtils_ShouldDownloadVideo(t *testing.T) {
	payload := sampleVideo()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", `attachment; filename="clip.mp4"`)
		w.Write(payload)
	}))
	defer srv.Close()

	var lastRead int64
	f, err := DownloadVideo(context.Background(), srv.Client(), srv.URL+"/uc?id=1", func(read, total int64) {
		lastRead = read
	})
	require.NoError(t, err)
	defer os.Remove(f.Name())
	defer f.Close()

	assert.Equal(t, ".mp4", filepath.Ext(f.Name()))
	assert.Equal(t, int64(len(payload)), lastRead)

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
}

func TestUtils_ShouldFollowDriveConfirmation(t *testing.T) {
	payload := sampleVideo()
	mux := http.NewServeMux()
	mux.HandleFunc("/uc", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body>
			<p>Google Drive can't scan this file for viruses.</p>
			<form id="download-form" action="/download" method="get">
				<input type="hidden" name="id" value="abc">
				<input type="hidden" name="export" value="download">
				<input type="hidden" name="confirm" value="t">
				<input type="submit" value="Download anyway">
			</form></body></html>`)
	})
	mux.HandleFunc("/download", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("confirm") != "t" || r.URL.Query().Get("id") != "abc" {
			http.Error(w, "missing confirmation", http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		w.Write(payload)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f, err := DownloadVideo(context.Background(), srv.Client(), srv.URL+"/uc?export=download&id=abc", nil)
	require.NoError(t, err)
	defer os.Remove(f.Name())
	defer f.Close()

	ctype, err := DetectContentType(f.Name())
	require.NoError(t, err)
	assert.Equal(t, "video/mp4", ctype)
}

func TestUtils_ShouldRejectHTMLWithoutConfirmation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body>Access denied</body></html>")
	}))
	defer srv.Close()

	_, err := DownloadVideo(context.Background(), srv.Client(), srv.URL, nil)
	assert.Error(t, err)
}

func TestUtils_ShouldRejectHTMLAfterConfirmation(t *testing.T) {
	var confirmations atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/uc", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body>
			<a id="uc-download-link" href="/download?id=abc&confirm=t">Download anyway</a>
			</body></html>`)
	})
	mux.HandleFunc("/download", func(w http.ResponseWriter, r *http.Request) {
		confirmations.Add(1)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body>Quota exceeded</body></html>")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	_, err := DownloadVideo(context.Background(), srv.Client(), srv.URL+"/uc?id=abc", nil)
	assert.ErrorIs(t, err, ErrNotVideo)
	assert.Equal(t, int32(1), confirmations.Load())
}

func TestUtils_ShouldRejectNonVideoPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("%PDF-1.4 not a video"))
	}))
	defer srv.Close()

	_, err := DownloadVideo(context.Background(), srv.Client(), srv.URL, nil)
	assert.ErrorIs(t, err, ErrNotVideo)
}

func TestUtils_ShouldFailOnHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := DownloadVideo(context.Background(), srv.Client(), srv.URL, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestUtils_ShouldCacheModel(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("cascade"))
	}))
	defer srv.Close()

	cache := t.TempDir()
	for i := 0; i < 2; i++ {
		p, err := FetchModel(context.Background(), srv.Client(), srv.URL+"/cascade/facefinder", cache)
		require.NoError(t, err)
		assert.Equal(t, "facefinder", filepath.Base(p))
		assert.True(t, strings.HasPrefix(p, cache))
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestUtils_ShouldReturnLocalModelPath(t *testing.T) {
	f := filepath.Join(t.TempDir(), "model.onnx")
	require.NoError(t, os.WriteFile(f, []byte("onnx"), 0644))

	p, err := FetchModel(context.Background(), nil, f, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, f, p)

	_, err = FetchModel(context.Background(), nil, f+".missing", t.TempDir())
	assert.Error(t, err)
}

func TestUtils_ShouldBeValidUrl(t *testing.T) {
	assert.True(t, IsValidUrl("https://docs.google.com/uc?export=download&confirm=&id=1pz68D1Gsx80MoPg-_q-IbEdESEmyVLm-"))
	assert.False(t, IsValidUrl("testdata/clip.mp4"))
	assert.False(t, IsValidUrl("-"))
}

func TestUtils_IsVideoType(t *testing.T) {
	assert.True(t, IsVideoType("video/mp4"))
	assert.True(t, IsVideoType("video/webm; codecs=vp9"))
	assert.True(t, IsVideoType("application/octet-stream"))
	assert.False(t, IsVideoType("text/html; charset=utf-8"))
	assert.False(t, IsVideoType("image/jpeg"))
}
