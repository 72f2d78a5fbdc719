package utils

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
)

// ErrNotVideo is returned when a downloaded resource is not a video stream.
var ErrNotVideo = errors.New("the downloaded file is not a valid video type")

// Progress is invoked while a download is in flight. The total is -1 when
// the server does not announce the content length.
type Progress func(read, total int64)

// DownloadVideo downloads a video from the internet and saves it into a temporary file.
// Large Google Drive files answer the first request with a "can't scan this file for
// viruses" page; the confirmation form on that page is followed once.
// The returned file is positioned at its start. The caller owns the file and should remove it.
func DownloadVideo(ctx context.Context, client *http.Client, uri string, progress Progress) (*os.File, error) {
	if client == nil {
		client = http.DefaultClient
	}
	res, err := get(ctx, client, uri)
	if err != nil {
		return nil, err
	}

	if isHTML(res.Header.Get("Content-Type")) {
		confirmed, err := confirmURL(res.Request.URL, res.Body)
		res.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("unable to download video file from URI %s: %w", uri, err)
		}
		log.Debug().Str("uri", confirmed).Msg("following download confirmation")

		res, err = get(ctx, client, confirmed)
		if err != nil {
			return nil, err
		}
		if isHTML(res.Header.Get("Content-Type")) {
			res.Body.Close()
			return nil, fmt.Errorf("%w: %s answered with an HTML page", ErrNotVideo, uri)
		}
	}
	defer res.Body.Close()

	tmpfile, err := os.CreateTemp("", "vidscope-*"+remoteExt(res))
	if err != nil {
		return nil, fmt.Errorf("unable to create temporary file: %w", err)
	}
	fail := func(err error) (*os.File, error) {
		tmpfile.Close()
		os.Remove(tmpfile.Name())
		return nil, err
	}

	var dst io.Writer = tmpfile
	if progress != nil {
		dst = &progressWriter{w: tmpfile, total: res.ContentLength, fn: progress}
	}
	if _, err := io.Copy(dst, res.Body); err != nil {
		return fail(fmt.Errorf("unable to copy the source URI into the destination file: %w", err))
	}

	ctype, err := DetectContentType(tmpfile.Name())
	if err != nil {
		return fail(err)
	}
	if !IsVideoType(ctype) {
		return fail(fmt.Errorf("%w: got %s", ErrNotVideo, ctype))
	}
	if _, err := tmpfile.Seek(0, io.SeekStart); err != nil {
		return fail(err)
	}

	return tmpfile, nil
}

// FetchModel returns a local path for a model file. Local paths are returned as they are,
// URLs are downloaded once into cacheDir and reused on subsequent calls.
func FetchModel(ctx context.Context, client *http.Client, uri, cacheDir string) (string, error) {
	if !IsValidUrl(uri) {
		if _, err := os.Stat(uri); err != nil {
			return "", fmt.Errorf("unable to access model file: %w", err)
		}
		return uri, nil
	}
	if client == nil {
		client = http.DefaultClient
	}

	u, _ := url.Parse(uri)
	name := path.Base(u.Path)
	if name == "/" || name == "." {
		name = "model"
	}
	dst := filepath.Join(cacheDir, u.Host, name)
	if fi, err := os.Stat(dst); err == nil && fi.Size() > 0 {
		log.Debug().Str("path", dst).Msg("model found in cache")
		return dst, nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", fmt.Errorf("unable to create the model cache: %w", err)
	}
	res, err := get(ctx, client, uri)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), name+".part-*")
	if err != nil {
		return "", fmt.Errorf("unable to create temporary file: %w", err)
	}
	if _, err := io.Copy(tmp, res.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("unable to download model file %s: %w", uri, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	log.Debug().Str("uri", uri).Str("path", dst).Msg("model downloaded")

	return dst, nil
}

// IsValidUrl tests a string to determine if it is a well-structured url or not.
func IsValidUrl(uri string) bool {
	_, err := url.ParseRequestURI(uri)
	if err != nil {
		return false
	}

	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}

	return true
}

// IsVideoType reports whether a sniffed MIME type may hold a video stream.
// Containers not known by the sniffer are reported as application/octet-stream
// and are let through; the capture backend has the final word.
func IsVideoType(ctype string) bool {
	mt, _, err := mime.ParseMediaType(ctype)
	if err != nil {
		mt = ctype
	}
	return strings.HasPrefix(mt, "video/") ||
		mt == "application/octet-stream" ||
		mt == "application/ogg"
}

// DetectContentType detects the file type by reading MIME type information of the file content.
func DetectContentType(fname string) (string, error) {
	file, err := os.Open(fname)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := file.Close(); err != nil {
			log.Printf("could not close the opened file: %v", err)
		}
	}()

	// Only the first 512 bytes are used to sniff the content type.
	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}

	// Always returns a valid content-type and "application/octet-stream" if no others seemed to match.
	return http.DetectContentType(buffer[:n]), nil
}

func get(ctx context.Context, client *http.Client, uri string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid URI %s: %w", uri, err)
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to download file from URI %s: %w", uri, err)
	}
	if res.StatusCode != http.StatusOK {
		res.Body.Close()
		return nil, fmt.Errorf("unable to download file from URI %s: status %s", uri, res.Status)
	}
	return res, nil
}

func isHTML(ctype string) bool {
	mt, _, err := mime.ParseMediaType(ctype)
	return err == nil && mt == "text/html"
}

// confirmURL extracts the confirmed download link from a Google Drive warning page.
func confirmURL(base *url.URL, body io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return "", err
	}

	if form := doc.Find("form#download-form"); form.Length() > 0 {
		action, _ := form.Attr("action")
		u, err := base.Parse(action)
		if err != nil {
			return "", err
		}
		q := u.Query()
		form.Find("input[type=hidden]").Each(func(_ int, s *goquery.Selection) {
			if name, ok := s.Attr("name"); ok {
				value, _ := s.Attr("value")
				q.Set(name, value)
			}
		})
		u.RawQuery = q.Encode()
		return u.String(), nil
	}

	if href, ok := doc.Find("a#uc-download-link").Attr("href"); ok {
		u, err := base.Parse(href)
		if err != nil {
			return "", err
		}
		return u.String(), nil
	}

	return "", errors.New("no download confirmation found on the HTML page")
}

// remoteExt guesses the file extension of a download, preferring the
// Content-Disposition file name over the request path.
func remoteExt(res *http.Response) string {
	if cd := res.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if ext := filepath.Ext(params["filename"]); ext != "" {
				return ext
			}
		}
	}
	if res.Request != nil && res.Request.URL != nil {
		return path.Ext(res.Request.URL.Path)
	}
	return ""
}

type progressWriter struct {
	w     io.Writer
	read  int64
	total int64
	fn    Progress
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	pw.read += int64(n)
	pw.fn(pw.read, pw.total)
	return n, err
}
