package vidscope

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/vidscope/vidscope/utils"
	"golang.org/x/term"
)

// PipeName is the file name that indicates stdin/stdout is being used.
const PipeName = "-"

// DefaultSource is the video shown when no input is given.
const DefaultSource = "https://docs.google.com/uc?export=download&confirm=&id=1pz68D1Gsx80MoPg-_q-IbEdESEmyVLm-"

// SourceOptions controls how a video resource is made available to the capture backends.
type SourceOptions struct {
	// Stream hands remote URLs to the capture backend as they are,
	// instead of downloading them into a temporary file first.
	Stream bool
	// Client is used for downloads, http.DefaultClient when nil.
	Client *http.Client
	// Progress is notified while a remote video is downloaded.
	Progress utils.Progress
	// Stdin is read when the source is PipeName, os.Stdin when nil.
	Stdin io.Reader
}

// Source is a video resource resolved into something a capture backend can open.
type Source struct {
	// URI is the resource as requested by the user.
	URI string
	// Path is a local file, or the URL itself when streaming.
	Path string
	// Remote is true when URI is a URL.
	Remote bool
	// ContentType is the sniffed MIME type, empty when streaming.
	ContentType string

	temp      bool
	closeOnce sync.Once
	closeErr  error
}

// ResolveSource makes the video behind uri available to the capture backends.
// The returned Source must be closed to remove temporary files.
func ResolveSource(ctx context.Context, uri string, opt SourceOptions) (*Source, error) {
	switch {
	case uri == PipeName:
		return spoolStdin(opt.Stdin)
	case utils.IsValidUrl(uri):
		src := &Source{URI: uri, Path: uri, Remote: true}
		if opt.Stream {
			log.Debug().Str("uri", uri).Msg("streaming remote video")
			return src, nil
		}
		f, err := utils.DownloadVideo(ctx, opt.Client, uri, opt.Progress)
		if err != nil {
			return nil, err
		}
		src.Path, src.temp = f.Name(), true
		if err := f.Close(); err != nil {
			src.Close()
			return nil, err
		}
		if src.ContentType, err = utils.DetectContentType(src.Path); err != nil {
			src.Close()
			return nil, err
		}
		log.Debug().Str("uri", uri).Str("path", src.Path).Msg("remote video downloaded")
		return src, nil
	default:
		fs, err := os.Stat(uri)
		if err != nil {
			return nil, fmt.Errorf("failed to load the source video: %w", err)
		}
		if fs.IsDir() {
			return nil, fmt.Errorf("the source %s is a directory", uri)
		}
		ctype, err := utils.DetectContentType(uri)
		if err != nil {
			return nil, fmt.Errorf("failed to load the source video: %w", err)
		}
		if !utils.IsVideoType(ctype) {
			return nil, fmt.Errorf("%w: %s is %s", utils.ErrNotVideo, uri, ctype)
		}
		return &Source{URI: uri, Path: uri, ContentType: ctype}, nil
	}
}

// Close removes the temporary file backing the source, if any. It is safe to call Close more than once.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		if s.temp {
			if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
				s.closeErr = err
			}
		}
	})
	return s.closeErr
}

// IsTemp reports whether the source is backed by a temporary file.
func (s *Source) IsTemp() bool {
	return s.temp
}

// spoolStdin copies the piped video into a temporary file,
// since the capture backends need a path they can open.
func spoolStdin(r io.Reader) (*Source, error) {
	if r == nil {
		r = os.Stdin
	}
	if f, ok := r.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return nil, errors.New("`-` should be used with a pipe for stdin")
	}

	tmp, err := os.CreateTemp("", "vidscope-stdin-*")
	if err != nil {
		return nil, fmt.Errorf("unable to create temporary file: %w", err)
	}
	src := &Source{URI: PipeName, Path: tmp.Name(), temp: true}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		src.Close()
		return nil, fmt.Errorf("unable to read the video from stdin: %w", err)
	}
	if err := tmp.Close(); err != nil {
		src.Close()
		return nil, err
	}
	if src.ContentType, err = utils.DetectContentType(src.Path); err != nil {
		src.Close()
		return nil, err
	}
	if !utils.IsVideoType(src.ContentType) {
		src.Close()
		return nil, fmt.Errorf("%w: stdin is %s", utils.ErrNotVideo, src.ContentType)
	}
	return src, nil
}
