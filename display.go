package vidscope

import (
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"io"
	"os"
	"strings"

	"github.com/vidscope/vidscope/utils"
)

// The reference frame the display fraction is applied to.
const (
	RefWidth  = 1280
	RefHeight = 720
)

// DefaultFraction scales the reference frame down to 832x468.
const DefaultFraction = 0.65

// ErrEmbedRemote is returned when embedding is requested for a remote video.
var ErrEmbedRemote = errors.New("embedding is supported for local files only")

// DisplaySize returns the width and height of the display surface
// as a fraction of the 1280x720 reference frame.
func DisplaySize(frac float64) (width, height int, err error) {
	if frac <= 0 {
		return 0, 0, fmt.Errorf("invalid display fraction %v: should be greater than zero", frac)
	}
	return int(RefWidth * frac), int(RefHeight * frac), nil
}

// Video renders a video as an inline HTML element.
type Video struct {
	Src      string
	Width    int
	Height   int
	MIMEType string
	// Embed inlines the content of a local file as a data URI, which makes the
	// generated page self contained.
	Embed    bool
	Controls bool
	Autoplay bool
	Loop     bool
	Muted    bool
}

// NewVideo returns a video element with controls, sized by the display fraction.
func NewVideo(src string, frac float64) (*Video, error) {
	w, h, err := DisplaySize(frac)
	if err != nil {
		return nil, err
	}
	return &Video{
		Src:      src,
		Width:    w,
		Height:   h,
		Controls: true,
	}, nil
}

var videoTmpl = template.Must(template.New("video").Parse(
	`<video{{if not .MIMEType}} src="{{.Src}}"{{end}}{{if .Controls}} controls{{end}}` +
		`{{if .Autoplay}} autoplay{{end}}{{if .Loop}} loop{{end}}{{if .Muted}} muted{{end}}` +
		`{{if .Width}} width="{{.Width}}"{{end}}{{if .Height}} height="{{.Height}}"{{end}}>` +
		`{{if .MIMEType}}<source src="{{.Src}}" type="{{.MIMEType}}">{{end}}` +
		`Your browser does not support the video element.</video>`))

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
{{.Video}}
</body>
</html>
`))

// HTML returns the <video> element.
func (v *Video) HTML() (template.HTML, error) {
	data := struct {
		Src                             template.URL
		Width, Height                   int
		MIMEType                        string
		Controls, Autoplay, Loop, Muted bool
	}{
		Width:    v.Width,
		Height:   v.Height,
		MIMEType: v.MIMEType,
		Controls: v.Controls,
		Autoplay: v.Autoplay,
		Loop:     v.Loop,
		Muted:    v.Muted,
	}

	if v.Embed {
		if utils.IsValidUrl(v.Src) {
			return "", ErrEmbedRemote
		}
		uri, mimeType, err := dataURI(v.Src, v.MIMEType)
		if err != nil {
			return "", err
		}
		data.Src = template.URL(uri)
		data.MIMEType = mimeType
	} else {
		data.Src = template.URL(v.Src)
	}

	var sb strings.Builder
	if err := videoTmpl.Execute(&sb, data); err != nil {
		return "", err
	}
	return template.HTML(sb.String()), nil
}

// WriteHTML writes a standalone HTML page holding the video element.
func (v *Video) WriteHTML(w io.Writer, title string) error {
	elem, err := v.HTML()
	if err != nil {
		return err
	}
	return pageTmpl.Execute(w, struct {
		Title string
		Video template.HTML
	}{title, elem})
}

// dataURI base64 encodes a local file. The MIME type is sniffed when not given.
func dataURI(path, mimeType string) (string, string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("unable to embed the video: %w", err)
	}
	if mimeType == "" {
		if mimeType, err = utils.DetectContentType(path); err != nil {
			return "", "", err
		}
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(b), mimeType, nil
}
