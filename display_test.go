package vidscope

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisplay_Size(t *testing.T) {
	w, h, err := DisplaySize(DefaultFraction)
	require.NoError(t, err)
	assert.Equal(t, 832, w)
	assert.Equal(t, 468, h)

	w, h, err = DisplaySize(1.5)
	require.NoError(t, err)
	assert.Equal(t, 1920, w)
	assert.Equal(t, 1080, h)

	_, _, err = DisplaySize(0)
	assert.Error(t, err)
	_, _, err = DisplaySize(-0.5)
	assert.Error(t, err)

	_, err = NewVideo("clip.mp4", 0)
	assert.Error(t, err)
}

func TestDisplay_RemoteVideo(t *testing.T) {
	v, err := NewVideo("https://example.com/clip.mp4", DefaultFraction)
	require.NoError(t, err)

	html, err := v.HTML()
	require.NoError(t, err)
	assert.Contains(t, string(html), `src="https://example.com/clip.mp4"`)
	assert.Contains(t, string(html), `width="832"`)
	assert.Contains(t, string(html), `height="468"`)
	assert.Contains(t, string(html), "controls")
	assert.NotContains(t, string(html), "autoplay")
	assert.NotContains(t, string(html), "<source")

	v.Embed = true
	_, err = v.HTML()
	assert.ErrorIs(t, err, ErrEmbedRemote)
}

func TestDisplay_EmbeddedVideo(t *testing.T) {
	path := writeFile(t, "clip.mp4", sampleVideo())

	v, err := NewVideo(path, DefaultFraction)
	require.NoError(t, err)
	v.Embed = true
	v.Autoplay, v.Loop, v.Muted = true, true, true

	html, err := v.HTML()
	require.NoError(t, err)
	assert.Contains(t, string(html), `<source src="data:video/mp4;base64,`)
	assert.Contains(t, string(html), `type="video/mp4"`)
	assert.Contains(t, string(html), "autoplay")
	assert.Contains(t, string(html), "loop")
	assert.Contains(t, string(html), "muted")
	assert.NotContains(t, string(html), path)
}

func TestDisplay_WritePage(t *testing.T) {
	v, err := NewVideo("clip.mp4", DefaultFraction)
	require.NoError(t, err)

	var sb strings.Builder
	require.NoError(t, v.WriteHTML(&sb, "Clip <1>"))
	page := sb.String()

	assert.True(t, strings.HasPrefix(page, "<!DOCTYPE html>"))
	assert.Contains(t, page, "<title>Clip &lt;1&gt;</title>")
	assert.Contains(t, page, `<video src="clip.mp4" controls`)
}
