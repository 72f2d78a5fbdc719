package utils

import (
	"bytes"
	"image/color"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUtils_FormatTime(t *testing.T) {
	assert.Equal(t, "1.50s", FormatTime(1500*time.Millisecond))
	assert.Equal(t, "2m 5.00s", FormatTime(2*time.Minute+5*time.Second))
	assert.Equal(t, "1h 1m 1.00s", FormatTime(time.Hour+time.Minute+time.Second))
}

func TestUtils_FormatBytes(t *testing.T) {
	assert.Equal(t, "512B", FormatBytes(512))
	assert.Equal(t, "1.5KiB", FormatBytes(1536))
	assert.Equal(t, "2.0MiB", FormatBytes(2<<20))
}

func TestUtils_HexToRGBA(t *testing.T) {
	assert.Equal(t, color.RGBA{R: 0xff, G: 0x00, B: 0x00, A: 0xff}, HexToRGBA("#ff0000"))
	assert.Equal(t, color.RGBA{R: 0x11, G: 0x22, B: 0x33, A: 0xff}, HexToRGBA("123"))
	assert.Equal(t, color.RGBA{R: 0x0f, G: 0x8b, B: 0x8d, A: 0x80}, HexToRGBA("#0f8b8d80"))
	assert.Equal(t, color.RGBA{A: 0xff}, HexToRGBA("not a color"))
}

func TestUtils_ParseHexColor(t *testing.T) {
	c, err := ParseHexColor("0F8B8D")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 0x0f, G: 0x8b, B: 0x8d, A: 0xff}, c)

	for _, hex := range []string{"", "#12", "#12345g", "#ff00ff0", "red"} {
		_, err := ParseHexColor(hex)
		assert.Error(t, err, hex)
	}
}

func TestUtils_MinMax(t *testing.T) {
	assert.Equal(t, 2, Min(2, 5))
	assert.Equal(t, 2, Min(5, 2))
	assert.Equal(t, 5, Max(2, 5))
	assert.Equal(t, 10, Clamp(42, 0, 10))
	assert.Equal(t, 0, Clamp(-1, 0, 10))
}

func TestUtils_DecorateText(t *testing.T) {
	s := DecorateText("done", SuccessMessage)
	assert.True(t, strings.HasPrefix(s, SuccessColor))
	assert.True(t, strings.HasSuffix(s, DefaultColor))
}

func TestSpinner_ShouldPrintStopMessage(t *testing.T) {
	var buf bytes.Buffer
	s := NewSpinner("working", time.Millisecond, false)
	s.SetWriter(&buf)
	s.StopMsg = "finished"

	s.Start()
	s.SetMessage("frame 1/2")
	time.Sleep(5 * time.Millisecond)
	s.Stop()
	s.Stop()

	assert.Equal(t, "frame 1/2", s.Message())
	assert.True(t, strings.HasSuffix(buf.String(), "finished"))
}
