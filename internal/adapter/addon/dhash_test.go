package addon_test

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/social-hunt/internal/adapter/addon"
)

// gradientPNG renders a horizontal gradient with an optional brightness
// offset; small offsets keep the hash stable, reshuffling does not.
func gradientPNG(t *testing.T, w, h int, offset uint8, flip bool) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(x * 255 / w)
			if flip {
				v = 255 - v
			}
			v += offset
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestDHashDeterministic(t *testing.T) {
	t.Parallel()
	img := gradientPNG(t, 64, 64, 0, false)
	h1, err := addon.DHash(img)
	require.NoError(t, err)
	h2, err := addon.DHash(img)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestDHashNearDuplicatesClose(t *testing.T) {
	t.Parallel()
	a, err := addon.DHash(gradientPNG(t, 64, 64, 0, false))
	require.NoError(t, err)
	// brighter copy of the same gradient keeps the same differences
	b, err := addon.DHash(gradientPNG(t, 64, 64, 10, false))
	require.NoError(t, err)
	require.LessOrEqual(t, addon.HammingDistance(a, b), 10)
}

func TestDHashDistinctImagesFar(t *testing.T) {
	t.Parallel()
	a, err := addon.DHash(gradientPNG(t, 64, 64, 0, false))
	require.NoError(t, err)
	b, err := addon.DHash(gradientPNG(t, 64, 64, 0, true))
	require.NoError(t, err)
	require.Greater(t, addon.HammingDistance(a, b), 10)
}

func TestDHashScaleInvariant(t *testing.T) {
	t.Parallel()
	a, err := addon.DHash(gradientPNG(t, 64, 64, 0, false))
	require.NoError(t, err)
	b, err := addon.DHash(gradientPNG(t, 256, 128, 0, false))
	require.NoError(t, err)
	require.LessOrEqual(t, addon.HammingDistance(a, b), 10)
}

func TestDHashRejectsGarbage(t *testing.T) {
	t.Parallel()
	_, err := addon.DHash([]byte("definitely not an image"))
	require.Error(t, err)
}

func TestHammingDistance(t *testing.T) {
	t.Parallel()
	require.Equal(t, 0, addon.HammingDistance(0xff, 0xff))
	require.Equal(t, 8, addon.HammingDistance(0xff, 0x00))
	require.Equal(t, 64, addon.HammingDistance(0, ^uint64(0)))
}
