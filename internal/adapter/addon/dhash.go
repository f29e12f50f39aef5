package addon

import (
	"bytes"
	"fmt"
	"image"
	"math/bits"

	// Register the decoders the avatar pipeline accepts.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

const (
	dhashCols = 9
	dhashRows = 8
)

// DHash computes the 64-bit difference hash of an encoded image: the
// image is reduced to a 9x8 grayscale grid and each bit records whether
// a cell is brighter than its right neighbor. Near-duplicate images
// produce hashes within a small Hamming distance of each other.
func DHash(encoded []byte) (uint64, error) {
	img, _, err := image.Decode(bytes.NewReader(encoded))
	if err != nil {
		return 0, fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return 0, fmt.Errorf("empty image")
	}

	// Box-sample down to the 9x8 luma grid.
	var grid [dhashRows][dhashCols]float64
	for row := 0; row < dhashRows; row++ {
		for col := 0; col < dhashCols; col++ {
			x0 := b.Min.X + col*b.Dx()/dhashCols
			x1 := b.Min.X + (col+1)*b.Dx()/dhashCols
			y0 := b.Min.Y + row*b.Dy()/dhashRows
			y1 := b.Min.Y + (row+1)*b.Dy()/dhashRows
			if x1 <= x0 {
				x1 = x0 + 1
			}
			if y1 <= y0 {
				y1 = y0 + 1
			}
			var sum float64
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					r, g, bl, _ := img.At(x, y).RGBA()
					sum += 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)
				}
			}
			grid[row][col] = sum / float64((x1-x0)*(y1-y0))
		}
	}

	var h uint64
	for row := 0; row < dhashRows; row++ {
		for col := 0; col < dhashCols-1; col++ {
			h <<= 1
			if grid[row][col] > grid[row][col+1] {
				h |= 1
			}
		}
	}
	return h, nil
}

// HammingDistance counts differing bits between two hashes.
func HammingDistance(a, b uint64) int { return bits.OnesCount64(a ^ b) }
