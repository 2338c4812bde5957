package testsupport

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// DigitPNG renders a crude white-on-black glyph for digit on a size×size
// canvas. Distinct digits produce distinct stroke patterns, which is enough for
// decode and training tests.
func DigitPNG(t testing.TB, digit, size int) []byte {
	t.Helper()

	if size <= 0 {
		size = 28
	}
	img := image.NewGray(image.Rect(0, 0, size, size))
	segments := digitSegments[digit%10]
	unit := size / 7
	if unit == 0 {
		unit = 1
	}
	for _, seg := range segments {
		x0, y0, x1, y1 := seg[0]*unit, seg[1]*unit, seg[2]*unit, seg[3]*unit
		for y := y0; y <= y1 && y < size; y++ {
			for x := x0; x <= x1 && x < size; x++ {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// WriteDigitPNG writes DigitPNG output to path and returns the path.
func WriteDigitPNG(t testing.TB, path string, digit int) string {
	t.Helper()
	WriteBytes(t, path, DigitPNG(t, digit, 28))
	return path
}

// WriteBytes writes data to path, creating parent directories.
func WriteBytes(t testing.TB, path string, data []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// Seven-segment style strokes on a 7×7 grid: {x0, y0, x1, y1}.
var digitSegments = [10][][4]int{
	{{2, 1, 4, 1}, {2, 5, 4, 5}, {2, 1, 2, 5}, {4, 1, 4, 5}},
	{{4, 1, 4, 5}},
	{{2, 1, 4, 1}, {4, 1, 4, 3}, {2, 3, 4, 3}, {2, 3, 2, 5}, {2, 5, 4, 5}},
	{{2, 1, 4, 1}, {2, 3, 4, 3}, {2, 5, 4, 5}, {4, 1, 4, 5}},
	{{2, 1, 2, 3}, {2, 3, 4, 3}, {4, 1, 4, 5}},
	{{2, 1, 4, 1}, {2, 1, 2, 3}, {2, 3, 4, 3}, {4, 3, 4, 5}, {2, 5, 4, 5}},
	{{2, 1, 4, 1}, {2, 1, 2, 5}, {2, 3, 4, 3}, {4, 3, 4, 5}, {2, 5, 4, 5}},
	{{2, 1, 4, 1}, {4, 1, 4, 5}},
	{{2, 1, 4, 1}, {2, 3, 4, 3}, {2, 5, 4, 5}, {2, 1, 2, 5}, {4, 1, 4, 5}},
	{{2, 1, 4, 1}, {2, 1, 2, 3}, {2, 3, 4, 3}, {4, 1, 4, 5}, {2, 5, 4, 5}},
}
