package testsupport

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"path/filepath"
	"testing"
)

// WriteMNISTFixture writes a tiny IDX dataset with train and test splits of
// the given sizes. Labels cycle through 0-9 and each image is the DigitPNG
// stroke pattern for its label. When compress is set the files get a .gz
// suffix.
func WriteMNISTFixture(t testing.TB, dir string, trainCount, testCount int, compress bool) {
	t.Helper()

	writeSplit := func(imagesName, labelsName string, count int) {
		var images, labels bytes.Buffer
		writeHeader(t, &images, 0x00000803, uint32(count), 28, 28)
		writeHeader(t, &labels, 0x00000801, uint32(count))
		for i := 0; i < count; i++ {
			digit := i % 10
			images.Write(DigitPixels(digit))
			labels.WriteByte(byte(digit))
		}
		writeIDX(t, filepath.Join(dir, imagesName), images.Bytes(), compress)
		writeIDX(t, filepath.Join(dir, labelsName), labels.Bytes(), compress)
	}
	writeSplit("train-images-idx3-ubyte", "train-labels-idx1-ubyte", trainCount)
	if testCount > 0 {
		writeSplit("t10k-images-idx3-ubyte", "t10k-labels-idx1-ubyte", testCount)
	}
}

// DigitPixels returns the raw 28×28 grayscale bytes of the stroke pattern for
// digit.
func DigitPixels(digit int) []byte {
	const size = 28
	const unit = size / 7
	pix := make([]byte, size*size)
	for _, seg := range digitSegments[digit%10] {
		for y := seg[1] * unit; y <= seg[3]*unit && y < size; y++ {
			for x := seg[0] * unit; x <= seg[2]*unit && x < size; x++ {
				pix[y*size+x] = 255
			}
		}
	}
	return pix
}

func writeHeader(t testing.TB, buf *bytes.Buffer, fields ...uint32) {
	t.Helper()
	if err := binary.Write(buf, binary.BigEndian, fields); err != nil {
		t.Fatalf("write idx header: %v", err)
	}
}

func writeIDX(t testing.TB, path string, data []byte, compress bool) {
	t.Helper()
	if !compress {
		WriteBytes(t, path, data)
		return
	}
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		t.Fatalf("gzip %s: %v", path, err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close %s: %v", path, err)
	}
	WriteBytes(t, path+".gz", buf.Bytes())
}
