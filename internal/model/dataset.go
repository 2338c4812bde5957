package model

import (
	"compress/gzip"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"digitflow/internal/fileutil"
)

const (
	idxImagesMagic = 0x00000803
	idxLabelsMagic = 0x00000801

	trainImagesFile = "train-images-idx3-ubyte"
	trainLabelsFile = "train-labels-idx1-ubyte"
	testImagesFile  = "t10k-images-idx3-ubyte"
	testLabelsFile  = "t10k-labels-idx1-ubyte"

	// maxIDXCount bounds the item count an IDX header may declare. MNIST
	// itself has 60000 training items.
	maxIDXCount = 1 << 20
)

// DatasetFiles lists the IDX files (without .gz) the reference dataset uses.
var DatasetFiles = []string{trainImagesFile, trainLabelsFile, testImagesFile, testLabelsFile}

// ErrDatasetMissing reports that the reference training files are absent.
var ErrDatasetMissing = errors.New("reference dataset not found")

// Dataset is the canonical MNIST reference set. Test may be empty when the
// t10k files are absent.
type Dataset struct {
	Train []Sample
	Test  []Sample
}

// LoadDataset reads MNIST IDX files from dir. Each file may be stored plain or
// gzip-compressed with a .gz suffix.
func LoadDataset(dir string) (*Dataset, error) {
	train, err := loadSplit(dir, trainImagesFile, trainLabelsFile)
	if err != nil {
		return nil, err
	}
	ds := &Dataset{Train: train}
	test, err := loadSplit(dir, testImagesFile, testLabelsFile)
	switch {
	case err == nil:
		ds.Test = test
	case errors.Is(err, ErrDatasetMissing):
	default:
		return nil, err
	}
	return ds, nil
}

// DatasetPresent reports whether the training split exists in dir.
func DatasetPresent(dir string) bool {
	for _, name := range []string{trainImagesFile, trainLabelsFile} {
		if _, err := locateIDX(dir, name); err != nil {
			return false
		}
	}
	return true
}

func loadSplit(dir, imagesName, labelsName string) ([]Sample, error) {
	imagesPath, err := locateIDX(dir, imagesName)
	if err != nil {
		return nil, err
	}
	labelsPath, err := locateIDX(dir, labelsName)
	if err != nil {
		return nil, err
	}
	images, err := readIDXFile(imagesPath, readIDXImages)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", imagesPath, err)
	}
	labels, err := readIDXFile(labelsPath, readIDXLabels)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", labelsPath, err)
	}
	if len(images) != len(labels) {
		return nil, fmt.Errorf("%s has %d images but %s has %d labels", imagesName, len(images), labelsName, len(labels))
	}
	samples := make([]Sample, len(images))
	for i := range images {
		samples[i] = Sample{Pixels: images[i], Label: int(labels[i])}
	}
	return samples, nil
}

func locateIDX(dir, name string) (string, error) {
	for _, candidate := range []string{name, name + ".gz"} {
		path := filepath.Join(dir, candidate)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s missing in %s", ErrDatasetMissing, name, dir)
}

func readIDXFile[T any](path string, parse func(io.Reader) (T, error)) (T, error) {
	var zero T
	file, err := os.Open(path)
	if err != nil {
		return zero, err
	}
	defer file.Close()

	var r io.Reader = file
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return zero, fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close()
		r = gz
	}
	return parse(r)
}

func readIDXImages(r io.Reader) ([][]float32, error) {
	var header struct {
		Magic uint32
		Count uint32
		Rows  uint32
		Cols  uint32
	}
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if header.Magic != idxImagesMagic {
		return nil, fmt.Errorf("bad image magic %#x", header.Magic)
	}
	if header.Rows != InputSize || header.Cols != InputSize {
		return nil, fmt.Errorf("images are %dx%d, want %dx%d", header.Rows, header.Cols, InputSize, InputSize)
	}
	if err := checkIDXCount(header.Count); err != nil {
		return nil, err
	}
	count := int(header.Count)
	raw := make([]byte, InputLen)
	images := make([][]float32, 0, min(count, 4096))
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, fmt.Errorf("read image %d of %d: %w", i, count, err)
		}
		px := make([]float32, InputLen)
		for j, b := range raw {
			px[j] = float32(b) / 255
		}
		images = append(images, px)
	}
	return images, nil
}

func readIDXLabels(r io.Reader) ([]uint8, error) {
	var header struct {
		Magic uint32
		Count uint32
	}
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if header.Magic != idxLabelsMagic {
		return nil, fmt.Errorf("bad label magic %#x", header.Magic)
	}
	if err := checkIDXCount(header.Count); err != nil {
		return nil, err
	}
	labels, err := io.ReadAll(io.LimitReader(r, int64(header.Count)))
	if err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	if len(labels) != int(header.Count) {
		return nil, fmt.Errorf("read labels: %w: got %d of %d", io.ErrUnexpectedEOF, len(labels), header.Count)
	}
	for i, l := range labels {
		if int(l) >= NumClasses {
			return nil, fmt.Errorf("label %d at index %d out of range", l, i)
		}
	}
	return labels, nil
}

func checkIDXCount(count uint32) error {
	if count > maxIDXCount {
		return fmt.Errorf("header declares %d items, limit is %d", count, maxIDXCount)
	}
	return nil
}

// DownloadDataset fetches the gzip IDX files from baseURL into dir, skipping
// files already present. Each file is written atomically.
func DownloadDataset(ctx context.Context, client *http.Client, baseURL, dir string) ([]string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure dataset dir: %w", err)
	}
	baseURL = strings.TrimRight(baseURL, "/")
	var fetched []string
	for _, name := range DatasetFiles {
		if _, err := locateIDX(dir, name); err == nil {
			continue
		}
		target := filepath.Join(dir, name+".gz")
		if err := downloadFile(ctx, client, baseURL+"/"+name+".gz", target); err != nil {
			return fetched, err
		}
		fetched = append(fetched, target)
	}
	return fetched, nil
}

func downloadFile(ctx context.Context, client *http.Client, url, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: unexpected status %s", url, resp.Status)
	}
	if err := fileutil.WriteAtomic(target, 0o644, func(w io.Writer) error {
		_, err := io.Copy(w, resp.Body)
		return err
	}); err != nil {
		return fmt.Errorf("save %s: %w", target, err)
	}
	return nil
}
