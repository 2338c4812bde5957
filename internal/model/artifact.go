package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gofrs/flock"

	"digitflow/internal/fileutil"
	"digitflow/internal/logging"
	"digitflow/internal/services"
)

const (
	artifactFormatVersion = 1
	lockRetryDelay        = 100 * time.Millisecond
	maxTensorElements     = 1 << 20
)

var (
	// ErrArtifactMissing reports that no artifact exists at the store path.
	ErrArtifactMissing = errors.New("model artifact not found")
	// ErrArtifactWrite marks failures to persist an artifact.
	ErrArtifactWrite = services.ErrArtifactWrite
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor encode mode: %v", err))
	}
	decMode, err = cbor.DecOptions{MaxArrayElements: maxTensorElements}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("cbor decode mode: %v", err))
	}
}

// Metadata describes how an artifact was produced.
type Metadata struct {
	CreatedAt   time.Time `cbor:"created_at"`
	Samples     int       `cbor:"samples"`
	Corrections int       `cbor:"corrections"`
	Bootstrap   bool      `cbor:"bootstrap"`
}

type artifactFile struct {
	FormatVersion int      `cbor:"format_version"`
	Architecture  string   `cbor:"architecture"`
	Metadata      Metadata `cbor:"metadata"`
	Params        *Params  `cbor:"params"`
}

// Artifact is a decoded model file.
type Artifact struct {
	Network  *Network
	Version  string
	Metadata Metadata
	Path     string
}

// ArtifactInfo is a cheap, decode-free summary of the artifact file.
type ArtifactInfo struct {
	Path    string
	Exists  bool
	Size    int64
	ModTime time.Time
	Version string
}

// BootstrapFunc trains a baseline network when no usable artifact exists.
type BootstrapFunc func(ctx context.Context) (*Network, Metadata, error)

// ArtifactStore reads and atomically replaces the model artifact at Path.
type ArtifactStore struct {
	Path      string
	Bootstrap BootstrapFunc
	Logger    *slog.Logger
}

// NewArtifactStore wires a store with an optional bootstrap trainer.
func NewArtifactStore(path string, bootstrap BootstrapFunc, logger *slog.Logger) *ArtifactStore {
	return &ArtifactStore{Path: path, Bootstrap: bootstrap, Logger: logger}
}

func (s *ArtifactStore) log() *slog.Logger {
	return logging.NewComponentLogger(s.Logger, "artifact")
}

func (s *ArtifactStore) lockPath() string {
	return s.Path + ".lock"
}

// Read decodes the current artifact without bootstrapping. A missing file
// returns ErrArtifactMissing.
func (s *ArtifactStore) Read() (*Artifact, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrArtifactMissing, s.Path)
		}
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return decodeArtifact(s.Path, data)
}

// Load returns the current artifact. When the file is missing or cannot be
// decoded, Load trains a baseline with Bootstrap, saves it, and returns it.
// Concurrent bootstraps across processes are serialized by the artifact lock.
func (s *ArtifactStore) Load(ctx context.Context) (*Artifact, error) {
	art, err := s.Read()
	if err == nil {
		return art, nil
	}
	if s.Bootstrap == nil {
		return nil, err
	}
	if errors.Is(err, ErrArtifactMissing) {
		s.log().Info("model artifact absent; bootstrapping baseline",
			logging.String("path", s.Path),
			logging.String(logging.FieldEventType, "artifact_bootstrap_started"),
		)
	} else {
		logging.WarnWithContext(s.log(), "model artifact unreadable; bootstrapping baseline", "artifact_corrupt",
			logging.String("path", s.Path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the artifact will be replaced by a freshly trained baseline"),
			logging.String(logging.FieldImpact, "predictions use the bootstrap model until the next retrain"),
		)
	}

	lock, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Unlock() }()

	// Another process may have finished bootstrapping while we waited.
	if art, err := s.Read(); err == nil {
		return art, nil
	}

	started := time.Now()
	net, meta, err := s.Bootstrap(ctx)
	if err != nil {
		return nil, fmt.Errorf("bootstrap model: %w", err)
	}
	meta.Bootstrap = true
	if _, err := s.write(net, meta); err != nil {
		return nil, err
	}
	s.log().Info("bootstrap model saved",
		logging.String("path", s.Path),
		logging.Duration("duration", time.Since(started)),
		logging.String(logging.FieldEventType, "artifact_bootstrap_completed"),
	)
	return s.Read()
}

// Save durably replaces the artifact with net and returns the new version.
// Readers observe either the previous file or the new one, never a partial
// write. Failures wrap ErrArtifactWrite and leave the previous file intact.
func (s *ArtifactStore) Save(ctx context.Context, net *Network, meta Metadata) (string, error) {
	lock, err := s.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = lock.Unlock() }()
	return s.write(net, meta)
}

// Info stats the artifact file and reports its checksum version.
func (s *ArtifactStore) Info() (ArtifactInfo, error) {
	info := ArtifactInfo{Path: s.Path}
	stat, err := os.Stat(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return info, nil
		}
		return info, fmt.Errorf("stat artifact: %w", err)
	}
	info.Exists = true
	info.Size = stat.Size()
	info.ModTime = stat.ModTime()
	sum, err := fileutil.Checksum(s.Path)
	if err != nil {
		return info, fmt.Errorf("checksum artifact: %w", err)
	}
	info.Version = shortVersion(sum)
	return info, nil
}

func (s *ArtifactStore) acquire(ctx context.Context) (*flock.Flock, error) {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return nil, services.Wrap(ErrArtifactWrite, "", "lock", "ensure artifact directory", err)
	}
	lock := flock.New(s.lockPath())
	ok, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, services.Wrap(ErrArtifactWrite, "", "lock", s.lockPath(), err)
	}
	if !ok {
		return nil, services.Wrap(ErrArtifactWrite, "", "lock", "artifact lock not acquired", nil)
	}
	return lock, nil
}

func (s *ArtifactStore) write(net *Network, meta Metadata) (string, error) {
	if net == nil {
		return "", services.Wrap(ErrArtifactWrite, "", "save", "network is nil", nil)
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	payload, err := encMode.Marshal(artifactFile{
		FormatVersion: artifactFormatVersion,
		Architecture:  Architecture,
		Metadata:      meta,
		Params:        net.params,
	})
	if err != nil {
		return "", services.Wrap(ErrArtifactWrite, "", "save", "encode artifact", err)
	}
	if err := fileutil.WriteFileAtomic(s.Path, payload, 0o644); err != nil {
		return "", services.Wrap(ErrArtifactWrite, "", "save", s.Path, err)
	}
	version := versionOf(payload)
	s.log().Info("model artifact saved",
		logging.String("path", s.Path),
		logging.String(logging.FieldModelVersion, version),
		logging.Int("bytes", len(payload)),
		logging.String(logging.FieldEventType, "artifact_saved"),
	)
	return version, nil
}

func decodeArtifact(path string, data []byte) (*Artifact, error) {
	var file artifactFile
	if err := decMode.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", path, err)
	}
	if file.FormatVersion != artifactFormatVersion {
		return nil, fmt.Errorf("artifact %s has format version %d, want %d", path, file.FormatVersion, artifactFormatVersion)
	}
	if file.Architecture != Architecture {
		return nil, fmt.Errorf("artifact %s has architecture %q, want %q", path, file.Architecture, Architecture)
	}
	net, err := NewNetworkFromParams(file.Params)
	if err != nil {
		return nil, fmt.Errorf("artifact %s: %w", path, err)
	}
	return &Artifact{
		Network:  net,
		Version:  versionOf(data),
		Metadata: file.Metadata,
		Path:     path,
	}, nil
}

func versionOf(data []byte) string {
	sum := sha256.Sum256(data)
	return shortVersion(hex.EncodeToString(sum[:]))
}

func shortVersion(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}
