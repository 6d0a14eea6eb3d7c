package datasets

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
)

// ErrSnapshotCorrupt is returned when a snapshot fails its checksum or
// cannot be decompressed.
var ErrSnapshotCorrupt = errors.New("datasets: snapshot is corrupt")

// A snapshot file is the BLAKE3-256 digest of the raw catalog followed by
// the zstd-compressed catalog.
const digestSize = 32

var (
	snapshotEncoder *zstd.Encoder
	snapshotDecoder *zstd.Decoder
)

func init() {
	var err error
	snapshotEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("datasets: zstd encoder initialization failed: " + err.Error())
	}
	snapshotDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("datasets: zstd decoder initialization failed: " + err.Error())
	}
}

// WriteSnapshot stores catalog (raw data.json bytes) at path. The file is
// written to a temporary name and renamed into place.
func WriteSnapshot(path string, catalog []byte) error {
	sum := blake3.Sum256(catalog)
	data := snapshotEncoder.EncodeAll(catalog, append([]byte(nil), sum[:]...))

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating snapshot directory: %w", err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming snapshot into place: %w", err)
	}
	return nil
}

// ReadSnapshot returns the raw catalog stored at path.
func ReadSnapshot(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	if len(data) < digestSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrSnapshotCorrupt, len(data))
	}

	catalog, err := snapshotDecoder.DecodeAll(data[digestSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	sum := blake3.Sum256(catalog)
	if !bytes.Equal(sum[:], data[:digestSize]) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrSnapshotCorrupt)
	}
	return catalog, nil
}
