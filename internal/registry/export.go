package registry

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"

	syncerrors "github.com/lexhaven/vecsync/internal/errors"
)

// exportEnvelope is the on-disk export format.
type exportEnvelope struct {
	ExportedAt time.Time        `json:"exported_at"`
	Count      int              `json:"count"`
	Records    []RegistryRecord `json:"records"`
}

// Export writes every record as zstd-compressed JSON. The export is a
// snapshot for backup and inspection; it does not include pass history.
func Export(ctx context.Context, reg Registry, w io.Writer) error {
	records, err := reg.List(ctx)
	if err != nil {
		return err
	}

	zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return syncerrors.InternalError("failed to create export compressor", err)
	}

	envelope := exportEnvelope{
		ExportedAt: time.Now().UTC(),
		Count:      len(records),
		Records:    records,
	}
	if err := json.NewEncoder(zw).Encode(envelope); err != nil {
		_ = zw.Close()
		return syncerrors.New(syncerrors.ErrCodeRegistryIO,
			"failed to write registry export", err)
	}
	if err := zw.Close(); err != nil {
		return syncerrors.New(syncerrors.ErrCodeRegistryIO,
			"failed to finish registry export", err)
	}
	return nil
}

// ReadExport decodes an export stream back into records. Used by tests
// and ad hoc inspection tooling.
func ReadExport(r io.Reader) ([]RegistryRecord, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, syncerrors.New(syncerrors.ErrCodeRegistryIO,
			"failed to open registry export", err)
	}
	defer zr.Close()

	var envelope exportEnvelope
	if err := json.NewDecoder(zr).Decode(&envelope); err != nil {
		return nil, syncerrors.New(syncerrors.ErrCodeRegistryCorrupt,
			"registry export is malformed", err)
	}
	return envelope.Records, nil
}
