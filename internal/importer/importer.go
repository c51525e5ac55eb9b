// Package importer ingests bulk measurement exports. The wire format is
// NDJSON, one measurement per line, optionally zstd-compressed; device
// vendors export weeks of history this way. Import is idempotent: a line that
// matches an existing (user, type, measured_at) reading is counted as a
// duplicate and skipped.
package importer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/klauspost/compress/zstd"

	"cardiometrix/internal/types"
)

// maxLineBytes bounds a single NDJSON line. Real payloads are tiny; anything
// near this limit is a corrupt export.
const maxLineBytes = 1 << 20

// maxErrorSamples caps the per-import list of line errors returned to the
// caller. The counts stay exact.
const maxErrorSamples = 20

// zstdMagic is the zstd frame magic number, used to auto-detect compressed
// uploads.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// MeasurementWriter persists imported measurements with dedup semantics.
type MeasurementWriter interface {
	// InsertIfAbsent writes the measurement unless an identical reading
	// exists, returning true when a row was written.
	InsertIfAbsent(ctx context.Context, m types.Measurement) (bool, error)
}

// Stats summarizes one import run.
type Stats struct {
	Lines      int      `json:"lines"`
	Imported   int      `json:"imported"`
	Duplicates int      `json:"duplicates"`
	Invalid    int      `json:"invalid"`
	Errors     []string `json:"errors,omitempty"`
}

// line is the NDJSON wire shape of one measurement.
type line struct {
	Type       string         `json:"type" validate:"required"`
	MeasuredAt time.Time      `json:"measured_at" validate:"required"`
	Payload    map[string]any `json:"payload" validate:"required"`
}

// Importer streams measurement exports into storage.
type Importer struct {
	writer   MeasurementWriter
	validate *validator.Validate
	logger   *slog.Logger
}

// New creates an Importer writing through the given MeasurementWriter.
func New(writer MeasurementWriter, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		writer:   writer,
		validate: validator.New(),
		logger:   logger,
	}
}

// Import reads an NDJSON stream (plain or zstd-compressed, auto-detected)
// and stores each valid line as a measurement for the given user. Invalid
// lines are counted and sampled into Stats.Errors; they never abort the
// import. Storage errors do abort, returning the stats accumulated so far.
func (i *Importer) Import(ctx context.Context, userID string, r io.Reader) (Stats, error) {
	var stats Stats

	br := bufio.NewReader(r)
	head, err := br.Peek(len(zstdMagic))
	if err != nil && err != io.EOF {
		return stats, types.NewAppError(types.ErrCodeValidationInvalidJSON,
			"failed to read import stream", err)
	}

	var src io.Reader = br
	if bytes.Equal(head, zstdMagic) {
		dec, err := zstd.NewReader(br, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return stats, types.NewAppError(types.ErrCodeValidationInvalidJSON,
				"failed to open zstd stream", err)
		}
		defer dec.Close()
		src = dec
	}

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		stats.Lines++

		m, err := i.parseLine(userID, raw)
		if err != nil {
			stats.Invalid++
			if len(stats.Errors) < maxErrorSamples {
				stats.Errors = append(stats.Errors, fmt.Sprintf("line %d: %v", stats.Lines, err))
			}
			continue
		}

		inserted, err := i.writer.InsertIfAbsent(ctx, m)
		if err != nil {
			return stats, err
		}
		if inserted {
			stats.Imported++
		} else {
			stats.Duplicates++
		}
	}
	if err := scanner.Err(); err != nil {
		return stats, types.NewAppError(types.ErrCodeValidationInvalidJSON,
			"import stream truncated or corrupt", err)
	}

	i.logger.Info("measurement import finished",
		slog.String("user_id", userID),
		slog.Int("lines", stats.Lines),
		slog.Int("imported", stats.Imported),
		slog.Int("duplicates", stats.Duplicates),
		slog.Int("invalid", stats.Invalid),
	)
	return stats, nil
}

func (i *Importer) parseLine(userID string, raw []byte) (types.Measurement, error) {
	var l line
	if err := json.Unmarshal(raw, &l); err != nil {
		return types.Measurement{}, fmt.Errorf("malformed json: %w", err)
	}
	if err := i.validate.Struct(l); err != nil {
		return types.Measurement{}, fmt.Errorf("missing required fields: %w", err)
	}
	mt := types.MeasurementType(l.Type)
	if !types.IsValidMeasurementType(mt) {
		return types.Measurement{}, fmt.Errorf("unknown measurement type %q", l.Type)
	}

	return types.Measurement{
		UserID:     userID,
		Type:       mt,
		MeasuredAt: l.MeasuredAt.UTC(),
		Payload:    l.Payload,
	}, nil
}
