// Package recordlog persists the record stream (spec §6 "Record stream
// (output)"): one JSON line per node per step, plus a periodic full-fleet
// snapshot, so a run can be replayed or inspected offline.
//
// Grounded directly on the teacher's internal/replay/writer.go dual-stream
// layout: a line-oriented, snappy-compressed append log for high-frequency
// events (here: per-step NodeRecords) and a zstd-compressed binary stream
// for coarser periodic snapshots (here: full-fleet position snapshots),
// rather than inventing a single format for both cadences.
package recordlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"simkernel/internal/strategy"
)

// Manifest describes the record-log bundle layout for downstream tooling.
type Manifest struct {
	Version        int    `json:"version"`
	CreatedAt      string `json:"created_at"`
	RecordsPath    string `json:"records_path"`
	SnapshotsPath  string `json:"snapshots_path"`
	SnapshotPeriod float64 `json:"snapshot_period_seconds"`
}

// Writer streams NodeRecords and periodic fleet snapshots to disk.
type Writer struct {
	mu             sync.Mutex
	dir            string
	recordFile     *os.File
	recordStream   *snappy.Writer
	recordEncoder  *json.Encoder
	snapshotFile   *os.File
	snapshotStream *zstd.Encoder
	snapshotPeriod float32
	lastSnapshot   float32
	haveSnapshot   bool
}

// NewWriter prepares the output directory and opens both compressed sinks.
// snapshotPeriod is the minimum logical-time gap between fleet snapshots;
// zero disables periodic snapshots (records are still written every step).
func NewWriter(root string, snapshotPeriod float32) (*Writer, Manifest, error) {
	if root == "" {
		return nil, Manifest{}, fmt.Errorf("record log root must be provided")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, Manifest{}, err
	}

	recordsPath := filepath.Join(root, "records.jsonl.sz")
	snapshotsPath := filepath.Join(root, "snapshots.jsonl.zst")
	manifestPath := filepath.Join(root, "manifest.json")

	recordFile, err := os.Create(recordsPath)
	if err != nil {
		return nil, Manifest{}, err
	}
	recordStream := snappy.NewBufferedWriter(recordFile)

	snapshotFile, err := os.Create(snapshotsPath)
	if err != nil {
		recordStream.Close()
		recordFile.Close()
		return nil, Manifest{}, err
	}
	snapshotStream, err := zstd.NewWriter(snapshotFile)
	if err != nil {
		recordStream.Close()
		recordFile.Close()
		snapshotFile.Close()
		return nil, Manifest{}, err
	}

	manifest := Manifest{
		Version:        1,
		CreatedAt:      time.Now().UTC().Format(time.RFC3339Nano),
		RecordsPath:    "records.jsonl.sz",
		SnapshotsPath:  "snapshots.jsonl.zst",
		SnapshotPeriod: float64(snapshotPeriod),
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		snapshotStream.Close()
		snapshotFile.Close()
		recordStream.Close()
		recordFile.Close()
		return nil, Manifest{}, err
	}
	if err := os.WriteFile(manifestPath, data, 0o644); err != nil {
		snapshotStream.Close()
		snapshotFile.Close()
		recordStream.Close()
		recordFile.Close()
		return nil, Manifest{}, err
	}

	w := &Writer{
		dir:            root,
		recordFile:     recordFile,
		recordStream:   recordStream,
		recordEncoder:  json.NewEncoder(recordStream),
		snapshotFile:   snapshotFile,
		snapshotStream: snapshotStream,
		snapshotPeriod: snapshotPeriod,
	}
	return w, manifest, nil
}

// wireRecord is the JSON-on-disk shape for a strategy.NodeRecord.
type wireRecord struct {
	Name            string                      `json:"name"`
	Kind            string                      `json:"kind"`
	Timestamp       float32                     `json:"timestamp"`
	Position        strategy.Position           `json:"position"`
	Estimator       *strategy.Record            `json:"estimator,omitempty"`
	BenchEstimators map[string]strategy.Record  `json:"bench_estimators,omitempty"`
	Navigator       *strategy.Record            `json:"navigator,omitempty"`
	Controller      *strategy.Record            `json:"controller,omitempty"`
	Physics         *strategy.Record            `json:"physics,omitempty"`
}

func toWire(rec strategy.NodeRecord) wireRecord {
	return wireRecord{
		Name:            rec.Name,
		Kind:            rec.Kind,
		Timestamp:       rec.Timestamp,
		Position:        rec.Position,
		Estimator:       rec.Estimator,
		BenchEstimators: rec.BenchEstimators,
		Navigator:       rec.Navigator,
		Controller:      rec.Controller,
		Physics:         rec.Physics,
	}
}

// WriteRecord appends one node's per-step record to the high-frequency
// stream.
func (w *Writer) WriteRecord(rec strategy.NodeRecord) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.recordEncoder.Encode(toWire(rec))
}

// WriteSnapshot appends a full-fleet snapshot if snapshotPeriod has elapsed
// since the last one (or this is the first snapshot). Returns false without
// writing if the period has not yet elapsed.
func (w *Writer) WriteSnapshot(now float32, records []strategy.NodeRecord) (bool, error) {
	if w == nil {
		return false, nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.haveSnapshot && now-w.lastSnapshot < w.snapshotPeriod {
		return false, nil
	}
	wire := make([]wireRecord, len(records))
	for i, rec := range records {
		wire[i] = toWire(rec)
	}
	buf := bufio.NewWriter(w.snapshotStream)
	if err := json.NewEncoder(buf).Encode(wire); err != nil {
		return false, err
	}
	if err := buf.Flush(); err != nil {
		return false, err
	}
	w.lastSnapshot = now
	w.haveSnapshot = true
	return true, nil
}

// Close flushes and closes every sink.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	record(w.recordStream.Close())
	record(w.recordFile.Close())
	record(w.snapshotStream.Close())
	record(w.snapshotFile.Close())
	return firstErr
}

// Directory exposes the directory backing the record-log bundle.
func (w *Writer) Directory() string {
	if w == nil {
		return ""
	}
	return w.dir
}
