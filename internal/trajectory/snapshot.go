package trajectory

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/banshee-data/footfall/internal/fsutil"
)

// SnapshotHeader is the column layout of a snapshot file.
var SnapshotHeader = []string{"track_id", "x_coordinate", "y_coordinate", "time"}

// Snapshotter persists the full trajectory log.
type Snapshotter interface {
	WriteSnapshot(records []Record) error
}

// SnapshotStore writes the trajectory log as CSV to a fixed path. Each
// write replaces the previous file atomically; readers see either the old
// snapshot or the new one, never a partial file.
type SnapshotStore struct {
	fs   fsutil.FileSystem
	path string
}

// NewSnapshotStore creates a store writing to path through fs.
// A nil fs uses the OS filesystem.
func NewSnapshotStore(fs fsutil.FileSystem, path string) *SnapshotStore {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	return &SnapshotStore{fs: fs, path: path}
}

// Path returns the snapshot location.
func (s *SnapshotStore) Path() string { return s.path }

// WriteSnapshot replaces the snapshot with records.
func (s *SnapshotStore) WriteSnapshot(records []Record) error {
	err := fsutil.WriteFileAtomic(s.fs, s.path, func(w io.Writer) error {
		return EncodeCSV(w, records)
	})
	if err != nil {
		return fmt.Errorf("write snapshot %s: %w", s.path, err)
	}
	return nil
}

// ReadSnapshot loads the snapshot at path.
func ReadSnapshot(fs fsutil.FileSystem, path string) ([]Record, error) {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	return DecodeCSV(f)
}

// EncodeCSV writes records with a header row. Coordinates use the shortest
// representation that parses back to the same float64.
func EncodeCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(SnapshotHeader); err != nil {
		return err
	}
	row := make([]string, len(SnapshotHeader))
	for _, r := range records {
		row[0] = strconv.FormatUint(r.TrackID, 10)
		row[1] = strconv.FormatFloat(r.X, 'g', -1, 64)
		row[2] = strconv.FormatFloat(r.Y, 'g', -1, 64)
		row[3] = r.Time.Format(time.RFC3339Nano)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// DecodeCSV parses a snapshot produced by EncodeCSV.
func DecodeCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(SnapshotHeader)

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("snapshot is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot header: %w", err)
	}
	for i, col := range SnapshotHeader {
		if header[i] != col {
			return nil, fmt.Errorf("snapshot column %d is %q, want %q", i, header[i], col)
		}
	}

	var out []Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read snapshot line %d: %w", line, err)
		}
		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("snapshot line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func parseRow(row []string) (Record, error) {
	id, err := strconv.ParseUint(row[0], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("track_id: %w", err)
	}
	x, err := strconv.ParseFloat(row[1], 64)
	if err != nil {
		return Record{}, fmt.Errorf("x_coordinate: %w", err)
	}
	y, err := strconv.ParseFloat(row[2], 64)
	if err != nil {
		return Record{}, fmt.Errorf("y_coordinate: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, row[3])
	if err != nil {
		return Record{}, fmt.Errorf("time: %w", err)
	}
	return Record{TrackID: id, X: x, Y: y, Time: ts}, nil
}
