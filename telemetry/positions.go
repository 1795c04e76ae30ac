package telemetry

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/klauspost/compress/zstd"

	"github.com/pthm-cable/hive/store"
)

// PositionRecord is one row of the position stream.
type PositionRecord struct {
	Timestep int     `csv:"timestep"`
	Type     string  `csv:"type"`
	ID       int32   `csv:"id"`
	X        float64 `csv:"x"`
	Y        float64 `csv:"y"`
	State    int     `csv:"state"`
	Nectar   float64 `csv:"nectar"`
}

// PositionExporter streams flower and bee positions for replay. Flowers are
// written before bees for each exported step.
type PositionExporter struct {
	every, until int

	file *os.File
	zw   *zstd.Encoder
	bw   *bufio.Writer

	rows          []PositionRecord
	headerWritten bool
}

// NewPositionExporter creates path and exports every `every` steps for
// steps strictly between 0 and until. A path ending in .zst is compressed.
func NewPositionExporter(path string, every, until int) (*PositionExporter, error) {
	if every <= 0 {
		return nil, fmt.Errorf("position export interval must be positive, got %d", every)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	e := &PositionExporter{every: every, until: until, file: f}

	var w io.Writer = f
	if strings.HasSuffix(path, ".zst") {
		e.zw, err = zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("creating zstd writer: %w", err)
		}
		w = e.zw
	}
	e.bw = bufio.NewWriterSize(w, 1<<16)
	return e, nil
}

// Due reports whether step t is exported.
func (e *PositionExporter) Due(t int) bool {
	return e != nil && t > 0 && t < e.until && t%e.every == 0
}

// Export writes step t from st if it is due.
func (e *PositionExporter) Export(t int, st *store.Store) error {
	if !e.Due(t) {
		return nil
	}

	e.rows = e.rows[:0]
	st.EachFlower(func(f store.FlowerView) {
		e.rows = append(e.rows, PositionRecord{
			Timestep: t, Type: "flower", ID: f.ID,
			X: round2(f.Pos.X), Y: round2(f.Pos.Y), Nectar: round2(f.Nectar),
		})
	})
	st.EachBee(func(b store.BeeView) {
		e.rows = append(e.rows, PositionRecord{
			Timestep: t, Type: "bee", ID: b.ID,
			X: round2(b.Pos.X), Y: round2(b.Pos.Y), State: int(b.State),
		})
	})

	if !e.headerWritten {
		if err := gocsv.Marshal(e.rows, e.bw); err != nil {
			return fmt.Errorf("writing positions: %w", err)
		}
		e.headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(e.rows, e.bw); err != nil {
		return fmt.Errorf("writing positions: %w", err)
	}
	return nil
}

// Close flushes buffered rows and closes the file.
func (e *PositionExporter) Close() error {
	if e == nil {
		return nil
	}
	err := e.bw.Flush()
	if e.zw != nil {
		if zerr := e.zw.Close(); err == nil {
			err = zerr
		}
	}
	if ferr := e.file.Close(); err == nil {
		err = ferr
	}
	return err
}

// ReadPositions decodes a position stream written by PositionExporter.
func ReadPositions(path string) ([]PositionRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".zst") {
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("opening zstd stream: %w", err)
		}
		defer zr.Close()
		r = zr
	}

	var rows []PositionRecord
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("reading positions: %w", err)
	}
	return rows, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
