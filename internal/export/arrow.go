// Package export writes trace and spike history as Arrow IPC files for
// offline analysis in any Arrow-aware tool.
package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/nvandessel/neurosim/internal/spikes"
	"github.com/nvandessel/neurosim/internal/trace"
)

// File names written by WriteDir.
const (
	TracesFile = "traces.arrow"
	SpikesFile = "spikes.arrow"
)

// ErrLabelCount is returned when the label list does not match the data.
var ErrLabelCount = errors.New("label count does not match neuron count")

// TraceSchema is one row per potential sample.
var TraceSchema = arrow.NewSchema([]arrow.Field{
	{Name: "neuron", Type: arrow.PrimitiveTypes.Int32},
	{Name: "label", Type: arrow.BinaryTypes.String},
	{Name: "t", Type: arrow.PrimitiveTypes.Float64},
	{Name: "v", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// SpikeSchema is one row per spike event.
var SpikeSchema = arrow.NewSchema([]arrow.Field{
	{Name: "neuron", Type: arrow.PrimitiveTypes.Int32},
	{Name: "label", Type: arrow.BinaryTypes.String},
	{Name: "session", Type: arrow.PrimitiveTypes.Float64},
	{Name: "phase", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// TraceRow is one decoded potential sample.
type TraceRow struct {
	Neuron    int
	Label     string
	Time      float64
	Potential float64
}

// SpikeRow is one decoded spike event.
type SpikeRow struct {
	Neuron  int
	Label   string
	Session float64
	Phase   float64
}

// WriteTraces writes every neuron's samples as a single record batch. The
// Arrow file format seeks back to patch its footer, so w must be seekable.
// traces and labels are indexed by neuron.
func WriteTraces(w io.WriteSeeker, labels []string, traces [][]trace.Sample) error {
	if len(labels) != len(traces) {
		return fmt.Errorf("writing traces: %w (%d labels, %d neurons)", ErrLabelCount, len(labels), len(traces))
	}
	return writeRecord(w, TraceSchema, func(b *array.RecordBuilder) {
		neuron := b.Field(0).(*array.Int32Builder)
		label := b.Field(1).(*array.StringBuilder)
		ts := b.Field(2).(*array.Float64Builder)
		vs := b.Field(3).(*array.Float64Builder)
		for i, samples := range traces {
			for _, s := range samples {
				neuron.Append(int32(i))
				label.Append(labels[i])
				ts.Append(s.Time)
				vs.Append(s.Potential)
			}
		}
	})
}

// WriteSpikes writes every neuron's spike events as a single record batch.
func WriteSpikes(w io.WriteSeeker, labels []string, events [][]spikes.Event) error {
	if len(labels) != len(events) {
		return fmt.Errorf("writing spikes: %w (%d labels, %d neurons)", ErrLabelCount, len(labels), len(events))
	}
	return writeRecord(w, SpikeSchema, func(b *array.RecordBuilder) {
		neuron := b.Field(0).(*array.Int32Builder)
		label := b.Field(1).(*array.StringBuilder)
		session := b.Field(2).(*array.Float64Builder)
		phase := b.Field(3).(*array.Float64Builder)
		for i, evs := range events {
			for _, ev := range evs {
				neuron.Append(int32(i))
				label.Append(labels[i])
				session.Append(ev.Time)
				phase.Append(ev.PhaseTime)
			}
		}
	})
}

func writeRecord(w io.WriteSeeker, schema *arrow.Schema, fill func(*array.RecordBuilder)) error {
	mem := memory.NewGoAllocator()

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	fill(b)

	rec := b.NewRecord()
	defer rec.Release()

	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(schema), ipc.WithAllocator(mem))
	if err != nil {
		return fmt.Errorf("creating arrow writer: %w", err)
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		return fmt.Errorf("writing arrow record: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("closing arrow writer: %w", err)
	}
	return nil
}

// Source is what WriteDir reads from. *engine.Engine satisfies it.
type Source interface {
	Labels() []string
	Traces() [][]trace.Sample
	SpikeHistory() [][]spikes.Event
}

// WriteDir writes TracesFile and SpikesFile into dir, creating it if
// needed, and returns the two paths.
func WriteDir(dir string, src Source) (tracesPath, spikesPath string, err error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", "", fmt.Errorf("creating export directory: %w", err)
	}
	labels := src.Labels()

	tracesPath = filepath.Join(dir, TracesFile)
	if err := writeFile(tracesPath, func(w io.WriteSeeker) error {
		return WriteTraces(w, labels, src.Traces())
	}); err != nil {
		return "", "", err
	}

	spikesPath = filepath.Join(dir, SpikesFile)
	if err := writeFile(spikesPath, func(w io.WriteSeeker) error {
		return WriteSpikes(w, labels, src.SpikeHistory())
	}); err != nil {
		return "", "", err
	}
	return tracesPath, spikesPath, nil
}

func writeFile(path string, write func(io.WriteSeeker) error) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(path), err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", filepath.Base(path), err)
	}
	return nil
}

// ReadTraces decodes a file written by WriteTraces.
func ReadTraces(r ipc.ReadAtSeeker) ([]TraceRow, error) {
	var rows []TraceRow
	err := readRecords(r, TraceSchema, func(rec arrow.Record) {
		neuron := rec.Column(0).(*array.Int32)
		label := rec.Column(1).(*array.String)
		ts := rec.Column(2).(*array.Float64)
		vs := rec.Column(3).(*array.Float64)
		for i := 0; i < int(rec.NumRows()); i++ {
			rows = append(rows, TraceRow{
				Neuron:    int(neuron.Value(i)),
				Label:     label.Value(i),
				Time:      ts.Value(i),
				Potential: vs.Value(i),
			})
		}
	})
	return rows, err
}

// ReadSpikes decodes a file written by WriteSpikes.
func ReadSpikes(r ipc.ReadAtSeeker) ([]SpikeRow, error) {
	var rows []SpikeRow
	err := readRecords(r, SpikeSchema, func(rec arrow.Record) {
		neuron := rec.Column(0).(*array.Int32)
		label := rec.Column(1).(*array.String)
		session := rec.Column(2).(*array.Float64)
		phase := rec.Column(3).(*array.Float64)
		for i := 0; i < int(rec.NumRows()); i++ {
			rows = append(rows, SpikeRow{
				Neuron:  int(neuron.Value(i)),
				Label:   label.Value(i),
				Session: session.Value(i),
				Phase:   phase.Value(i),
			})
		}
	})
	return rows, err
}

func readRecords(r ipc.ReadAtSeeker, want *arrow.Schema, each func(arrow.Record)) error {
	fr, err := ipc.NewFileReader(r, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return fmt.Errorf("opening arrow file: %w", err)
	}
	defer fr.Close()

	if !fr.Schema().Equal(want) {
		return fmt.Errorf("unexpected arrow schema: %s", fr.Schema())
	}
	for i := 0; i < fr.NumRecords(); i++ {
		rec, err := fr.Record(i)
		if err != nil {
			return fmt.Errorf("reading arrow record %d: %w", i, err)
		}
		each(rec)
	}
	return nil
}
