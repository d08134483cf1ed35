// Package extractor is the Table Extractor façade (§4.11): it binds a
// built column schema to a pre-extracted file cache and lazily decodes
// columns on request, either all at once or cooperatively yielding
// between columns for a single-threaded host.
package extractor

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/pbixdm/pbixdm/pbixerr"
	"github.com/pbixdm/pbixdm/pkg/pbixmetrics"
	"github.com/pbixdm/pbixdm/schema"
	"github.com/pbixdm/pbixdm/vertipaq/convert"
	"github.com/pbixdm/pbixdm/vertipaq/dictionary"
	"github.com/pbixdm/pbixdm/vertipaq/idf"
	"github.com/pbixdm/pbixdm/vertipaq/idfmeta"
)

// FileCache resolves a storage file basename to its independently owned
// bytes, as built by the assembly phase of ParsePbixDataModel.
type FileCache interface {
	Get(name string) ([]byte, bool)
}

// TableData is a table's decoded columnar output. Skipped summarizes the
// non-fatal reasons any column was omitted (the ColumnDecodeSkipped
// kind); the table is still considered successfully decoded.
type TableData struct {
	Columns    []string
	ColumnData [][]interface{}
	RowCount   int
	Skipped    string `json:"Skipped,omitempty"`
}

// Outcome distinguishes a normal streaming result from a cancelled one.
type Outcome int

const (
	OutcomeComplete Outcome = iota
	OutcomeCancelled
)

// ProgressFunc is called once before each column is decoded during
// streaming extraction.
type ProgressFunc func(colIndex, total int, columnName string)

// Extractor decodes tables on demand from a bound schema + file cache.
type Extractor struct {
	tables  map[string][]schema.ColumnDescriptor
	names   []string
	cache   FileCache
	log     *zap.Logger
	metrics *pbixmetrics.Metrics

	epoch int64
}

// New groups descs by table and builds the sorted table-name index.
// metrics may be nil, in which case no metrics are recorded.
func New(descs []schema.ColumnDescriptor, cache FileCache, log *zap.Logger, metrics *pbixmetrics.Metrics) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Extractor{tables: map[string][]schema.ColumnDescriptor{}, cache: cache, log: log, metrics: metrics}
	for _, d := range descs {
		e.tables[d.TableName] = append(e.tables[d.TableName], d)
	}
	for name := range e.tables {
		e.names = append(e.names, name)
	}
	sort.Strings(e.names)
	return e
}

// TableNames returns the deterministically sorted list of real table
// names.
func (e *Extractor) TableNames() []string {
	return e.names
}

// SetEpoch bumps the cancellation epoch; any streaming extraction
// started under a previous epoch terminates with OutcomeCancelled at its
// next yield point.
func (e *Extractor) SetEpoch(epoch int64) {
	e.epoch = epoch
}

// GetTable decodes every column of name synchronously.
func (e *Extractor) GetTable(name string) (*TableData, error) {
	td, _ := e.getTable(context.Background(), name, nil, -1)
	return td, nil
}

// GetTableStreaming decodes name's columns one at a time, yielding to
// ctx between each so a single-threaded host stays responsive, and
// reporting progress via onProgress. If the epoch captured at start no
// longer matches the extractor's current epoch at a yield point, it
// returns OutcomeCancelled with the columns decoded so far.
func (e *Extractor) GetTableStreaming(ctx context.Context, name string, onProgress ProgressFunc) (*TableData, Outcome, error) {
	startEpoch := e.epoch
	td, outcome := e.getTable(ctx, name, onProgress, startEpoch)
	return td, outcome, nil
}

func (e *Extractor) getTable(ctx context.Context, name string, onProgress ProgressFunc, startEpoch int64) (*TableData, Outcome) {
	descs := e.tables[name]
	td := &TableData{}
	var skipped error

	for i, d := range descs {
		if startEpoch >= 0 {
			select {
			case <-ctx.Done():
				return td, OutcomeCancelled
			default:
			}
			if e.epoch != startEpoch {
				return td, OutcomeCancelled
			}
			if onProgress != nil {
				onProgress(i, len(descs), d.Name)
			}
		}

		values, err := e.decodeColumn(d)
		if err != nil {
			e.log.Debug("extractor: skipping column", zap.String("table", name), zap.String("column", d.Name), zap.Error(err))
			e.metrics.ColumnSkipped(name)
			skipped = multierr.Append(skipped, fmt.Errorf("%s: %w", d.Name, err))
			continue
		}
		e.metrics.ColumnDecoded(name)
		td.Columns = append(td.Columns, d.Name)
		td.ColumnData = append(td.ColumnData, values)
		if len(values) > td.RowCount {
			td.RowCount = len(values)
		}
	}
	if skipped != nil {
		td.Skipped = skipped.Error()
	}
	return td, OutcomeComplete
}

// getCached resolves name through the file cache, recording a hit/miss
// metric alongside the lookup.
func (e *Extractor) getCached(name string) ([]byte, bool) {
	b, ok := e.cache.Get(name)
	if ok {
		e.metrics.CacheHit()
	} else {
		e.metrics.CacheMiss()
	}
	return b, ok
}

// decodeColumn runs §4.8 + §4.9 + §4.10 for one column, atomically: it
// either returns a fully decoded value slice or an error, never a
// partial column.
func (e *Extractor) decodeColumn(d schema.ColumnDescriptor) ([]interface{}, error) {
	metaBuf, ok := e.getCached(d.IDFMeta)
	if !ok {
		return nil, pbixerr.E(pbixerr.ColumnDecodeSkipped, "missing idfmeta file %q", d.IDFMeta)
	}
	meta, err := idfmeta.Parse(metaBuf)
	if err != nil {
		return nil, err
	}

	idfBuf, ok := e.getCached(d.IDF)
	if !ok {
		return nil, pbixerr.E(pbixerr.ColumnDecodeSkipped, "missing idf file %q", d.IDF)
	}
	indices, err := idf.Decode(idfBuf, meta)
	if err != nil {
		return nil, err
	}

	var dict *dictionary.Dictionary
	if d.Dictionary != "" {
		dictBuf, ok := e.getCached(d.Dictionary)
		if !ok {
			return nil, pbixerr.E(pbixerr.ColumnDecodeSkipped, "missing dictionary file %q", d.Dictionary)
		}
		dict, err = dictionary.Read(dictBuf, meta.MinDataID)
		if err != nil {
			return nil, err
		}
	}

	out := make([]interface{}, len(indices))
	for i, idx := range indices {
		var raw interface{}
		if dict != nil {
			v, ok := dict.Value[idx]
			if !ok {
				return nil, pbixerr.E(pbixerr.ColumnDecodeSkipped, "dictionary index %d not present", idx)
			}
			raw = v
		} else {
			magnitude := d.Magnitude
			if magnitude == 0 {
				magnitude = 1
			}
			raw = (float64(idx) + float64(d.BaseID)) / magnitude
		}
		out[i] = convert.Value(d.DataType, raw)
	}
	return out, nil
}
