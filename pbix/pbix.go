// Package pbix orchestrates the full DataModel decode pipeline:
// XPress9 decompression, ABF container parse, embedded SQLite metadata
// read, schema assembly, and file-cache construction for on-demand
// VertiPaq column decode.
package pbix

import (
	"time"

	"go.uber.org/zap"

	"github.com/pbixdm/pbixdm/abf"
	"github.com/pbixdm/pbixdm/extractor"
	"github.com/pbixdm/pbixdm/pkg/pbixcache"
	"github.com/pbixdm/pbixdm/pkg/pbixmetrics"
	"github.com/pbixdm/pbixdm/schema"
	"github.com/pbixdm/pbixdm/sqlitedb"
	"github.com/pbixdm/pbixdm/xpress9"
)

// SemanticModel is the normalized shape described in §3; it is exactly
// schema.SemanticModel, re-exported at the package callers are expected
// to depend on.
type SemanticModel = schema.SemanticModel

// Result is what ParsePbixDataModel hands back: the normalized semantic
// model plus a lazy extractor bound to an independent file cache. The
// large decompressed ABF buffer that produced both is not reachable
// through Result - it is released once this function returns.
type Result struct {
	Model     *SemanticModel
	Extractor *extractor.Extractor
}

// ParsePbixDataModel runs the full pipeline over the raw DataModel ZIP
// entry bytes and a runtime-provided XPress9 codec. metrics may be nil.
func ParsePbixDataModel(dataModel []byte, codec xpress9.Codec, log *zap.Logger, metrics *pbixmetrics.Metrics) (*Result, error) {
	if log == nil {
		log = zap.NewNop()
	}

	start := time.Now()
	decompressed, err := xpress9.Decompress(codec, dataModel, log)
	metrics.ObserveStage("decompress", time.Since(start))
	if err != nil {
		return nil, err
	}

	start = time.Now()
	idx, err := abf.Parse(decompressed)
	metrics.ObserveStage("abf", time.Since(start))
	if err != nil {
		return nil, err
	}

	sqliteBuf, err := idx.GetDataSlice("metadata.sqlitedb")
	if err != nil {
		return nil, err
	}
	start = time.Now()
	db, err := sqlitedb.Open(sqliteBuf, log)
	metrics.ObserveStage("sqlite", time.Since(start))
	if err != nil {
		return nil, err
	}

	start = time.Now()
	model, err := schema.BuildSemanticModel(db)
	if err != nil {
		return nil, err
	}
	descs, err := schema.BuildColumnDescriptors(db, model)
	metrics.ObserveStage("schema", time.Since(start))
	if err != nil {
		return nil, err
	}

	cache, err := pbixcache.New(0)
	if err != nil {
		return nil, err
	}
	for _, d := range descs {
		for _, name := range []string{d.IDF, d.IDFMeta, d.Dictionary, d.HIDX} {
			if name == "" {
				continue
			}
			if _, ok := cache.Get(name); ok {
				continue
			}
			slice, err := idx.GetDataSlice(name)
			if err != nil {
				log.Debug("pbix: dependency file missing", zap.String("file", name), zap.Error(err))
				continue
			}
			cache.Put(name, slice)
		}
	}

	ex := extractor.New(descs, cache, log, metrics)
	return &Result{Model: model, Extractor: ex}, nil
}
