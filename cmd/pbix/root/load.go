package root

import (
	"context"

	"go.uber.org/zap"

	"github.com/pbixdm/pbixdm/pbix"
	"github.com/pbixdm/pbixdm/pkg/codecplugin"
	"github.com/pbixdm/pbixdm/pkg/pbixmetrics"
	"github.com/pbixdm/pbixdm/pkg/pbixsource"
)

// SourceFlags are the flags every subcommand needs to load and decode one
// .pbix file: where it lives (local path or s3://bucket/key) and where to
// find the runtime-linked XPress9 codec plugin.
type SourceFlags struct {
	Path      string
	CodecPath string
}

// Load reads path (local or s3://), extracts the DataModel entry, loads
// the XPress9 codec plugin, and runs the full decode pipeline.
func Load(ctx context.Context, f SourceFlags, log *zap.Logger, metrics *pbixmetrics.Metrics) (*pbix.Result, error) {
	raw, err := pbixsource.Load(ctx, f.Path, nil)
	if err != nil {
		return nil, err
	}
	dataModel, err := pbixsource.ExtractDataModel(raw)
	if err != nil {
		return nil, err
	}
	codec, err := codecplugin.Load(f.CodecPath)
	if err != nil {
		return nil, err
	}
	return pbix.ParsePbixDataModel(dataModel, codec, log, metrics)
}
