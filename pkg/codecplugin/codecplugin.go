// Package codecplugin loads the runtime-linked XPress9 codec the DataModel
// format itself does not define: XPress9 is Microsoft proprietary
// compression, and the bytes on disk only name a protocol (init,
// decompress, free), not an implementation. Analysis Services links the
// real codec in at process startup; this package is the equivalent seam
// for this module, loading it from a Go plugin built and supplied by
// whoever embeds this decoder.
package codecplugin

import (
	"plugin"

	"github.com/pbixdm/pbixdm/pbixerr"
	"github.com/pbixdm/pbixdm/xpress9"
)

// Symbol is the exported constructor a codec plugin must provide:
//
//	func NewXpress9Codec() xpress9.Codec
const Symbol = "NewXpress9Codec"

// Load opens the plugin at path and calls its NewXpress9Codec constructor.
// The plugin must be built with `go build -buildmode=plugin` against the
// same xpress9.Codec interface and Go toolchain version as this binary.
func Load(path string) (xpress9.Codec, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, pbixerr.E(pbixerr.DecompressInit, "codecplugin: open %s: %v", path, err)
	}
	sym, err := p.Lookup(Symbol)
	if err != nil {
		return nil, pbixerr.E(pbixerr.DecompressInit, "codecplugin: %s missing symbol %s: %v", path, Symbol, err)
	}
	ctor, ok := sym.(func() xpress9.Codec)
	if !ok {
		return nil, pbixerr.E(pbixerr.DecompressInit, "codecplugin: %s symbol %s has the wrong signature", path, Symbol)
	}
	return ctor(), nil
}
