package filters

import (
	"bytes"
	"context"
	"testing"

	"github.com/wudi/pdfengine/ir/raw"
)

// FuzzFlateRoundTrip checks that content written with FlateEncode decodes
// back through the pipeline unchanged, and that arbitrary bytes under any
// supported filter never panic.
func FuzzFlateRoundTrip(f *testing.F) {
	f.Add([]byte("q 0.6 0.6 0.8 rg 60 400 440 -50 re B* Q\n"), "ASCII85Decode")
	f.Add([]byte("48656C6C6F>"), "ASCIIHexDecode")
	f.Add([]byte{2, 'a', 'b', 'c', 254, 'z', 128}, "RunLengthDecode")
	f.Add([]byte("x\x9c+\xc9\xc8,\x06\x00\x04]\x01\xc1"), "Fl")

	p := DefaultPipeline(Limits{MaxDecompressedSize: 1 << 20})
	ctx := context.Background()
	f.Fuzz(func(t *testing.T, data []byte, filterName string) {
		enc, err := FlateEncode(data, 6)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		dec, err := p.Decode(ctx, enc, []string{"FlateDecode"}, []raw.Dictionary{nil})
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !bytes.Equal(dec, data) {
			t.Fatalf("round trip mismatch: %q != %q", dec, data)
		}
		if p.Supports([]string{filterName}) {
			_, _ = p.Decode(ctx, data, []string{filterName}, []raw.Dictionary{nil})
		}
	})
}
