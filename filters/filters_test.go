package filters

import (
	"bytes"
	"compress/flate"
	"context"
	"errors"
	"testing"

	"github.com/wudi/pdfengine/ir/raw"
)

func TestFlateRoundTrip(t *testing.T) {
	content := []byte("q 0.6 0.6 0.8 rg 60 400 440 -50 re B Q\n")
	enc, err := FlateEncode(content, 0)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := NewFlateDecoder(0).Decode(context.Background(), enc, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !bytes.Equal(out, content) {
		t.Fatalf("round trip mismatch: %q", out)
	}
}

func TestFlateDecodeRawDeflate(t *testing.T) {
	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, flate.BestSpeed)
	w.Write([]byte("hello world"))
	w.Close()

	out, err := NewFlateDecoder(0).Decode(context.Background(), buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if string(out) != "hello world" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFlateDecodeLimit(t *testing.T) {
	enc, _ := FlateEncode(bytes.Repeat([]byte{'a'}, 4096), 9)
	_, err := NewFlateDecoder(100).Decode(context.Background(), enc, nil)
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected limit error, got %v", err)
	}
}

func TestFlateDecodeWithPNGUpPredictor(t *testing.T) {
	// Two rows of an xref stream with /W [1 2 1]: row type 2 (Up) adds the previous row.
	rows := []byte{
		2, 1, 0, 10, 0,
		2, 0, 0, 5, 0,
	}
	enc, _ := FlateEncode(rows, 0)
	params := raw.Dict()
	params.Put("Predictor", raw.NumberInt(12))
	params.Put("Columns", raw.NumberInt(4))

	out, err := NewFlateDecoder(0).Decode(context.Background(), enc, params)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []byte{1, 0, 10, 0, 1, 0, 15, 0}
	if !bytes.Equal(out, want) {
		t.Fatalf("got %v want %v", out, want)
	}
}

func TestRunLengthDecode(t *testing.T) {
	out, err := NewRunLengthDecoder().Decode(context.Background(), []byte{2, 'a', 'b', 'c', 254, 'z', 128, 'x'}, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(out) != "abczzz" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestASCII85Decode(t *testing.T) {
	out, err := NewASCII85Decoder().Decode(context.Background(), []byte("<~87cURD]i,\"Ebo80~>"), nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(out) != "Hello, World" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestASCIIHexDecode(t *testing.T) {
	out, err := NewASCIIHexDecoder().Decode(context.Background(), []byte("48 65 6C\n6C 6F 2>"), nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(out) != "Hello " {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestPipelineChainsAndRejectsUnknown(t *testing.T) {
	enc, _ := FlateEncode([]byte("BT ET"), 0)
	var hexed bytes.Buffer
	for _, b := range enc {
		hexed.WriteString(string("0123456789ABCDEF"[b>>4]) + string("0123456789ABCDEF"[b&15]))
	}
	hexed.WriteByte('>')

	p := DefaultPipeline(Limits{})
	out, err := p.Decode(context.Background(), hexed.Bytes(), []string{"AHx", "FlateDecode"}, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(out) != "BT ET" {
		t.Fatalf("unexpected output %q", out)
	}
	if _, err := p.Decode(context.Background(), nil, []string{"JBIG2Decode"}, nil); !errors.Is(err, ErrUnsupportedFilter) {
		t.Fatalf("expected unsupported filter, got %v", err)
	}
}

func TestExtractFilters(t *testing.T) {
	d := raw.Dict()
	d.Put("Filter", raw.NewArray(raw.NameLiteral("ASCII85Decode"), raw.NameLiteral("FlateDecode")))
	parms := raw.Dict()
	parms.Put("Predictor", raw.NumberInt(12))
	d.Put("DecodeParms", raw.NewArray(raw.NullObj{}, parms))

	names, params := ExtractFilters(d)
	if len(names) != 2 || names[1] != "FlateDecode" {
		t.Fatalf("unexpected names %v", names)
	}
	if len(params) != 2 || params[0] != nil || params[1] == nil {
		t.Fatalf("unexpected params %#v", params)
	}
}
