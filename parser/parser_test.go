package parser_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/wudi/pdfengine/filters"
	"github.com/wudi/pdfengine/ir/raw"
	"github.com/wudi/pdfengine/parser"
	"github.com/wudi/pdfengine/recovery"
	"github.com/wudi/pdfengine/xref"
)

// pdfBuilder writes numbered objects and a matching classic xref table.
type pdfBuilder struct {
	buf     bytes.Buffer
	offsets map[int]int
	max     int
}

func newPDF() *pdfBuilder {
	b := &pdfBuilder{offsets: map[int]int{}}
	b.buf.WriteString("%PDF-1.6\n%\xe2\xe3\xcf\xd3\n")
	return b
}

func (b *pdfBuilder) obj(num int, body string) *pdfBuilder {
	b.offsets[num] = b.buf.Len()
	fmt.Fprintf(&b.buf, "%d 0 obj\n%s\nendobj\n", num, body)
	if num > b.max {
		b.max = num
	}
	return b
}

func (b *pdfBuilder) finish(trailerExtra string) []byte {
	xrefOff := b.buf.Len()
	fmt.Fprintf(&b.buf, "xref\n0 %d\n0000000000 65535 f \n", b.max+1)
	for i := 1; i <= b.max; i++ {
		if off, ok := b.offsets[i]; ok {
			fmt.Fprintf(&b.buf, "%010d 00000 n \n", off)
		} else {
			b.buf.WriteString("0000000000 00000 f \n")
		}
	}
	fmt.Fprintf(&b.buf, "trailer\n<< /Size %d /Root 1 0 R %s>>\nstartxref\n%d\n%%%%EOF\n", b.max+1, trailerExtra, xrefOff)
	return b.buf.Bytes()
}

func TestParseLoadsStreamsWithIndirectLength(t *testing.T) {
	data := newPDF().
		obj(1, "<< /Type /Catalog /Pages 2 0 R >>").
		obj(2, "<< /Type /Pages /Kids [3 0 R] /Count 1 >>").
		obj(3, "<< /Type /Page /Parent 2 0 R /Contents 4 0 R >>").
		obj(4, "<< /Length 5 0 R >>\nstream\nq 1 w endstream Q\nendstream").
		obj(5, "17").
		finish("")

	doc, err := parser.NewDocumentParser(parser.Config{}).Parse(context.Background(), bytes.NewReader(data))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if doc.Version != "1.6" {
		t.Fatalf("unexpected version %q", doc.Version)
	}
	if len(doc.Objects) != 5 {
		t.Fatalf("expected 5 objects, got %d", len(doc.Objects))
	}
	st, ok := doc.Objects[raw.ObjectRef{Num: 4}].(*raw.StreamObj)
	if !ok {
		t.Fatalf("expected stream, got %T", doc.Objects[raw.ObjectRef{Num: 4}])
	}
	if string(st.Data) != "q 1 w endstream Q" {
		t.Fatalf("length hint not honored: %q", st.Data)
	}
	if doc.Revisions != 1 || doc.Size != 6 || doc.StartXRef == 0 {
		t.Fatalf("unexpected revision info %+v", doc)
	}
}

func TestParseObjectStreamMembers(t *testing.T) {
	members := "<< /Type /Pages /Kids [] /Count 0 >> (hello)"
	header := fmt.Sprintf("2 0 3 %d ", len("<< /Type /Pages /Kids [] /Count 0 >> "))
	payload, _ := filters.FlateEncode([]byte(header+members), 0)

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n")
	off1 := buf.Len()
	buf.WriteString("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	off4 := buf.Len()
	fmt.Fprintf(&buf, "4 0 obj\n<< /Type /ObjStm /N 2 /First %d /Filter /FlateDecode /Length %d >>\nstream\n", len(header), len(payload))
	buf.Write(payload)
	buf.WriteString("\nendstream\nendobj\n")
	xrefOff := buf.Len()
	rows := [][3]int{{0, 0, 255}, {1, off1, 0}, {2, 4, 0}, {2, 4, 1}, {1, off4, 0}, {1, xrefOff, 0}}
	var entries []byte
	for _, r := range rows {
		entries = append(entries, byte(r[0]), byte(r[1]>>8), byte(r[1]), byte(r[2]))
	}
	fmt.Fprintf(&buf, "5 0 obj\n<< /Type /XRef /Size 6 /Root 1 0 R /W [1 2 1] /Length %d >>\nstream\n", len(entries))
	buf.Write(entries)
	fmt.Fprintf(&buf, "\nendstream\nendobj\nstartxref\n%d\n%%%%EOF\n", xrefOff)

	doc, err := parser.NewDocumentParser(parser.Config{}).Parse(context.Background(), bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	pages, ok := doc.Objects[raw.ObjectRef{Num: 2}].(*raw.DictObj)
	if !ok || raw.NameOf(pages.KV["Type"]) != "Pages" {
		t.Fatalf("object 2 from object stream: %#v", doc.Objects[raw.ObjectRef{Num: 2}])
	}
	if s, ok := doc.Objects[raw.ObjectRef{Num: 3}].(raw.StringObj); !ok || string(s.Bytes) != "hello" {
		t.Fatalf("object 3 from object stream: %#v", doc.Objects[raw.ObjectRef{Num: 3}])
	}
}

func TestParseHeaderMismatch(t *testing.T) {
	b := newPDF().
		obj(1, "<< /Type /Catalog /Pages 2 0 R >>").
		obj(2, "<< /Type /Pages /Kids [] /Count 0 >>")
	// Point object 2's entry at object 1.
	b.offsets[2] = b.offsets[1]
	broken := b.finish("")

	if _, err := parser.NewDocumentParser(parser.Config{}).Parse(context.Background(), bytes.NewReader(broken)); err == nil {
		t.Fatalf("expected header mismatch error")
	}
	rec := recovery.NewLenientStrategy()
	doc, err := parser.NewDocumentParser(parser.Config{Recovery: rec}).Parse(context.Background(), bytes.NewReader(broken))
	if err != nil {
		t.Fatalf("lenient parse: %v", err)
	}
	if _, ok := doc.Objects[raw.ObjectRef{Num: 2}]; ok {
		t.Fatalf("mismatched object should have been skipped")
	}
	if len(rec.Errors) == 0 {
		t.Fatalf("expected the skip to be recorded")
	}
}

func TestParseRejectsEncrypted(t *testing.T) {
	data := newPDF().
		obj(1, "<< /Type /Catalog >>").
		obj(2, "<< /Filter /Standard /V 2 >>").
		finish("/Encrypt 2 0 R ")
	_, err := parser.NewDocumentParser(parser.Config{}).Parse(context.Background(), bytes.NewReader(data))
	if !errors.Is(err, parser.ErrEncrypted) {
		t.Fatalf("expected ErrEncrypted, got %v", err)
	}
}

func TestParseMissingRoot(t *testing.T) {
	data := newPDF().obj(2, "<< /Type /Pages >>").finish("")
	_, err := parser.NewDocumentParser(parser.Config{}).Parse(context.Background(), bytes.NewReader(data))
	if !errors.Is(err, xref.ErrMalformed) {
		t.Fatalf("expected ErrMalformed for dangling /Root, got %v", err)
	}
}

func TestLoaderDetectsLengthCycle(t *testing.T) {
	data := newPDF().
		obj(1, "<< /Type /Catalog >>").
		obj(2, "<< /Length 2 0 R >>\nstream\nabc\nendstream").
		finish("")
	table, err := xref.NewResolver(xref.ResolverConfig{}).Resolve(context.Background(), bytes.NewReader(data))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	loader, err := (&parser.ObjectLoaderBuilder{}).WithReader(bytes.NewReader(data)).WithXRef(table).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	obj, err := loader.Load(context.Background(), raw.ObjectRef{Num: 2})
	if err != nil {
		t.Fatalf("self-referencing length should fall back to the marker: %v", err)
	}
	if st := obj.(*raw.StreamObj); string(st.Data) != "abc" {
		t.Fatalf("unexpected data %q", st.Data)
	}
	if _, err := loader.Load(context.Background(), raw.ObjectRef{Num: 9}); !errors.Is(err, parser.ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}
