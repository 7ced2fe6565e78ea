package raw

import (
	"bytes"
	"context"
	"testing"

	"github.com/wudi/pdfengine/scanner"
)

func parseString(t *testing.T, src string) Object {
	t.Helper()
	tr := NewTokenReader(scanner.NewBytes([]byte(src), scanner.Config{}))
	obj, err := ParseObject(tr)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return obj
}

func TestParseObject_NestedDictionary(t *testing.T) {
	obj := parseString(t, "<< /Type /Page /MediaBox [0 0 595 842] /Resources << /Font << /F1 5 0 R >> >> /Gone null >>")
	d, ok := obj.(*DictObj)
	if !ok {
		t.Fatalf("expected dict, got %T", obj)
	}
	if NameOf(d.KV["Type"]) != "Page" {
		t.Fatalf("unexpected type %v", d.KV["Type"])
	}
	box := d.KV["MediaBox"].(*ArrayObj)
	if box.Len() != 4 {
		t.Fatalf("expected 4 box entries, got %d", box.Len())
	}
	if w, _ := FloatOf(box.Items[2]); w != 595 {
		t.Fatalf("unexpected width %v", w)
	}
	font := d.KV["Resources"].(*DictObj).KV["Font"].(*DictObj).KV["F1"]
	if ref, ok := font.(RefObj); !ok || ref.R != (ObjectRef{Num: 5}) {
		t.Fatalf("expected 5 0 R, got %#v", font)
	}
	if _, ok := d.KV["Gone"]; ok {
		t.Fatalf("null entries should be dropped")
	}
}

func TestParseObject_RejectsNonNameKey(t *testing.T) {
	tr := NewTokenReader(scanner.NewBytes([]byte("<< 1 2 >>"), scanner.Config{}))
	if _, err := ParseObject(tr); err == nil {
		t.Fatalf("expected error for numeric key")
	}
}

func TestDeepCopy_SharesReferences(t *testing.T) {
	src := Dict()
	src.Put("Kids", NewArray(Ref(3, 0)))
	src.Put("Title", Str([]byte("X")))
	cp := DeepCopy(src).(*DictObj)
	cp.KV["Kids"].(*ArrayObj).Append(Ref(4, 0))
	cp.KV["Title"].(StringObj).Bytes[0] = 'Y'
	if src.KV["Kids"].(*ArrayObj).Len() != 1 {
		t.Fatalf("copy mutated source array")
	}
	if string(src.KV["Title"].(StringObj).Bytes) != "X" {
		t.Fatalf("copy mutated source string")
	}
}

func TestScanObjects_LaterDefinitionWins(t *testing.T) {
	src := "%PDF-1.7\n" +
		"1 0 obj\n<< /Type /Catalog >>\nendobj\n" +
		"2 0 obj\n<< /Length 5 >>\nstream\nhello\nendstream\nendobj\n" +
		"1 0 obj\n<< /Type /Catalog /Version /1.7 >>\nendobj\n" +
		"trailer\n<< /Size 3 /Root 1 0 R >>\n"
	res, err := ScanObjects(context.Background(), bytes.NewReader([]byte(src)), ScanConfig{})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(res.Objects) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(res.Objects))
	}
	cat := res.Objects[ObjectRef{Num: 1}].(*DictObj)
	if _, ok := cat.KV["Version"]; !ok {
		t.Fatalf("expected the appended catalog revision")
	}
	st, ok := res.Objects[ObjectRef{Num: 2}].(*StreamObj)
	if !ok || string(st.Data) != "hello" {
		t.Fatalf("unexpected stream %#v", res.Objects[ObjectRef{Num: 2}])
	}
	if _, ok := res.Trailer.Lookup("Root"); !ok {
		t.Fatalf("expected trailer with a Root reference")
	}
	if off := res.Offsets[ObjectRef{Num: 1}]; !bytes.HasPrefix([]byte(src[off:]), []byte("1 0 obj\n<< /Type /Catalog /Version")) {
		t.Fatalf("offset %d does not point at the newest header", off)
	}
}
