package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/pdfengine/color"
	"github.com/wudi/pdfengine/contentstream"
	"github.com/wudi/pdfengine/fonts"
	"github.com/wudi/pdfengine/ir/raw"
	"github.com/wudi/pdfengine/metadata"
)

func mustColor(t *testing.T, name string) color.Color {
	t.Helper()
	c, err := color.Named(name)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

// sampleDocument builds the two pages of the processing scenario: a text
// page and a page with every shape.
func sampleDocument(t *testing.T, opts ...Option) *Document {
	t.Helper()
	doc := New(opts...)
	helv := fonts.MustFont(fonts.Helvetica)

	p1 := doc.NewPage(A4)
	p1.SetFont(helv, 36).
		SetFillColor(mustColor(t, "#9999cc")).
		DrawText("Helvetica 36 text string", 60, 500)

	style := NewStyle().
		SetFillColor(mustColor(t, "#9999cc")).
		SetLineColor(color.Gray{Level: 0.2}).
		SetLineWidth(3).
		SetLineDashingPattern(contentstream.DashPattern{Array: []float64{3, 2, 3, 4}, Phase: 1.6}).
		SetFont(fonts.MustFont(fonts.HelveticaBold), 32)

	p2 := doc.NewPage(LetterLandscape)
	p2.SetStyle(style).
		DrawRectangle(60, 400, 400, 350, contentstream.DrawFillAndStroke).
		DrawText("Rectangle", 70, 370).
		SetFillColor(color.RGB{R: 0.8, G: 0.2, B: 0.2}).
		DrawPolygon([]float64{60, 100, 400, 400}, []float64{100, 300, 300, 200}, contentstream.DrawFillAndStroke, contentstream.FillEvenOdd).
		SetLineDashingPattern(contentstream.DashSolid).
		DrawCircle(85, 375, 25, contentstream.DrawFillAndStroke).
		DrawSector(200, 375, 25, 2*math.Pi/3, -math.Pi/6, contentstream.DrawFill).
		SetFillColor(color.CMYK{C: 1, M: 0, Y: 0, K: 0}).
		DrawSector(200, 375, 25, math.Pi/6, math.Pi/3, contentstream.DrawFill).
		SetFillColor(color.RGB{R: 0.2, G: 0.8, B: 0.2}).
		DrawSector(200, 375, 25, -math.Pi/6, math.Pi/6, contentstream.DrawFill).
		DrawEllipse(250, 400, 400, 350, contentstream.DrawFillAndStroke).
		DrawEllipseSector(250, 400, 400, 350, math.Pi/6, 2*math.Pi/3, contentstream.DrawFill).
		DrawRoundedRectangle(420, 300, 600, 400, 15, contentstream.DrawStroke).
		DrawLine(60, 60, 700, 60)

	if err := doc.AppendPage(p1, p2); err != nil {
		t.Fatal(err)
	}
	for _, p := range doc.Pages() {
		if err := p.Err(); err != nil {
			t.Fatalf("page error: %v", err)
		}
	}
	return doc
}

func render(t *testing.T, doc *Document) []byte {
	t.Helper()
	data, err := doc.Render(context.Background())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	return data
}

func parse(t *testing.T, data []byte, opts ...Option) *Document {
	t.Helper()
	doc, err := Parse(context.Background(), data, opts...)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func contentOps(t *testing.T, p *Page) []contentstream.Operation {
	t.Helper()
	ops, err := p.ContentOperations(context.Background())
	if err != nil {
		t.Fatalf("content: %v", err)
	}
	return ops
}

func TestCreateAndReload(t *testing.T) {
	doc := sampleDocument(t, WithCompression(6))
	want := [][]contentstream.Operation{doc.Pages()[0].Operations(), doc.Pages()[1].Operations()}
	data := render(t, doc)
	if !bytes.HasPrefix(data, []byte("%PDF-1.7")) {
		t.Fatalf("missing header: %q", data[:16])
	}

	loaded := parse(t, data)
	pages := loaded.Pages()
	if len(pages) != 2 {
		t.Fatalf("loaded %d pages, want 2", len(pages))
	}
	if pages[0].Width() != 595 || pages[0].Height() != 842 {
		t.Fatalf("page 1 is %vx%v", pages[0].Width(), pages[0].Height())
	}
	if pages[1].Width() != 792 || pages[1].Height() != 612 {
		t.Fatalf("page 2 is %vx%v", pages[1].Width(), pages[1].Height())
	}
	for i, p := range pages {
		if !p.Loaded() {
			t.Fatalf("page %d not marked loaded", i+1)
		}
		if got := contentOps(t, p); !contentstream.Equivalent(got, want[i]) {
			t.Fatalf("page %d operators differ after reload:\n got %v\nwant %v", i+1, got, want[i])
		}
	}
}

func TestModifyAppendsIncrementalUpdate(t *testing.T) {
	base := render(t, sampleDocument(t))
	doc := parse(t, base, WithDeterministicID())
	original := contentOps(t, doc.Pages()[0])

	pages := doc.Pages()
	if err := doc.SetPages([]*Page{pages[1], pages[0]}); err != nil {
		t.Fatal(err)
	}
	style := NewStyle().
		SetFillColor(color.RGB{R: 0.8, G: 0.2, B: 0.2}).
		SetFont(fonts.MustFont(fonts.Helvetica), 10)
	for i, p := range doc.Pages() {
		p.SaveGS().
			SetStyle(style).
			Rotate(0, 0, math.Pi/12).
			DrawText("Modified by pdfengine", 150, 20).
			RestoreGS()
		if err := p.Err(); err != nil {
			t.Fatal(err)
		}
		// The text page already uses Helv for its own font object.
		want := []string{"Helv", "Helv1"}[i]
		if diff := cmp.Diff([]string{want}, p.Fonts()); diff != "" {
			t.Fatalf("font names (-want +got):\n%s", diff)
		}
	}
	extra := doc.NewPage(A4)
	extra.SetFont(fonts.MustFont(fonts.TimesRoman), 12).DrawText("New page", 72, 720)
	if err := doc.AppendPage(extra); err != nil {
		t.Fatal(err)
	}

	out := render(t, doc)
	if !bytes.HasPrefix(out, base) {
		t.Fatalf("incremental update does not start with the original bytes")
	}
	if n := bytes.Count(out, []byte("%%EOF")); n != 2 {
		t.Fatalf("found %d %%%%EOF markers, want 2", n)
	}
	if again := render(t, doc); !bytes.Equal(again, out) {
		t.Fatalf("second render differs from the first")
	}

	reloaded := parse(t, out)
	if st := reloaded.Inspect(); st.Revisions != 2 || len(st.Pages) != 3 {
		t.Fatalf("reloaded state %+v", st)
	}
	got := reloaded.Pages()
	if got[0].Width() != 792 || got[1].Width() != 595 {
		t.Fatalf("page order not kept: %v, %v", got[0].Width(), got[1].Width())
	}
	ops := contentOps(t, got[1])
	if ops[0].Operator != "q" || ops[len(original)+1].Operator != "Q" {
		t.Fatalf("original content not wrapped in q/Q: %v", ops)
	}
	if !contentstream.Equivalent(ops[1:len(original)+1], original) {
		t.Fatalf("original operators changed")
	}
	tj := 0
	for _, op := range ops {
		if op.Operator == "Tj" {
			tj++
		}
	}
	if tj != 2 {
		t.Fatalf("found %d text operators, want 2", tj)
	}
}

func TestFullRewrite(t *testing.T) {
	base := render(t, sampleDocument(t))
	doc := parse(t, base, WithFullRewrite())
	doc.Pages()[0].SetRotation(-90)
	out := render(t, doc)
	if bytes.HasPrefix(out, base) || bytes.Count(out, []byte("%%EOF")) != 1 {
		t.Fatalf("expected a single-revision rewrite")
	}
	reloaded := parse(t, out)
	if r := reloaded.Pages()[0].Rotation(); r != 270 {
		t.Fatalf("rotation %d, want 270", r)
	}
	if reloaded.PageCount() != 2 {
		t.Fatalf("page count %d", reloaded.PageCount())
	}
}

const archivingXMP = `<?xpacket begin="` + "\ufeff" + `" id="W5M0MpCehiHzreSzNTczkc9d"?>
<x:xmpmeta xmlns:x="adobe:ns:meta/">
<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
<rdf:Description rdf:about="" xmlns:pdf="http://ns.adobe.com/pdf/1.3/">
<pdf:Title>PDF as a Standard for Archiving</pdf:Title>
</rdf:Description>
</rdf:RDF>
</x:xmpmeta>
<?xpacket end="w"?>`

func archivingDocument(t *testing.T) []byte {
	t.Helper()
	doc := sampleDocument(t)
	doc.Properties().Set(metadata.KeyTitle, "PDF as a Standard for Archiving")
	doc.Properties().Set(metadata.KeyAuthor, "Adobe Systems Incorporated")
	doc.SetMetadata([]byte(archivingXMP))
	return render(t, doc)
}

func TestInfoProcessing(t *testing.T) {
	doc := parse(t, archivingDocument(t))
	props := doc.Properties()
	if props.Value(metadata.KeyTitle) != "PDF as a Standard for Archiving" {
		t.Fatalf("title %q", props.Value(metadata.KeyTitle))
	}
	props.Set(metadata.KeyTitle, props.Value(metadata.KeyTitle)+" (modified)")
	props.Set("New_Property", "New property")

	xmp, err := metadata.SetDescriptionValue(doc.Metadata(), metadata.NSPDF, "Title", "PDF as a Standard for Archiving (modified using RDF data)")
	if err != nil {
		t.Fatal(err)
	}
	doc.SetMetadata(xmp)

	reloaded := parse(t, render(t, doc))
	want := map[string]string{
		"Title":        "PDF as a Standard for Archiving (modified)",
		"Author":       "Adobe Systems Incorporated",
		"New_Property": "New property",
	}
	if diff := cmp.Diff(want, reloaded.Properties().Map()); diff != "" {
		t.Fatalf("properties (-want +got):\n%s", diff)
	}
	desc, err := metadata.ReadDescription(reloaded.Metadata())
	if err != nil {
		t.Fatal(err)
	}
	if desc["pdf:Title"] != "PDF as a Standard for Archiving (modified using RDF data)" {
		t.Fatalf("xmp title %q", desc["pdf:Title"])
	}
	if diff := cmp.Diff(map[string]string{
		"Title":  "PDF as a Standard for Archiving",
		"Author": "Adobe Systems Incorporated",
	}, doc.Inspect().OriginalProperties); diff != "" {
		t.Fatalf("original properties (-want +got):\n%s", diff)
	}
}

func TestTitleWriteLeavesXMPBytes(t *testing.T) {
	doc := parse(t, archivingDocument(t))
	before := doc.Metadata()
	doc.Properties().Set(metadata.KeyTitle, "Another title")
	reloaded := parse(t, render(t, doc))
	if !bytes.Equal(reloaded.Metadata(), before) {
		t.Fatalf("XMP packet changed:\n%s", reloaded.Metadata())
	}
	if reloaded.Properties().Value(metadata.KeyTitle) != "Another title" {
		t.Fatalf("title not written")
	}
}

func TestPageCloning(t *testing.T) {
	doc := parse(t, render(t, sampleDocument(t)))
	pages := doc.Pages()
	for _, p := range pages {
		clone, err := ClonePage(p)
		if err != nil {
			t.Fatal(err)
		}
		if err := doc.AppendPage(clone); err != nil {
			t.Fatal(err)
		}
	}
	if doc.PageCount() != 2*len(pages) {
		t.Fatalf("page count %d", doc.PageCount())
	}
	if err := doc.AppendPage(pages[0]); !errors.Is(err, ErrUnsupportedOperation) {
		t.Fatalf("appending a page twice: %v", err)
	}

	reloaded := parse(t, render(t, doc))
	got := reloaded.Pages()
	if len(got) != 4 {
		t.Fatalf("reloaded %d pages, want 4", len(got))
	}
	for i := 0; i < 2; i++ {
		if !contentstream.Equivalent(contentOps(t, got[i]), contentOps(t, got[i+2])) {
			t.Fatalf("clone of page %d differs", i+1)
		}
	}
}

func TestClonedPageIsIndependent(t *testing.T) {
	doc := New()
	p := doc.NewPage(Letter).SetLineWidth(2).DrawLine(0, 0, 10, 10)
	clone, err := ClonePage(p)
	if err != nil {
		t.Fatal(err)
	}
	clone.SaveGS().DrawCircle(5, 5, 2, contentstream.DrawStroke)
	if len(p.Operations()) == len(clone.Operations()) {
		t.Fatalf("drawing on the clone changed the source")
	}
	if p.Inspect().SaveCount != 0 || clone.Inspect().SaveCount != 1 {
		t.Fatalf("graphics state shared between clone and source")
	}
}

func TestShallowCopyIsUnsupported(t *testing.T) {
	doc := New()
	p := doc.NewPage(A4)
	cp := *p
	cp.DrawLine(0, 0, 100, 100)
	if !errors.Is(cp.Err(), ErrUnsupportedOperation) {
		t.Fatalf("copy error %v", cp.Err())
	}
	if p.Err() != nil || len(p.Operations()) != 0 {
		t.Fatalf("drawing on the copy reached the original")
	}
	if err := doc.AppendPage(&cp); !errors.Is(err, ErrUnsupportedOperation) {
		t.Fatalf("attaching a copy: %v", err)
	}
	if _, err := ClonePage(&cp); !errors.Is(err, ErrUnsupportedOperation) {
		t.Fatalf("cloning a copy: %v", err)
	}
}

func TestInspectDefaults(t *testing.T) {
	doc := New()
	p := doc.NewPage(A4)
	if err := doc.AppendPage(p); err != nil {
		t.Fatal(err)
	}
	st := doc.Inspect()
	if diff := cmp.Diff(map[string]string{}, st.OriginalProperties); diff != "" {
		t.Fatalf("original properties (-want +got):\n%s", diff)
	}
	if len(st.NamedDestinations) != 0 || st.Loaded {
		t.Fatalf("state %+v", st)
	}
	if diff := cmp.Diff([]PageState{{Width: 595, Height: 842, Fonts: []string{}}}, st.Pages); diff != "" {
		t.Fatalf("page state (-want +got):\n%s", diff)
	}
}

func TestLegacyEncodedProperties(t *testing.T) {
	doc := sampleDocument(t)
	doc.Properties().Set(metadata.KeySubject, "Quartal XXXX Bericht YYYY")
	data := render(t, doc)
	// Same length, so the cross-reference offsets stay valid.
	data = bytes.Replace(data, []byte("XXXX"), []byte(`\226`), 1)
	data = bytes.Replace(data, []byte("YYYY"), []byte(`\237`), 1)

	loaded := parse(t, data)
	props := loaded.Properties()
	if !props.HasLegacy() {
		t.Fatalf("legacy subject not detected")
	}
	if got := props.Value(metadata.KeySubject); got != "Quartal \u2013 Bericht \u0178" {
		t.Fatalf("subject decoded as %q", got)
	}
	props.Set(metadata.KeyTitle, "Test-Title")

	reloaded := parse(t, render(t, loaded))
	got := reloaded.Properties()
	if got.HasLegacy() {
		t.Fatalf("subject still legacy after a property write")
	}
	if got.Value(metadata.KeySubject) != "Quartal \u2013 Bericht \u0178" || got.Value(metadata.KeyTitle) != "Test-Title" {
		t.Fatalf("properties %v", got.Map())
	}
}

func TestGraphicsStateNesting(t *testing.T) {
	p := NewPage(Letter)
	p.SetLineWidth(1).
		SaveGS().
		SetLineWidth(5).
		DrawLine(0, 0, 10, 0).
		RestoreGS().
		DrawLine(0, 10, 10, 10)
	if err := p.Err(); err != nil {
		t.Fatal(err)
	}
	gs, err := contentstream.Replay(p.Operations())
	if err != nil {
		t.Fatal(err)
	}
	if w := gs.Current().LineWidth; w != 1 {
		t.Fatalf("line width after restore %v, want 1", w)
	}
	if p.Inspect().SaveCount != 0 {
		t.Fatalf("save count %d", p.Inspect().SaveCount)
	}

	p.RestoreGS().DrawLine(0, 0, 1, 1)
	if !errors.Is(p.Err(), contentstream.ErrStateUnderflow) {
		t.Fatalf("restore past the base frame: %v", p.Err())
	}
	n := len(p.Operations())
	p.DrawLine(5, 5, 6, 6)
	if len(p.Operations()) != n {
		t.Fatalf("drawing continued after an error")
	}
}

func TestFontObjectsAreShared(t *testing.T) {
	if fonts.MustFont("Helvetica") != fonts.MustFont("helvetica") {
		t.Fatalf("font lookup not idempotent")
	}
	doc := New()
	for i := 0; i < 3; i++ {
		p := doc.NewPage(A4).SetFont(fonts.MustFont(fonts.Helvetica), 12).DrawText("x", 10, 10)
		if err := doc.AppendPage(p); err != nil {
			t.Fatal(err)
		}
	}
	data := render(t, doc)
	if n := bytes.Count(data, []byte("/BaseFont /Helvetica/")); n != 1 {
		t.Fatalf("found %d Helvetica font dictionaries, want 1", n)
	}
}

func TestRenderRefusesPageWithError(t *testing.T) {
	doc := New()
	p := doc.NewPage(A4).DrawText("no font", 10, 10)
	if err := doc.AppendPage(p); err != nil {
		t.Fatal(err)
	}
	_, err := doc.Render(context.Background())
	if !errors.Is(err, contentstream.ErrNoFontSelected) {
		t.Fatalf("render error %v", err)
	}
	var derr *Error
	if !errors.As(err, &derr) || derr.Op != "render" {
		t.Fatalf("error %#v does not name the operation", err)
	}
}

func TestPageSizes(t *testing.T) {
	if p := NewPage(Preset("letter-landscape")); p.Width() != 792 || p.Height() != 612 {
		t.Fatalf("preset lookup: %v", p.Box())
	}
	if p := NewPage(Size{Width: 200, Height: 100}); p.Width() != 200 || p.Err() != nil {
		t.Fatalf("explicit size: %v %v", p.Box(), p.Err())
	}
	if p := NewPage(Preset("B5")); !errors.Is(p.Err(), ErrUnknownPageSize) {
		t.Fatalf("unknown preset: %v", p.Err())
	}
	if p := NewPage(Size{}); !errors.Is(p.Err(), contentstream.ErrInvalidOperand) {
		t.Fatalf("empty size: %v", p.Err())
	}
	if p := NewPage(A4).SetRotation(45); !errors.Is(p.Err(), contentstream.ErrInvalidOperand) {
		t.Fatalf("rotation 45: %v", p.Err())
	}
}

func TestPagesFromAnotherDocument(t *testing.T) {
	a, b := New(), New()
	p := a.NewPage(A4)
	if err := b.AppendPage(p); !errors.Is(err, ErrUnsupportedOperation) {
		t.Fatalf("foreign page accepted: %v", err)
	}
	standalone := NewPage(A4)
	if err := b.AppendPage(standalone); err != nil {
		t.Fatalf("standalone page rejected: %v", err)
	}
}

func TestNamedDestinations(t *testing.T) {
	doc := sampleDocument(t)
	pages := doc.Pages()
	if err := doc.SetNamedDestination("shapes", pages[1]); err != nil {
		t.Fatal(err)
	}
	reloaded := parse(t, render(t, doc))
	if diff := cmp.Diff(map[string]int{"shapes": 1}, reloaded.Inspect().NamedDestinations); diff != "" {
		t.Fatalf("destinations (-want +got):\n%s", diff)
	}
	target, ok := reloaded.Destination("shapes")
	if !ok || target != reloaded.Pages()[1] {
		t.Fatalf("destination resolves to %v", target)
	}

	if err := reloaded.SetPages(reloaded.Pages()[:1]); err != nil {
		t.Fatal(err)
	}
	if got := reloaded.Inspect().NamedDestinations["shapes"]; got != -1 {
		t.Fatalf("destination to a removed page resolves to %d", got)
	}
	again := parse(t, render(t, reloaded))
	if diff := cmp.Diff([]string{"shapes"}, again.NamedDestinations()); diff != "" {
		t.Fatalf("destination not preserved (-want +got):\n%s", diff)
	}
	if again.PageCount() != 1 {
		t.Fatalf("page count %d", again.PageCount())
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.pdf")
	if err := sampleDocument(t).Save(context.Background(), path); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "out.pdf" {
		t.Fatalf("directory holds %v", entries)
	}
	doc, err := Load(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if doc.PageCount() != 2 {
		t.Fatalf("page count %d", doc.PageCount())
	}
	if _, err := Load(context.Background(), filepath.Join(dir, "missing.pdf")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing file: %v", err)
	}
}

func TestWriteTo(t *testing.T) {
	doc := sampleDocument(t, WithDeterministicID())
	var buf bytes.Buffer
	n, err := doc.WriteTo(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(buf.Len()) || !bytes.Equal(buf.Bytes(), render(t, doc)) {
		t.Fatalf("WriteTo and Render disagree")
	}
}

// directInfoFile builds a one-page file whose Info dictionary sits directly
// in the trailer.
func directInfoFile(title string) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n")
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>",
	}
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	start := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R /Info << /Title (%s) >> >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, title, start)
	return buf.Bytes()
}

func TestLoadOnlySaveKeepsLegacyInfoBytes(t *testing.T) {
	const title = "caf\xe9 \x9fx"
	loaded := parse(t, directInfoFile(title))
	if enc, _ := loaded.Properties().Encoding(metadata.KeyTitle); enc != metadata.EncodingLegacy {
		t.Fatalf("title encoding %v, want legacy", enc)
	}

	reloaded := parse(t, render(t, loaded))
	st := reloaded.Store()
	info := st.ResolveDict(st.Trailer().KV["Info"])
	if info == nil {
		t.Fatalf("Info dictionary lost")
	}
	got, ok := info.KV["Title"].(raw.StringObj)
	if !ok || !bytes.Equal(got.Bytes, []byte(title)) {
		t.Fatalf("title bytes %q, want %q", got.Bytes, title)
	}
	if v := reloaded.Properties().Value(metadata.KeyTitle); v != "caf\u00e9 \u0178x" {
		t.Fatalf("title decoded as %q", v)
	}
}

func TestUnmodifiedLoadRendersLoadedBytes(t *testing.T) {
	data := render(t, sampleDocument(t))
	out := render(t, parse(t, data))
	if !bytes.Equal(out, data) {
		t.Fatalf("unchanged document grew by %d bytes:\n%s", len(out)-len(data), out[min(len(data), len(out)):])
	}
}

func TestFailedSetFontRegistersNothing(t *testing.T) {
	helv := fonts.MustFont(fonts.Helvetica)
	loaded := parse(t, render(t, sampleDocument(t)))
	p := loaded.Pages()[0]
	p.SetFont(helv, 0)
	if !errors.Is(p.Err(), contentstream.ErrInvalidOperand) {
		t.Fatalf("zero font size accepted: %v", p.Err())
	}
	if p.changed || len(p.Fonts()) != 0 {
		t.Fatalf("failed SetFont registered %v (changed=%v)", p.Fonts(), p.changed)
	}
}
