package document

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/wudi/pdfengine/ir/raw"
	"github.com/wudi/pdfengine/observability"
	"github.com/wudi/pdfengine/resources"
	"github.com/wudi/pdfengine/writer"
)

// Render serializes the document. Loaded documents are saved as an
// incremental update of the loaded bytes unless WithFullRewrite was given
// or the file had to be repaired; new documents are written in full.
func (d *Document) Render(ctx context.Context) ([]byte, error) {
	var buf bytes.Buffer
	if err := d.render(ctx, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteTo renders the document into w.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	data, err := d.Render(context.Background())
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

// Save renders the document and replaces the file at path. The bytes go to
// a temporary file in the same directory first, so a failed save leaves
// any existing file untouched.
func (d *Document) Save(ctx context.Context, path string) error {
	ctx, span := d.cfg.Tracer.StartSpan(ctx, observability.SpanSave)
	defer span.Finish()
	data, err := d.Render(ctx)
	if err != nil {
		span.SetError(err)
		return err
	}
	span.SetTag(observability.TagBytes, len(data))
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return &Error{Op: "save", Err: err}
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return &Error{Op: "save", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)
		return &Error{Op: "save", Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return &Error{Op: "save", Err: err}
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return &Error{Op: "save", Err: err}
	}
	return nil
}

func (d *Document) render(ctx context.Context, w io.Writer) error {
	ctx, span := d.cfg.Tracer.StartSpan(ctx, observability.SpanRender)
	defer span.Finish()

	for i, p := range d.pages {
		if err := p.Err(); err != nil {
			span.SetError(err)
			return &Error{Op: "render", Err: fmt.Errorf("page %d: %w", i+1, err)}
		}
	}
	if d.catalog.IsZero() {
		d.catalog = d.store.Alloc()
		d.pagesRoot = d.store.Alloc()
	}

	refs := make([]raw.ObjectRef, len(d.pages))
	for i, p := range d.pages {
		if _, ok := d.store.Get(p.ref); p.ref.IsZero() || (!ok && p.src != nil) {
			p.ref = d.store.Alloc()
			p.changed = true
		}
		refs[i] = p.ref
	}
	_, haveRoot := d.store.Get(d.pagesRoot)
	rebuild := !haveRoot || !sameRefs(refs, d.tree)

	for _, p := range d.pages {
		if rebuild {
			p.parent = d.pagesRoot
		}
		if err := d.writePage(p, rebuild); err != nil {
			span.SetError(err)
			return &Error{Op: "render", Err: err}
		}
	}
	if rebuild {
		if err := d.writePageTree(refs); err != nil {
			return &Error{Op: "render", Err: err}
		}
	}
	if err := d.writeInfo(); err != nil {
		return &Error{Op: "render", Err: err}
	}
	if err := d.writeCatalog(); err != nil {
		return &Error{Op: "render", Err: err}
	}

	var (
		res         writer.Result
		err         error
		incremental = d.store.CanAppend() && !d.cfg.FullRewrite
	)
	if incremental {
		res, err = d.store.WriteIncremental(ctx, w, d.catalog, d.info)
	} else {
		res, err = d.store.WriteFull(ctx, w, d.catalog, d.info)
	}
	if err != nil {
		span.SetError(err)
		return &Error{Op: "render", Err: err}
	}
	d.tree = refs
	span.SetTag(observability.TagIncremental, incremental)
	span.SetTag(observability.TagPageCount, len(d.pages))
	d.cfg.Logger.Info("document rendered",
		observability.Int("pages", len(d.pages)),
		observability.Bool("incremental", incremental),
		observability.Bool("page_tree_rebuilt", rebuild),
		observability.Int64("startxref", res.StartXRef))
	return nil
}

func sameRefs(a, b []raw.ObjectRef) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// writePageTree replaces the page tree with a single /Pages node holding
// every page, and frees loaded pages that left the sequence.
func (d *Document) writePageTree(refs []raw.ObjectRef) error {
	node := raw.Dict()
	if old := d.store.ResolveDict(raw.RefTo(d.pagesRoot)); old != nil {
		for k, v := range old.KV {
			node.KV[k] = v
		}
	}
	kids := raw.NewArray()
	kept := make(map[raw.ObjectRef]bool, len(refs))
	for _, ref := range refs {
		kids.Append(raw.RefTo(ref))
		kept[ref] = true
	}
	node.Put("Type", raw.NameLiteral("Pages"))
	node.Put("Kids", kids)
	node.Put("Count", raw.NumberInt(int64(len(refs))))
	node.Delete("Parent")
	if err := d.store.Set(d.pagesRoot, node); err != nil {
		return err
	}
	for _, ref := range d.tree {
		if !kept[ref] && !ref.IsZero() {
			d.store.Delete(ref)
		}
	}
	return nil
}

// writePage stores the page dictionary and its content streams. Loaded
// pages that are unchanged and keep their place in the tree are left alone.
func (d *Document) writePage(p *Page, rebuild bool) error {
	if p.src != nil && !rebuild && !p.changed && p.b.Len() == 0 {
		return nil
	}
	dict := raw.Dict()
	if p.src != nil {
		for k, v := range p.src.KV {
			dict.KV[k] = v
		}
		if p.changed && !d.store.IsOriginal(p.ref) {
			// A clone must not share annotations with its source.
			dict.Delete("Annots")
			dict.Delete("StructParents")
		}
	}
	dict.Put("Type", raw.NameLiteral("Page"))
	parent := p.parent
	if parent.IsZero() {
		parent = d.pagesRoot
	}
	dict.Put("Parent", raw.RefTo(parent))
	dict.Put("MediaBox", raw.Rect(p.box.LLX, p.box.LLY, p.box.URX, p.box.URY))
	if p.cropBox != nil {
		dict.Put("CropBox", raw.Rect(p.cropBox.LLX, p.cropBox.LLY, p.cropBox.URX, p.cropBox.URY))
	}
	if p.rotate != 0 {
		dict.Put("Rotate", raw.NumberInt(int64(p.rotate)))
	} else {
		dict.Delete("Rotate")
	}

	res := raw.Dict()
	if p.resources != nil {
		res = resources.Materialize(d.store, resources.Attributes{Resources: p.resources})
	}
	for _, name := range p.Fonts() {
		resources.Register(d.store, res, resources.CategoryFont, name, raw.RefTo(d.fontRef(p.fonts[name])))
	}
	dict.Put("Resources", res)

	contents, err := d.writeContents(p)
	if err != nil {
		return err
	}
	if contents != nil {
		dict.Put("Contents", contents)
	} else {
		dict.Delete("Contents")
	}
	return d.store.Set(p.ref, dict)
}

// writeContents stores the page's new operators. Original streams are kept
// and wrapped in q/Q so that state they leave behind does not leak into
// the new content.
func (d *Document) writeContents(p *Page) (raw.Object, error) {
	if p.b.Len() == 0 {
		switch len(p.contents) {
		case 0:
			return nil, nil
		case 1:
			return p.contents[0], nil
		}
		return raw.NewArray(p.contents...), nil
	}
	data := p.b.Bytes()
	if len(p.contents) == 0 {
		ref, err := d.setStream(&p.streams[1], data)
		if err != nil {
			return nil, err
		}
		return raw.RefTo(ref), nil
	}
	open, err := d.setStream(&p.streams[0], []byte("q\n"))
	if err != nil {
		return nil, err
	}
	closing, err := d.setStream(&p.streams[1], append([]byte("Q\n"), data...))
	if err != nil {
		return nil, err
	}
	arr := raw.NewArray(raw.RefTo(open))
	arr.Items = append(arr.Items, p.contents...)
	arr.Append(raw.RefTo(closing))
	return arr, nil
}

func (d *Document) setStream(ref *raw.ObjectRef, data []byte) (raw.ObjectRef, error) {
	if ref.IsZero() {
		*ref = d.store.Alloc()
	}
	return *ref, d.store.Set(*ref, raw.NewStream(raw.Dict(), data))
}

// writeInfo stores the Info dictionary when a property was written. An
// Info dictionary stored directly in the trailer is moved into an object.
func (d *Document) writeInfo() error {
	if !d.props.Dirty() && !(d.info.IsZero() && d.props.Len() > 0) {
		return nil
	}
	if d.info.IsZero() {
		d.info = d.store.Alloc()
	}
	if trailer := d.store.Trailer(); trailer != nil && !d.props.Dirty() {
		// Only the location changes; the loaded values keep their bytes.
		if direct, ok := trailer.KV["Info"].(*raw.DictObj); ok {
			return d.store.Set(d.info, raw.DeepCopy(direct))
		}
	}
	return d.store.Set(d.info, d.props.Info())
}

func (d *Document) writeCatalog() error {
	catalog := d.store.ResolveDict(raw.RefTo(d.catalog))
	changed := false
	if catalog == nil {
		catalog = raw.Dict()
		catalog.Put("Type", raw.NameLiteral("Catalog"))
		catalog.Put("Pages", raw.RefTo(d.pagesRoot))
		changed = true
	}
	if d.xmpDirty {
		if d.xmpRef.IsZero() {
			d.xmpRef = d.store.Alloc()
		}
		md := raw.Dict()
		md.Put("Type", raw.NameLiteral("Metadata"))
		md.Put("Subtype", raw.NameLiteral("XML"))
		if err := d.store.Set(d.xmpRef, raw.NewStream(md, d.xmp)); err != nil {
			return err
		}
		catalog.Put("Metadata", raw.RefTo(d.xmpRef))
		changed = true
	}
	if d.destsDirty {
		d.putDestinations(catalog)
		changed = true
	}
	if !changed {
		return nil
	}
	return d.store.Set(d.catalog, catalog)
}

// putDestinations writes every named destination into the catalog /Dests
// dictionary and drops the /Names /Dests tree it replaces.
func (d *Document) putDestinations(catalog *raw.DictObj) {
	inDoc := make(map[*Page]bool, len(d.pages))
	for _, p := range d.pages {
		inDoc[p] = true
	}
	dests := raw.Dict()
	for _, name := range d.NamedDestinations() {
		dest := d.dests[name]
		switch {
		case dest.raw != nil:
			dests.Put(name, dest.raw)
		case inDoc[dest.page]:
			dests.Put(name, raw.NewArray(raw.RefTo(dest.page.ref), raw.NameLiteral("Fit")))
		default:
			d.cfg.Logger.Warn("named destination points at a page outside the document",
				observability.String("name", name))
		}
	}
	if dests.Len() > 0 {
		catalog.Put("Dests", dests)
	} else {
		catalog.Delete("Dests")
	}
	if names := d.store.ResolveDict(catalog.KV["Names"]); names != nil {
		if _, ok := names.KV["Dests"]; ok {
			cp := raw.Dict()
			for k, v := range names.KV {
				if k != "Dests" {
					cp.KV[k] = v
				}
			}
			if cp.Len() > 0 {
				catalog.Put("Names", cp)
			} else {
				catalog.Delete("Names")
			}
		}
	}
}
