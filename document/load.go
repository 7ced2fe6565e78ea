package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfengine/contentstream"
	"github.com/wudi/pdfengine/coords"
	"github.com/wudi/pdfengine/fonts"
	"github.com/wudi/pdfengine/ir/raw"
	"github.com/wudi/pdfengine/metadata"
	"github.com/wudi/pdfengine/observability"
	"github.com/wudi/pdfengine/parser"
	"github.com/wudi/pdfengine/resources"
	"github.com/wudi/pdfengine/store"
)

// Parse reads a document from data. The bytes are kept as the base of
// later incremental updates and must not be modified by the caller.
func Parse(ctx context.Context, data []byte, opts ...Option) (*Document, error) {
	cfg := newConfig(opts)
	ctx, span := cfg.Tracer.StartSpan(ctx, observability.SpanLoad)
	defer span.Finish()
	span.SetTag(observability.TagBytes, len(data))

	st, err := store.Load(ctx, data, cfg.store())
	if err != nil {
		span.SetError(err)
		if errors.Is(err, parser.ErrEncrypted) {
			err = fmt.Errorf("%w: %w", ErrUnsupportedOperation, err)
		}
		return nil, &Error{Op: "parse", Err: err}
	}
	d := newDocument(cfg, st)
	d.loaded = true
	if err := d.read(ctx); err != nil {
		span.SetError(err)
		return nil, &Error{Op: "parse", Err: err}
	}
	span.SetTag(observability.TagPageCount, len(d.pages))
	span.SetTag(observability.TagObjectCount, st.Len())
	if st.Repaired() {
		cfg.Logger.Warn("document was repaired while loading; saves rewrite the whole file")
	}
	cfg.Logger.Info("document loaded",
		observability.Int("pages", len(d.pages)),
		observability.Int("revisions", st.Revisions()),
		observability.String("version", st.Version()),
		observability.Bool("repaired", st.Repaired()))
	return d, nil
}

func (d *Document) read(ctx context.Context) error {
	st := d.store
	rootRef, ok := st.TrailerRef("Root")
	if !ok {
		return fmt.Errorf("%w: /Root is not a reference", store.ErrCorruptDocument)
	}
	catalog := st.ResolveDict(raw.RefTo(rootRef))
	if catalog == nil {
		return fmt.Errorf("%w: catalog %s is not a dictionary", store.ErrCorruptDocument, rootRef)
	}
	d.catalog = rootRef
	pagesRef, ok := catalog.KV["Pages"].(raw.RefObj)
	if !ok {
		return fmt.Errorf("%w: catalog has no /Pages reference", store.ErrCorruptDocument)
	}
	d.pagesRoot = pagesRef.R

	flat, err := resources.Flatten(ctx, st, pagesRef, d.cfg.Limits.MaxPageTreeDepth)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("%w: %w", store.ErrCorruptDocument, err)
	}
	byRef := make(map[raw.ObjectRef]*Page, len(flat))
	for _, fp := range flat {
		p := d.loadPage(fp)
		d.pages = append(d.pages, p)
		d.tree = append(d.tree, p.ref)
		byRef[p.ref] = p
	}

	if infoObj, ok := st.Trailer().KV["Info"]; ok {
		if ref, isRef := infoObj.(raw.RefObj); isRef {
			d.info = ref.R
		}
		if info := st.ResolveDict(infoObj); info != nil {
			d.props = metadata.FromInfo(info, d.resolve)
		}
	}

	if mdObj, ok := catalog.KV["Metadata"]; ok {
		data, err := d.streamData(ctx, mdObj)
		if err != nil {
			d.cfg.Logger.Warn("unreadable XMP metadata stream", observability.Error("error", err))
		} else {
			d.xmp = data
			if ref, isRef := mdObj.(raw.RefObj); isRef {
				d.xmpRef = ref.R
			}
		}
	}

	d.readDestinations(catalog, byRef)
	return nil
}

func (d *Document) loadPage(fp resources.Page) *Page {
	p := &Page{
		doc:   d,
		ref:   fp.Ref,
		b:     contentstream.NewBuilder(),
		fonts: make(map[string]*fonts.Font),
		src:   fp.Dict,
	}
	p.addr = p
	p.box = coords.Rect{URX: presets[Letter].Width, URY: presets[Letter].Height}
	if fp.Attrs.MediaBox != nil {
		p.box = *fp.Attrs.MediaBox
	}
	if fp.Attrs.CropBox != nil {
		cb := *fp.Attrs.CropBox
		p.cropBox = &cb
	}
	if fp.Attrs.Rotate != nil {
		p.rotate = ((*fp.Attrs.Rotate % 360) + 360) % 360
	}
	if parent, ok := fp.Dict.KV["Parent"].(raw.RefObj); ok {
		p.parent = parent.R
	}
	p.resources = resources.Materialize(d.store, fp.Attrs)
	p.contents = d.contentItems(fp.Dict.KV["Contents"])
	return p
}

// contentItems lists the content streams of a page in order.
func (d *Document) contentItems(obj raw.Object) []raw.Object {
	if obj == nil {
		return nil
	}
	switch v := d.resolve(obj).(type) {
	case *raw.StreamObj:
		return []raw.Object{obj}
	case *raw.ArrayObj:
		var items []raw.Object
		for _, it := range v.Items {
			if _, ok := d.resolve(it).(*raw.StreamObj); ok {
				items = append(items, it)
			}
		}
		return items
	}
	return nil
}

// readDestinations collects named destinations from the catalog /Dests
// dictionary and the /Names /Dests name tree.
func (d *Document) readDestinations(catalog *raw.DictObj, byRef map[raw.ObjectRef]*Page) {
	add := func(name string, value raw.Object) {
		dest := &destination{raw: value}
		target := d.resolve(value)
		if dict, ok := target.(*raw.DictObj); ok {
			target = d.resolve(dict.KV["D"])
		}
		if arr, ok := target.(*raw.ArrayObj); ok && arr.Len() > 0 {
			if ref, ok := arr.Items[0].(raw.RefObj); ok {
				dest.page = byRef[ref.R]
			}
		}
		d.dests[name] = dest
	}
	if dests := d.store.ResolveDict(catalog.KV["Dests"]); dests != nil {
		for _, name := range dests.SortedKeys() {
			add(name, dests.KV[name])
		}
	}
	if names := d.store.ResolveDict(catalog.KV["Names"]); names != nil {
		d.walkNameTree(names.KV["Dests"], add, 0, map[raw.ObjectRef]bool{})
	}
}

func (d *Document) walkNameTree(node raw.Object, add func(string, raw.Object), depth int, seen map[raw.ObjectRef]bool) {
	if node == nil || depth > d.cfg.Limits.MaxPageTreeDepth {
		return
	}
	if ref, ok := node.(raw.RefObj); ok {
		if seen[ref.R] {
			return
		}
		seen[ref.R] = true
	}
	dict := d.store.ResolveDict(node)
	if dict == nil {
		return
	}
	if arr, ok := d.resolve(dict.KV["Names"]).(*raw.ArrayObj); ok {
		for i := 0; i+1 < arr.Len(); i += 2 {
			key, ok := d.resolve(arr.Items[i]).(raw.StringObj)
			if !ok {
				continue
			}
			name, _ := metadata.DecodeText(key.Bytes)
			add(name, arr.Items[i+1])
		}
	}
	if kids, ok := d.resolve(dict.KV["Kids"]).(*raw.ArrayObj); ok {
		for _, kid := range kids.Items {
			d.walkNameTree(kid, add, depth+1, seen)
		}
	}
}
