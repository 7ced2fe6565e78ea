package resources

import (
	"context"
	"errors"
	"testing"

	"github.com/wudi/pdfengine/coords"
	"github.com/wudi/pdfengine/ir/raw"
)

type mapResolver map[raw.ObjectRef]raw.Object

func (m mapResolver) Resolve(obj raw.Object) (raw.Object, error) {
	for i := 0; i < 8; i++ {
		ref, ok := obj.(raw.RefObj)
		if !ok {
			return obj, nil
		}
		next, found := m[ref.R]
		if !found {
			return raw.NullObj{}, nil
		}
		obj = next
	}
	return nil, errors.New("too deep")
}

func dict(kv map[string]raw.Object) *raw.DictObj {
	d := raw.Dict()
	for k, v := range kv {
		d.Put(k, v)
	}
	return d
}

// tree builds Pages(1) -> [Page(3), Pages(2) -> [Page(4)]] with fonts and
// a media box on the root and a rotation on the intermediate node.
func tree() mapResolver {
	fonts := dict(map[string]raw.Object{"F1": raw.Ref(10, 0)})
	return mapResolver{
		{Num: 1}: dict(map[string]raw.Object{
			"Type":      raw.NameLiteral("Pages"),
			"Kids":      raw.NewArray(raw.Ref(3, 0), raw.Ref(2, 0)),
			"MediaBox":  raw.Rect(0, 0, 595, 842),
			"Resources": dict(map[string]raw.Object{"Font": raw.Ref(9, 0)}),
		}),
		{Num: 2}: dict(map[string]raw.Object{
			"Type":   raw.NameLiteral("Pages"),
			"Kids":   raw.NewArray(raw.Ref(4, 0)),
			"Rotate": raw.NumberInt(90),
		}),
		{Num: 3}: dict(map[string]raw.Object{
			"Type":     raw.NameLiteral("Page"),
			"MediaBox": raw.Rect(0, 0, 612, 792),
		}),
		{Num: 4}:  dict(map[string]raw.Object{"Type": raw.NameLiteral("Page")}),
		{Num: 9}:  fonts,
		{Num: 10}: dict(map[string]raw.Object{"Type": raw.NameLiteral("Font")}),
	}
}

func TestFlattenInheritsAttributes(t *testing.T) {
	r := tree()
	pages, err := Flatten(context.Background(), r, raw.Ref(1, 0), 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(pages) != 2 || pages[0].Ref.Num != 3 || pages[1].Ref.Num != 4 {
		t.Fatalf("pages %+v", pages)
	}
	if *pages[0].Attrs.MediaBox != (coords.Rect{URX: 612, URY: 792}) {
		t.Fatalf("own media box not preferred: %+v", pages[0].Attrs.MediaBox)
	}
	if *pages[1].Attrs.MediaBox != (coords.Rect{URX: 595, URY: 842}) {
		t.Fatalf("inherited media box %+v", pages[1].Attrs.MediaBox)
	}
	if pages[0].Attrs.Rotate != nil || *pages[1].Attrs.Rotate != 90 {
		t.Fatalf("rotate inheritance wrong")
	}
	if pages[1].Attrs.Resources == nil {
		t.Fatalf("resources not inherited")
	}
}

func TestResolveWithInheritance(t *testing.T) {
	r := tree()
	pages, err := Flatten(context.Background(), r, raw.Ref(1, 0), 8)
	if err != nil {
		t.Fatal(err)
	}
	obj, err := ResolveWithInheritance(context.Background(), r, CategoryFont, "F1", pages[1].Scope)
	if err != nil {
		t.Fatal(err)
	}
	if ref, ok := obj.(raw.RefObj); !ok || ref.R.Num != 10 {
		t.Fatalf("resolved %v", obj)
	}
	if _, err := ResolveWithInheritance(context.Background(), r, CategoryFont, "F2", pages[1].Scope); !errors.Is(err, ErrResourceNotFound) {
		t.Fatalf("expected ErrResourceNotFound, got %v", err)
	}
}

func TestFlattenRejectsCyclesAndDepth(t *testing.T) {
	r := tree()
	r[raw.ObjectRef{Num: 2}].(*raw.DictObj).Put("Kids", raw.NewArray(raw.Ref(1, 0)))
	if _, err := Flatten(context.Background(), r, raw.Ref(1, 0), 8); !errors.Is(err, ErrPageTree) {
		t.Fatalf("expected ErrPageTree for cycle, got %v", err)
	}
	if _, err := Flatten(context.Background(), tree(), raw.Ref(1, 0), 0); !errors.Is(err, ErrPageTree) {
		t.Fatalf("expected ErrPageTree for depth, got %v", err)
	}
}

func TestMaterializeAndRegister(t *testing.T) {
	r := tree()
	pages, err := Flatten(context.Background(), r, raw.Ref(1, 0), 8)
	if err != nil {
		t.Fatal(err)
	}
	res := Materialize(r, pages[1].Attrs)
	Register(r, res, CategoryFont, "HeBo", raw.Ref(11, 0))

	fonts := res.KV["Font"].(*raw.DictObj)
	if _, ok := fonts.KV["F1"]; !ok {
		t.Fatalf("inherited font lost")
	}
	if _, ok := fonts.KV["HeBo"]; !ok {
		t.Fatalf("registered font missing")
	}
	if _, ok := r[raw.ObjectRef{Num: 9}].(*raw.DictObj).KV["HeBo"]; ok {
		t.Fatalf("shared font dictionary was modified")
	}
}
