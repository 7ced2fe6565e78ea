// Package resources walks a page tree and resolves the attributes a page
// inherits from its ancestors.
package resources

import (
	"context"
	"errors"
	"fmt"

	"github.com/wudi/pdfengine/coords"
	"github.com/wudi/pdfengine/ir/raw"
)

type ResourceCategory string

const (
	CategoryFont       ResourceCategory = "Font"
	CategoryXObject    ResourceCategory = "XObject"
	CategoryExtGState  ResourceCategory = "ExtGState"
	CategoryColorSpace ResourceCategory = "ColorSpace"
	CategoryPattern    ResourceCategory = "Pattern"
	CategoryShading    ResourceCategory = "Shading"
	CategoryProperties ResourceCategory = "Properties"
)

var (
	ErrResourceNotFound = errors.New("resources: resource not found")
	ErrPageTree         = errors.New("resources: malformed page tree")
)

// Resolver follows indirect references. *store.Store satisfies it.
type Resolver interface {
	Resolve(obj raw.Object) (raw.Object, error)
}

// Scope is one level of the page tree as seen from a page.
type Scope interface {
	LocalResources() *raw.DictObj
	ParentScope() Scope
}

type nodeScope struct {
	resources *raw.DictObj
	parent    Scope
}

func (s *nodeScope) LocalResources() *raw.DictObj { return s.resources }
func (s *nodeScope) ParentScope() Scope           { return s.parent }

// Attributes are the inheritable page attributes after resolution. Zero
// pointers mean neither the page nor an ancestor sets the attribute.
type Attributes struct {
	Resources *raw.DictObj
	MediaBox  *coords.Rect
	CropBox   *coords.Rect
	Rotate    *int
}

// Page is a leaf of the page tree.
type Page struct {
	Ref   raw.ObjectRef
	Dict  *raw.DictObj
	Attrs Attributes
	Scope Scope
}

// Flatten returns the pages under root in document order. Nodes are
// visited once; a kid that points back into its own ancestry fails with
// ErrPageTree, as does a tree deeper than maxDepth.
func Flatten(ctx context.Context, r Resolver, root raw.Object, maxDepth int) ([]Page, error) {
	w := &walker{r: r, maxDepth: maxDepth, onPath: map[raw.ObjectRef]bool{}}
	if err := w.walk(ctx, root, Attributes{}, nil, 0); err != nil {
		return nil, err
	}
	return w.pages, nil
}

type walker struct {
	r        Resolver
	maxDepth int
	onPath   map[raw.ObjectRef]bool
	pages    []Page
}

func (w *walker) walk(ctx context.Context, obj raw.Object, inherited Attributes, parent Scope, depth int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if depth > w.maxDepth {
		return fmt.Errorf("%w: deeper than %d levels", ErrPageTree, w.maxDepth)
	}
	var ref raw.ObjectRef
	if rv, ok := obj.(raw.RefObj); ok {
		ref = rv.R
		if w.onPath[ref] {
			return fmt.Errorf("%w: cycle at %s", ErrPageTree, ref)
		}
		w.onPath[ref] = true
		defer delete(w.onPath, ref)
	}
	resolved, err := w.r.Resolve(obj)
	if err != nil {
		return err
	}
	dict, ok := resolved.(*raw.DictObj)
	if !ok {
		return fmt.Errorf("%w: node %s is %T", ErrPageTree, ref, resolved)
	}

	attrs := w.merge(dict, inherited)
	scope := &nodeScope{resources: w.dict(dict.KV["Resources"]), parent: parent}

	kids, hasKids := dict.KV["Kids"]
	isPage := raw.NameOf(dict.KV["Type"]) == "Page" || (!hasKids && raw.NameOf(dict.KV["Type"]) != "Pages")
	if isPage {
		w.pages = append(w.pages, Page{Ref: ref, Dict: dict, Attrs: attrs, Scope: scope})
		return nil
	}
	arrObj, err := w.r.Resolve(kids)
	if err != nil {
		return err
	}
	arr, ok := arrObj.(*raw.ArrayObj)
	if !ok {
		return fmt.Errorf("%w: /Kids of %s is %T", ErrPageTree, ref, arrObj)
	}
	for _, kid := range arr.Items {
		if err := w.walk(ctx, kid, attrs, scope, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) dict(obj raw.Object) *raw.DictObj {
	if obj == nil {
		return nil
	}
	v, err := w.r.Resolve(obj)
	if err != nil {
		return nil
	}
	d, _ := v.(*raw.DictObj)
	return d
}

func (w *walker) merge(dict *raw.DictObj, inherited Attributes) Attributes {
	out := inherited
	if res := w.dict(dict.KV["Resources"]); res != nil {
		out.Resources = res
	}
	if r, ok := w.rect(dict.KV["MediaBox"]); ok {
		out.MediaBox = &r
	}
	if r, ok := w.rect(dict.KV["CropBox"]); ok {
		out.CropBox = &r
	}
	if v, err := w.r.Resolve(dict.KV["Rotate"]); err == nil {
		if n, ok := raw.IntOf(v); ok {
			rot := int(n)
			out.Rotate = &rot
		}
	}
	return out
}

func (w *walker) rect(obj raw.Object) (coords.Rect, bool) {
	if obj == nil {
		return coords.Rect{}, false
	}
	v, err := w.r.Resolve(obj)
	if err != nil {
		return coords.Rect{}, false
	}
	arr, ok := v.(*raw.ArrayObj)
	if !ok || arr.Len() != 4 {
		return coords.Rect{}, false
	}
	var n [4]float64
	for i, it := range arr.Items {
		iv, err := w.r.Resolve(it)
		if err != nil {
			return coords.Rect{}, false
		}
		f, ok := raw.FloatOf(iv)
		if !ok {
			return coords.Rect{}, false
		}
		n[i] = f
	}
	return coords.Rect{LLX: n[0], LLY: n[1], URX: n[2], URY: n[3]}, true
}

// ResolveWithInheritance looks name up in the category subdictionary of
// each scope from the page upward and returns the first entry found.
func ResolveWithInheritance(ctx context.Context, r Resolver, category ResourceCategory, name string, scope Scope) (raw.Object, error) {
	for ; scope != nil; scope = scope.ParentScope() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res := scope.LocalResources()
		if res == nil {
			continue
		}
		sub, err := r.Resolve(res.KV[string(category)])
		if err != nil {
			return nil, err
		}
		d, ok := sub.(*raw.DictObj)
		if !ok {
			continue
		}
		if v, ok := d.KV[name]; ok {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrResourceNotFound, category, name)
}

// Materialize returns a new resource dictionary holding every category of
// the effective resources, so that a page can be moved under a different
// parent. Category subdictionaries are copied one level deep; their
// entries keep pointing at the same objects.
func Materialize(r Resolver, attrs Attributes) *raw.DictObj {
	out := raw.Dict()
	if attrs.Resources == nil {
		return out
	}
	for _, k := range attrs.Resources.SortedKeys() {
		v := attrs.Resources.KV[k]
		sub, err := r.Resolve(v)
		if err != nil {
			continue
		}
		if d, ok := sub.(*raw.DictObj); ok {
			cp := raw.Dict()
			for kk, vv := range d.KV {
				cp.KV[kk] = vv
			}
			out.KV[k] = cp
			continue
		}
		out.KV[k] = raw.DeepCopy(sub)
	}
	return out
}

// Register adds entry under name in the category subdictionary of res,
// creating the subdictionary when needed. An indirect subdictionary is
// replaced by a direct copy first so that the shared original stays
// untouched.
func Register(r Resolver, res *raw.DictObj, category ResourceCategory, name string, entry raw.Object) {
	key := string(category)
	var sub *raw.DictObj
	if v, ok := res.KV[key]; ok {
		resolved, err := r.Resolve(v)
		if d, isDict := resolved.(*raw.DictObj); err == nil && isDict {
			if _, indirect := v.(raw.RefObj); indirect {
				cp := raw.Dict()
				for k, vv := range d.KV {
					cp.KV[k] = vv
				}
				d = cp
			}
			sub = d
		}
	}
	if sub == nil {
		sub = raw.Dict()
	}
	sub.KV[name] = entry
	res.KV[key] = sub
}
