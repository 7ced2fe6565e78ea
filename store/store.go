// Package store holds the indirect objects of one document and tracks which
// of them changed since the file was loaded.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/wudi/pdfengine/ir/raw"
	"github.com/wudi/pdfengine/observability"
	"github.com/wudi/pdfengine/parser"
	"github.com/wudi/pdfengine/recovery"
	"github.com/wudi/pdfengine/security"
	"github.com/wudi/pdfengine/writer"
)

var (
	// ErrCorruptDocument reports a file whose cross-reference data or
	// objects cannot be read.
	ErrCorruptDocument = errors.New("store: corrupt document")
	// ErrInvariantViolation reports an internal inconsistency detected while
	// saving, such as two objects claiming one number.
	ErrInvariantViolation = errors.New("store: invariant violation")
)

type Config struct {
	Recovery recovery.Strategy
	Limits   security.Limits
	Logger   observability.Logger
	Writer   writer.Config
}

func (c Config) withDefaults() Config {
	c.Limits = c.Limits.WithDefaults()
	if c.Logger == nil {
		c.Logger = observability.NopLogger{}
	}
	return c
}

// Store is an arena of indirect objects keyed by number and generation.
// It is not safe for concurrent use.
type Store struct {
	cfg     Config
	objects map[raw.ObjectRef]raw.Object
	next    int

	// original holds the refs present in the loaded file; dirty the refs
	// set or touched since then. freed maps deleted original numbers to the
	// generation a reuse would carry.
	original map[raw.ObjectRef]bool
	dirty    map[raw.ObjectRef]bool
	freed    map[int]int

	base      []byte
	trailer   *raw.DictObj
	version   string
	startXRef int64
	size      int
	revisions int
	repaired  bool
	id        [2][]byte
}

// New returns an empty store.
func New(cfg Config) *Store {
	return &Store{
		cfg:      cfg.withDefaults(),
		objects:  make(map[raw.ObjectRef]raw.Object),
		next:     1,
		original: make(map[raw.ObjectRef]bool),
		dirty:    make(map[raw.ObjectRef]bool),
		freed:    make(map[int]int),
		trailer:  raw.Dict(),
		version:  string(writer.PDF17),
	}
}

// Load parses data and keeps it as the base for incremental updates.
func Load(ctx context.Context, data []byte, cfg Config) (*Store, error) {
	s := New(cfg)
	p := parser.NewDocumentParser(parser.Config{
		Recovery: s.cfg.Recovery,
		Limits:   s.cfg.Limits,
		Logger:   s.cfg.Logger,
	})
	doc, err := p.Parse(ctx, bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, parser.ErrEncrypted) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrCorruptDocument, err)
	}
	if _, ok := doc.Trailer.Lookup("Root"); !ok {
		return nil, fmt.Errorf("%w: trailer has no /Root", ErrCorruptDocument)
	}

	for ref, obj := range doc.Objects {
		s.objects[ref] = obj
		s.original[ref] = true
		if ref.Num >= s.next {
			s.next = ref.Num + 1
		}
	}
	if doc.Size > s.next {
		s.next = doc.Size
	}
	s.base = data
	s.trailer = doc.Trailer
	s.version = doc.Version
	s.startXRef = doc.StartXRef
	s.size = doc.Size
	s.revisions = doc.Revisions
	s.repaired = doc.Repaired
	if arr, ok := doc.Trailer.KV["ID"].(*raw.ArrayObj); ok && arr.Len() == 2 {
		for i := 0; i < 2; i++ {
			if str, ok := arr.Items[i].(raw.StringObj); ok {
				s.id[i] = str.Bytes
			}
		}
	}
	s.cfg.Logger.Debug("store loaded",
		observability.Int("objects", len(s.objects)),
		observability.Int("revisions", s.revisions),
		observability.Bool("repaired", s.repaired))
	return s, nil
}

// Alloc reserves a fresh object number with generation 0.
func (s *Store) Alloc() raw.ObjectRef {
	ref := raw.ObjectRef{Num: s.next}
	s.next++
	return ref
}

// Add stores obj under a fresh number.
func (s *Store) Add(obj raw.Object) raw.ObjectRef {
	ref := s.Alloc()
	s.objects[ref] = obj
	s.dirty[ref] = true
	return ref
}

// Set replaces the object stored under ref and marks it modified.
func (s *Store) Set(ref raw.ObjectRef, obj raw.Object) error {
	if ref.Num <= 0 {
		return fmt.Errorf("%w: object number %d", ErrInvariantViolation, ref.Num)
	}
	if obj == nil {
		obj = raw.NullObj{}
	}
	s.objects[ref] = obj
	s.dirty[ref] = true
	delete(s.freed, ref.Num)
	if ref.Num >= s.next {
		s.next = ref.Num + 1
	}
	return nil
}

// Touch marks an object modified after its value was changed in place.
func (s *Store) Touch(ref raw.ObjectRef) {
	if _, ok := s.objects[ref]; ok {
		s.dirty[ref] = true
	}
}

// Get returns the object stored under ref.
func (s *Store) Get(ref raw.ObjectRef) (raw.Object, bool) {
	obj, ok := s.objects[ref]
	return obj, ok
}

// Resolve follows references until a direct object is reached. A reference
// to a missing object resolves to null.
func (s *Store) Resolve(obj raw.Object) (raw.Object, error) {
	for depth := 0; ; depth++ {
		ref, ok := obj.(raw.RefObj)
		if !ok {
			return obj, nil
		}
		if depth >= s.cfg.Limits.MaxIndirectDepth {
			return nil, fmt.Errorf("%w: reference chain at %s deeper than %d", ErrCorruptDocument, ref.R, s.cfg.Limits.MaxIndirectDepth)
		}
		next, found := s.objects[ref.R]
		if !found {
			return raw.NullObj{}, nil
		}
		obj = next
	}
}

// ResolveDict resolves obj and returns it when it is a dictionary.
func (s *Store) ResolveDict(obj raw.Object) *raw.DictObj {
	v, err := s.Resolve(obj)
	if err != nil {
		return nil
	}
	switch d := v.(type) {
	case *raw.DictObj:
		return d
	case *raw.StreamObj:
		return d.Dict
	}
	return nil
}

// Delete removes ref. Numbers that exist in the loaded file are written as
// free entries by the next incremental update.
func (s *Store) Delete(ref raw.ObjectRef) {
	if _, ok := s.objects[ref]; !ok {
		return
	}
	delete(s.objects, ref)
	delete(s.dirty, ref)
	if s.original[ref] {
		s.freed[ref.Num] = ref.Gen + 1
	}
}

// Dirty lists the refs set, added or touched since load, in number order.
func (s *Store) Dirty() []raw.ObjectRef {
	refs := make([]raw.ObjectRef, 0, len(s.dirty))
	for ref := range s.dirty {
		refs = append(refs, ref)
	}
	sortRefs(refs)
	return refs
}

// IsOriginal reports whether ref was read from the loaded file.
func (s *Store) IsOriginal(ref raw.ObjectRef) bool { return s.original[ref] }

// Len is the number of live objects.
func (s *Store) Len() int { return len(s.objects) }

// Trailer returns the trailer of the loaded file (empty for a new store).
func (s *Store) Trailer() *raw.DictObj { return s.trailer }

// TrailerRef returns the reference stored under key in the trailer.
func (s *Store) TrailerRef(key string) (raw.ObjectRef, bool) {
	ref, ok := s.trailer.KV[key].(raw.RefObj)
	return ref.R, ok
}

func (s *Store) Version() string  { return s.version }
func (s *Store) Revisions() int   { return s.revisions }
func (s *Store) Repaired() bool   { return s.repaired }
func (s *Store) StartXRef() int64 { return s.startXRef }

// Original returns the bytes the store was loaded from.
func (s *Store) Original() []byte { return s.base }

// CanAppend reports whether an incremental update can be chained to the
// loaded file. Repaired files have no trustworthy /Prev target.
func (s *Store) CanAppend() bool { return s.base != nil && !s.repaired }

// Reachable returns every ref reachable from roots, in depth-first visiting
// order. Missing objects are skipped.
func (s *Store) Reachable(roots ...raw.ObjectRef) []raw.ObjectRef {
	visited := make(map[raw.ObjectRef]bool)
	var order []raw.ObjectRef
	var walk func(obj raw.Object)
	visit := func(ref raw.ObjectRef) {
		if ref.IsZero() || visited[ref] {
			return
		}
		obj, ok := s.objects[ref]
		if !ok {
			return
		}
		visited[ref] = true
		order = append(order, ref)
		walk(obj)
	}
	walk = func(obj raw.Object) {
		switch v := obj.(type) {
		case raw.RefObj:
			visit(v.R)
		case *raw.ArrayObj:
			for _, it := range v.Items {
				walk(it)
			}
		case *raw.DictObj:
			if v == nil {
				return
			}
			for _, k := range v.SortedKeys() {
				walk(v.KV[k])
			}
		case *raw.StreamObj:
			if v != nil {
				walk(v.Dict)
			}
		}
	}
	for _, r := range roots {
		visit(r)
	}
	return order
}

// WriteFull writes every object reachable from root and info as a new file.
// Objects are renumbered densely in visiting order; the store keeps its own
// numbering.
func (s *Store) WriteFull(ctx context.Context, w io.Writer, root, info raw.ObjectRef) (writer.Result, error) {
	if _, ok := s.objects[root]; !ok {
		return writer.Result{}, fmt.Errorf("%w: root %s not in store", ErrInvariantViolation, root)
	}
	order := s.Reachable(root, info)
	remap := make(map[raw.ObjectRef]raw.ObjectRef, len(order))
	for i, ref := range order {
		remap[ref] = raw.ObjectRef{Num: i + 1}
	}
	objs := make([]raw.IndirectObject, 0, len(order))
	for _, ref := range order {
		objs = append(objs, raw.IndirectObject{Ref: remap[ref], Value: renumber(s.objects[ref], remap)})
	}
	trailer := raw.Dict()
	trailer.Put("Root", raw.RefTo(remap[root]))
	if to, ok := remap[info]; ok {
		trailer.Put("Info", raw.RefTo(to))
	}
	res, err := writer.WriteFull(ctx, w, writer.File{Objects: objs, Trailer: trailer, ID: s.id}, s.cfg.Writer)
	if err != nil {
		return res, s.wrapWriteErr(err)
	}
	s.cfg.Logger.Debug("wrote full file",
		observability.Int("objects", len(objs)),
		observability.Int64("startxref", res.StartXRef))
	return res, nil
}

// WriteIncremental copies the loaded bytes and appends every reachable
// object that is new or modified, plus free entries for deleted numbers.
// Each call appends to the original bytes, so repeated saves produce one
// update section holding all changes since load.
func (s *Store) WriteIncremental(ctx context.Context, w io.Writer, root, info raw.ObjectRef) (writer.Result, error) {
	if !s.CanAppend() {
		return writer.Result{}, fmt.Errorf("%w: no appendable base file", ErrInvariantViolation)
	}
	if _, ok := s.objects[root]; !ok {
		return writer.Result{}, fmt.Errorf("%w: root %s not in store", ErrInvariantViolation, root)
	}
	var objs []raw.IndirectObject
	for _, ref := range s.Reachable(root, info) {
		if s.dirty[ref] || !s.original[ref] {
			objs = append(objs, raw.IndirectObject{Ref: ref, Value: s.objects[ref]})
		}
	}
	free := make([]raw.ObjectRef, 0, len(s.freed))
	for num, gen := range s.freed {
		free = append(free, raw.ObjectRef{Num: num, Gen: gen})
	}
	sortRefs(free)

	trailer := raw.Dict()
	trailer.Put("Root", raw.RefTo(root))
	if _, ok := s.objects[info]; ok {
		trailer.Put("Info", raw.RefTo(info))
	}
	base := writer.Base{Data: s.base, StartXRef: s.startXRef, Size: s.size}
	res, err := writer.WriteIncremental(ctx, w, base, writer.File{Objects: objs, Free: free, Trailer: trailer, ID: s.id}, s.cfg.Writer)
	if err != nil {
		return res, s.wrapWriteErr(err)
	}
	s.cfg.Logger.Debug("wrote incremental update",
		observability.Int("objects", len(objs)),
		observability.Int("freed", len(free)),
		observability.Int64("prev", s.startXRef))
	return res, nil
}

func (s *Store) wrapWriteErr(err error) error {
	if errors.Is(err, writer.ErrDuplicateObject) {
		return fmt.Errorf("%w: %w", ErrInvariantViolation, err)
	}
	return err
}

// renumber copies the containers of obj with references rewritten through
// remap. References to objects outside remap become null.
func renumber(obj raw.Object, remap map[raw.ObjectRef]raw.ObjectRef) raw.Object {
	switch v := obj.(type) {
	case raw.RefObj:
		if to, ok := remap[v.R]; ok {
			return raw.RefTo(to)
		}
		return raw.NullObj{}
	case *raw.ArrayObj:
		if v == nil {
			return v
		}
		out := &raw.ArrayObj{Items: make([]raw.Object, len(v.Items))}
		for i, it := range v.Items {
			out.Items[i] = renumber(it, remap)
		}
		return out
	case *raw.DictObj:
		if v == nil {
			return v
		}
		out := &raw.DictObj{KV: make(map[string]raw.Object, len(v.KV))}
		for k, it := range v.KV {
			out.KV[k] = renumber(it, remap)
		}
		return out
	case *raw.StreamObj:
		if v == nil {
			return v
		}
		d, _ := renumber(v.Dict, remap).(*raw.DictObj)
		return &raw.StreamObj{Dict: d, Data: v.Data}
	default:
		return obj
	}
}

func sortRefs(refs []raw.ObjectRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Num != refs[j].Num {
			return refs[i].Num < refs[j].Num
		}
		return refs[i].Gen < refs[j].Gen
	})
}
