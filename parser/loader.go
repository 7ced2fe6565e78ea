package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/wudi/pdfengine/filters"
	"github.com/wudi/pdfengine/ir/raw"
	"github.com/wudi/pdfengine/recovery"
	"github.com/wudi/pdfengine/scanner"
	"github.com/wudi/pdfengine/security"
	"github.com/wudi/pdfengine/xref"
)

// ErrObjectNotFound is returned for numbers the cross-reference table does not list.
var ErrObjectNotFound = errors.New("object not found")

// ErrMaxDepth is returned when resolving a chain of references runs too deep.
var ErrMaxDepth = errors.New("max indirect depth exceeded")

type ObjectLoader interface {
	Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error)
	LoadIndirect(ctx context.Context, ref raw.ObjectRef, depth int) (raw.Object, error)
}

type ObjectLoaderBuilder struct {
	reader    io.ReaderAt
	xrefTable *xref.Table
	limits    security.Limits
	recovery  recovery.Strategy
	filters   *filters.Pipeline
}

func (b *ObjectLoaderBuilder) WithXRef(table *xref.Table) *ObjectLoaderBuilder {
	b.xrefTable = table
	return b
}
func (b *ObjectLoaderBuilder) WithReader(r io.ReaderAt) *ObjectLoaderBuilder {
	b.reader = r
	return b
}
func (b *ObjectLoaderBuilder) WithLimits(l security.Limits) *ObjectLoaderBuilder {
	b.limits = l
	return b
}
func (b *ObjectLoaderBuilder) WithRecovery(s recovery.Strategy) *ObjectLoaderBuilder {
	b.recovery = s
	return b
}
func (b *ObjectLoaderBuilder) WithFilters(p *filters.Pipeline) *ObjectLoaderBuilder {
	b.filters = p
	return b
}

func (b *ObjectLoaderBuilder) Build() (ObjectLoader, error) {
	if b.reader == nil || b.xrefTable == nil {
		return nil, errors.New("reader and xrefTable required")
	}
	limits := b.limits.WithDefaults()
	pipe := b.filters
	if pipe == nil {
		pipe = filters.DefaultPipeline(filters.Limits{
			MaxDecompressedSize: limits.MaxDecompressedSize,
			MaxDecodeTime:       limits.MaxDecodeTime,
		})
	}
	return &objectLoader{
		reader:    b.reader,
		xrefTable: b.xrefTable,
		limits:    limits,
		recovery:  b.recovery,
		filters:   pipe,
		cache:     make(map[raw.ObjectRef]raw.Object),
		objstm:    make(map[int]map[int]raw.Object),
		loading:   make(map[raw.ObjectRef]bool),
	}, nil
}

type objectLoader struct {
	reader    io.ReaderAt
	xrefTable *xref.Table
	limits    security.Limits
	recovery  recovery.Strategy
	filters   *filters.Pipeline

	mu      sync.Mutex
	cache   map[raw.ObjectRef]raw.Object
	objstm  map[int]map[int]raw.Object
	loading map[raw.ObjectRef]bool
}

func (o *objectLoader) Load(ctx context.Context, ref raw.ObjectRef) (raw.Object, error) {
	return o.LoadIndirect(ctx, ref, 0)
}

func (o *objectLoader) LoadIndirect(ctx context.Context, ref raw.ObjectRef, depth int) (raw.Object, error) {
	if depth > o.limits.MaxIndirectDepth {
		return nil, fmt.Errorf("%w at %s", ErrMaxDepth, ref)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.mu.Lock()
	if obj, ok := o.cache[ref]; ok {
		o.mu.Unlock()
		return obj, nil
	}
	if o.loading[ref] {
		o.mu.Unlock()
		return nil, fmt.Errorf("reference cycle while loading %s", ref)
	}
	o.loading[ref] = true
	o.mu.Unlock()

	obj, err := o.loadOnce(ctx, ref, depth)

	o.mu.Lock()
	delete(o.loading, ref)
	if err == nil {
		o.cache[ref] = obj
	}
	o.mu.Unlock()
	return obj, err
}

func (o *objectLoader) loadOnce(ctx context.Context, ref raw.ObjectRef, depth int) (raw.Object, error) {
	if stmNum, idx, ok := o.xrefTable.ObjStream(ref.Num); ok {
		return o.loadFromObjStream(ctx, stmNum, idx, depth)
	}
	offset, gen, ok := o.xrefTable.Lookup(ref.Num)
	if !ok || gen != ref.Gen {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, ref)
	}
	return o.loadAt(ctx, ref, offset, depth)
}

func (o *objectLoader) scannerConfig() scanner.Config {
	return scanner.Config{
		MaxStringLength: o.limits.MaxStringLength,
		MaxArrayDepth:   o.limits.MaxNesting,
		MaxDictDepth:    o.limits.MaxNesting,
		MaxStreamLength: o.limits.MaxStreamLength,
		Recovery:        o.recovery,
	}
}

// loadAt parses "num gen obj" at offset and verifies the header matches ref.
func (o *objectLoader) loadAt(ctx context.Context, ref raw.ObjectRef, offset int64, depth int) (raw.Object, error) {
	loc := recovery.Location{ByteOffset: offset, ObjectNum: ref.Num, ObjectGen: ref.Gen, Component: recovery.ComponentLoader}
	s := scanner.New(o.reader, o.scannerConfig())
	if rc, ok := s.(interface{ SetRecoveryLocation(recovery.Location) }); ok {
		rc.SetRecoveryLocation(loc)
	}
	if err := s.Seek(offset); err != nil {
		return nil, fmt.Errorf("seek %s: %w", ref, err)
	}
	tr := raw.NewTokenReader(s)
	numTok, err1 := tr.Next()
	genTok, err2 := tr.Next()
	objTok, err3 := tr.Next()
	if err := errors.Join(err1, err2, err3); err != nil {
		return nil, fmt.Errorf("object header %s: %w", ref, err)
	}
	if numTok.Int != int64(ref.Num) || genTok.Int != int64(ref.Gen) || objTok.Str != "obj" {
		return nil, fmt.Errorf("object header at %d does not match %s", offset, ref)
	}
	obj, err := raw.ParseObject(tr)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", ref, err)
	}
	dict, ok := obj.(*raw.DictObj)
	if !ok {
		return obj, nil
	}
	if length, ok := o.streamLength(ctx, dict, depth); ok {
		s.SetNextStreamLength(length)
	}
	next, err := tr.Next()
	if err != nil || next.Type != scanner.TokenStream {
		return dict, nil
	}
	return raw.NewStream(dict, next.Bytes), nil
}

// streamLength resolves /Length, following an indirect reference if needed.
func (o *objectLoader) streamLength(ctx context.Context, dict *raw.DictObj, depth int) (int64, bool) {
	switch v := dict.KV["Length"].(type) {
	case raw.NumberObj:
		return v.Int(), v.Int() >= 0
	case raw.RefObj:
		obj, err := o.LoadIndirect(ctx, v.R, depth+1)
		if err != nil {
			return 0, false
		}
		n, ok := raw.IntOf(obj)
		return n, ok && n >= 0
	}
	return 0, false
}

// loadFromObjStream decodes an object stream once and serves its members.
func (o *objectLoader) loadFromObjStream(ctx context.Context, stmNum, idx, depth int) (raw.Object, error) {
	o.mu.Lock()
	members, ok := o.objstm[stmNum]
	o.mu.Unlock()
	if !ok {
		var err error
		members, err = o.decodeObjStream(ctx, stmNum, depth)
		if err != nil {
			return nil, err
		}
		o.mu.Lock()
		o.objstm[stmNum] = members
		o.mu.Unlock()
	}
	obj, ok := members[idx]
	if !ok {
		return nil, fmt.Errorf("%w: index %d in object stream %d", ErrObjectNotFound, idx, stmNum)
	}
	return obj, nil
}

func (o *objectLoader) decodeObjStream(ctx context.Context, stmNum, depth int) (map[int]raw.Object, error) {
	obj, err := o.LoadIndirect(ctx, raw.ObjectRef{Num: stmNum}, depth+1)
	if err != nil {
		return nil, fmt.Errorf("object stream %d: %w", stmNum, err)
	}
	stm, ok := obj.(*raw.StreamObj)
	if !ok || raw.NameOf(stm.Dict.KV["Type"]) != "ObjStm" {
		return nil, fmt.Errorf("object %d is not an object stream", stmNum)
	}
	names, params := filters.ExtractFilters(stm.Dict)
	data, err := o.filters.Decode(ctx, stm.Data, names, params)
	if err != nil {
		return nil, fmt.Errorf("object stream %d: %w", stmNum, err)
	}
	n, _ := raw.IntOf(stm.Dict.KV["N"])
	first, _ := raw.IntOf(stm.Dict.KV["First"])
	if first < 0 || first > int64(len(data)) {
		return nil, fmt.Errorf("object stream %d: /First out of range", stmNum)
	}
	header := raw.NewTokenReader(scanner.NewBytes(data[:first], scanner.Config{}))
	offsets := make([]int64, 0, n)
	for i := int64(0); i < n; i++ {
		_, err1 := header.Next()
		offTok, err2 := header.Next()
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("object stream %d: short header", stmNum)
		}
		offsets = append(offsets, offTok.Int)
	}
	body := data[first:]
	members := make(map[int]raw.Object, len(offsets))
	for i, off := range offsets {
		if off < 0 || off > int64(len(body)) {
			continue
		}
		tr := raw.NewTokenReader(scanner.NewBytes(bytes.Clone(body[off:]), scanner.Config{}))
		member, err := raw.ParseObject(tr)
		if err != nil {
			return nil, fmt.Errorf("object stream %d member %d: %w", stmNum, i, err)
		}
		members[i] = member
	}
	return members, nil
}
