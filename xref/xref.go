package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/wudi/pdfengine/filters"
	"github.com/wudi/pdfengine/ir/raw"
	"github.com/wudi/pdfengine/recovery"
	"github.com/wudi/pdfengine/scanner"
)

// ErrMalformed marks a cross-reference structure or trailer that cannot be read.
var ErrMalformed = errors.New("malformed cross-reference")

type EntryKind int

const (
	EntryFree EntryKind = iota
	EntryInUse
	EntryCompressed
)

// Entry is one row of a cross-reference section. For compressed objects
// Stream and Index locate the object inside an object stream.
type Entry struct {
	Num    int
	Kind   EntryKind
	Offset int64
	Gen    int
	Stream int
	Index  int
}

// Section is a single cross-reference section with its trailer.
type Section struct {
	Offset  int64
	Stream  bool
	Entries []Entry
	Trailer *raw.DictObj
}

// Table is the merged view of every section reachable from startxref.
// The newest section defines each object number.
type Table struct {
	entries   map[int]Entry
	trailer   *raw.DictObj
	sections  []Section
	startXRef int64
	repaired  bool
}

func (t *Table) Lookup(objNum int) (offset int64, gen int, found bool) {
	e, ok := t.entries[objNum]
	if !ok || e.Kind != EntryInUse {
		return 0, 0, false
	}
	return e.Offset, e.Gen, true
}

// ObjStream reports the object stream and index holding a compressed object.
func (t *Table) ObjStream(objNum int) (stream, index int, found bool) {
	e, ok := t.entries[objNum]
	if !ok || e.Kind != EntryCompressed {
		return 0, 0, false
	}
	return e.Stream, e.Index, true
}

// Entry returns the effective entry for objNum, including free entries.
func (t *Table) Entry(objNum int) (Entry, bool) {
	e, ok := t.entries[objNum]
	return e, ok
}

// Objects lists live object numbers in ascending order.
func (t *Table) Objects() []int {
	out := make([]int, 0, len(t.entries))
	for k, e := range t.entries {
		if e.Kind != EntryFree {
			out = append(out, k)
		}
	}
	sort.Ints(out)
	return out
}

func (t *Table) Type() string {
	switch {
	case t.repaired:
		return "repaired"
	case len(t.sections) > 0 && t.sections[0].Stream:
		return "xref-stream"
	default:
		return "table"
	}
}

func (t *Table) Trailer() *raw.DictObj { return t.trailer }
func (t *Table) StartXRef() int64      { return t.startXRef }
func (t *Table) Repaired() bool        { return t.repaired }

// Sections returns the parsed sections, newest first.
func (t *Table) Sections() []Section { return t.sections }

// Size is one past the highest object number in use or recorded.
func (t *Table) Size() int {
	size := 0
	if t.trailer != nil {
		if n, ok := raw.IntOf(t.trailer.KV["Size"]); ok {
			size = int(n)
		}
	}
	for num := range t.entries {
		if num+1 > size {
			size = num + 1
		}
	}
	return size
}

type ResolverConfig struct {
	MaxXRefDepth int
	Recovery     recovery.Strategy
	Scanner      scanner.Config
	Filters      *filters.Pipeline
}

type Resolver struct {
	cfg ResolverConfig
}

func NewResolver(cfg ResolverConfig) *Resolver {
	if cfg.MaxXRefDepth <= 0 {
		cfg.MaxXRefDepth = 50
	}
	if cfg.Filters == nil {
		cfg.Filters = filters.DefaultPipeline(filters.Limits{})
	}
	return &Resolver{cfg: cfg}
}

// Resolve reads the chain of cross-reference sections starting at the last
// startxref. When the chain is unreadable and the recovery strategy allows
// it, the table is rebuilt from a scan of the whole file.
func (r *Resolver) Resolve(ctx context.Context, ra io.ReaderAt) (*Table, error) {
	data := readAll(ra)
	table, err := r.resolveChain(ctx, data)
	if err == nil {
		return table, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}
	if !recovery.Allows(r.cfg.Recovery, err, recovery.Location{Component: recovery.ComponentXRef}) {
		return nil, err
	}
	return repair(ctx, data, r.cfg)
}

func (r *Resolver) resolveChain(ctx context.Context, data []byte) (*Table, error) {
	start, err := lastStartXRef(data)
	if err != nil {
		return nil, err
	}
	t := &Table{entries: make(map[int]Entry), startXRef: start}
	visited := make(map[int64]bool)
	pending := []int64{start}
	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		off := pending[0]
		pending = pending[1:]
		if visited[off] {
			continue
		}
		if len(visited) >= r.cfg.MaxXRefDepth {
			return nil, fmt.Errorf("%w: more than %d sections", ErrMalformed, r.cfg.MaxXRefDepth)
		}
		visited[off] = true

		sec, err := r.readSection(ctx, data, off)
		if err != nil {
			return nil, err
		}
		t.sections = append(t.sections, sec)
		t.merge(sec.Entries)

		// Hybrid files: the stream holds objects the table hides from
		// older readers; it ranks directly below its own table.
		if stm, ok := raw.IntOf(sec.Trailer.KV["XRefStm"]); ok && !visited[stm] {
			visited[stm] = true
			hidden, err := r.readSection(ctx, data, stm)
			if err != nil {
				return nil, err
			}
			t.merge(hidden.Entries)
		}
		if prev, ok := raw.IntOf(sec.Trailer.KV["Prev"]); ok {
			pending = append(pending, prev)
		}
	}
	t.trailer = mergedTrailer(t.sections)
	if _, ok := t.trailer.KV["Root"].(raw.RefObj); !ok {
		return nil, fmt.Errorf("%w: trailer has no /Root reference", ErrMalformed)
	}
	return t, nil
}

// merge adds entries not already defined by a newer section.
func (t *Table) merge(entries []Entry) {
	for _, e := range entries {
		if _, ok := t.entries[e.Num]; ok {
			continue
		}
		if e.Num == 0 {
			continue
		}
		t.entries[e.Num] = e
	}
}

// mergedTrailer starts from the newest trailer and fills keys it lacks
// from older ones; section plumbing keys are dropped.
func mergedTrailer(sections []Section) *raw.DictObj {
	out := raw.Dict()
	for _, sec := range sections {
		for k, v := range sec.Trailer.KV {
			switch k {
			case "Prev", "XRefStm", "Type", "W", "Index", "Length", "Filter", "DecodeParms":
				continue
			}
			if _, ok := out.KV[k]; !ok {
				out.KV[k] = v
			}
		}
	}
	return out
}

func (r *Resolver) readSection(ctx context.Context, data []byte, off int64) (Section, error) {
	if off <= 0 || off >= int64(len(data)) {
		return Section{}, fmt.Errorf("%w: section offset %d out of range", ErrMalformed, off)
	}
	s := scanner.NewBytes(data, r.cfg.Scanner)
	if err := s.Seek(off); err != nil {
		return Section{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	tr := raw.NewTokenReader(s)
	tok, err := tr.Next()
	if err != nil {
		return Section{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if tok.Type == scanner.TokenKeyword && tok.Str == "xref" {
		sec, err := readTable(tr)
		if err != nil {
			return Section{}, err
		}
		sec.Offset = off
		return sec, nil
	}
	tr.Unread(tok)
	sec, err := r.readStreamSection(ctx, tr)
	if err != nil {
		return Section{}, err
	}
	sec.Offset = off
	return sec, nil
}

// readTable parses "start count" subsections up to the trailer dictionary.
func readTable(tr *raw.TokenReader) (Section, error) {
	var sec Section
	for {
		tok, err := tr.Next()
		if err != nil {
			return Section{}, fmt.Errorf("%w: unexpected end of table", ErrMalformed)
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			break
		}
		countTok, err := tr.Next()
		if err != nil || tok.Type != scanner.TokenNumber || !tok.IsInt || countTok.Type != scanner.TokenNumber || !countTok.IsInt {
			return Section{}, fmt.Errorf("%w: invalid subsection header at %d", ErrMalformed, tok.Pos)
		}
		first, count := int(tok.Int), int(countTok.Int)
		if first < 0 || count < 0 {
			return Section{}, fmt.Errorf("%w: negative subsection header at %d", ErrMalformed, tok.Pos)
		}
		for i := 0; i < count; i++ {
			offTok, err1 := tr.Next()
			genTok, err2 := tr.Next()
			kindTok, err3 := tr.Next()
			if err1 != nil || err2 != nil || err3 != nil || offTok.Type != scanner.TokenNumber || genTok.Type != scanner.TokenNumber || kindTok.Type != scanner.TokenKeyword {
				return Section{}, fmt.Errorf("%w: invalid entry %d of subsection %d", ErrMalformed, i, first)
			}
			e := Entry{Num: first + i, Offset: offTok.Int, Gen: int(genTok.Int)}
			switch kindTok.Str {
			case "n":
				e.Kind = EntryInUse
			case "f":
				e.Kind = EntryFree
			default:
				return Section{}, fmt.Errorf("%w: entry type %q", ErrMalformed, kindTok.Str)
			}
			sec.Entries = append(sec.Entries, e)
		}
	}
	obj, err := raw.ParseObject(tr)
	if err != nil {
		return Section{}, fmt.Errorf("%w: trailer: %v", ErrMalformed, err)
	}
	d, ok := obj.(*raw.DictObj)
	if !ok {
		return Section{}, fmt.Errorf("%w: trailer is %s", ErrMalformed, obj.Type())
	}
	sec.Trailer = d
	return sec, nil
}

// readStreamSection parses "n g obj <<...>> stream" with /Type /XRef.
func (r *Resolver) readStreamSection(ctx context.Context, tr *raw.TokenReader) (Section, error) {
	numTok, _ := tr.Next()
	genTok, _ := tr.Next()
	objTok, err := tr.Next()
	if err != nil || numTok.Type != scanner.TokenNumber || genTok.Type != scanner.TokenNumber || objTok.Str != "obj" {
		return Section{}, fmt.Errorf("%w: no xref keyword or stream at offset", ErrMalformed)
	}
	obj, err := raw.ParseObject(tr)
	if err != nil {
		return Section{}, fmt.Errorf("%w: xref stream dictionary: %v", ErrMalformed, err)
	}
	dict, ok := obj.(*raw.DictObj)
	if !ok || raw.NameOf(dict.KV["Type"]) != "XRef" {
		return Section{}, fmt.Errorf("%w: object at offset is not an xref stream", ErrMalformed)
	}
	if n, ok := raw.IntOf(dict.KV["Length"]); ok {
		tr.Scanner().SetNextStreamLength(n)
	}
	streamTok, err := tr.Next()
	if err != nil || streamTok.Type != scanner.TokenStream {
		return Section{}, fmt.Errorf("%w: xref stream has no data", ErrMalformed)
	}
	names, params := filters.ExtractFilters(dict)
	payload, err := r.cfg.Filters.Decode(ctx, streamTok.Bytes, names, params)
	if err != nil {
		return Section{}, fmt.Errorf("%w: xref stream: %v", ErrMalformed, err)
	}
	entries, err := decodeStreamEntries(dict, payload)
	if err != nil {
		return Section{}, err
	}
	return Section{Stream: true, Entries: entries, Trailer: dict}, nil
}

func decodeStreamEntries(dict *raw.DictObj, payload []byte) ([]Entry, error) {
	wArr, ok := dict.KV["W"].(*raw.ArrayObj)
	if !ok || wArr.Len() != 3 {
		return nil, fmt.Errorf("%w: xref stream /W", ErrMalformed)
	}
	var w [3]int
	rowLen := 0
	for i := range w {
		n, _ := raw.IntOf(wArr.Items[i])
		if n < 0 || n > 8 {
			return nil, fmt.Errorf("%w: xref stream /W field %d", ErrMalformed, n)
		}
		w[i] = int(n)
		rowLen += w[i]
	}
	if rowLen == 0 {
		return nil, fmt.Errorf("%w: empty xref stream rows", ErrMalformed)
	}
	size, _ := raw.IntOf(dict.KV["Size"])
	index := []int64{0, size}
	if idx, ok := dict.KV["Index"].(*raw.ArrayObj); ok {
		index = index[:0]
		for _, it := range idx.Items {
			n, _ := raw.IntOf(it)
			index = append(index, n)
		}
	}
	var entries []Entry
	pos := 0
	for i := 0; i+1 < len(index); i += 2 {
		for j := int64(0); j < index[i+1]; j++ {
			if pos+rowLen > len(payload) {
				return nil, fmt.Errorf("%w: xref stream shorter than /Index", ErrMalformed)
			}
			f1 := int64(1)
			if w[0] > 0 {
				f1 = beInt(payload[pos : pos+w[0]])
			}
			f2 := beInt(payload[pos+w[0] : pos+w[0]+w[1]])
			f3 := beInt(payload[pos+w[0]+w[1] : pos+rowLen])
			pos += rowLen
			e := Entry{Num: int(index[i] + j)}
			switch f1 {
			case 0:
				e.Kind, e.Gen = EntryFree, int(f3)
			case 1:
				e.Kind, e.Offset, e.Gen = EntryInUse, f2, int(f3)
			case 2:
				e.Kind, e.Stream, e.Index = EntryCompressed, int(f2), int(f3)
			default:
				continue
			}
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func beInt(b []byte) int64 {
	var v int64
	for _, c := range b {
		v = v<<8 | int64(c)
	}
	return v
}

// lastStartXRef returns the offset recorded after the final startxref keyword.
func lastStartXRef(data []byte) (int64, error) {
	idx := bytes.LastIndex(data, []byte("startxref"))
	if idx < 0 {
		return 0, fmt.Errorf("%w: startxref not found", ErrMalformed)
	}
	rest := bytes.TrimLeft(data[idx+len("startxref"):], " \t\r\n\f\x00")
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	off, err := strconv.ParseInt(string(rest[:end]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: startxref value: %v", ErrMalformed, err)
	}
	return off, nil
}

// LastStartXRef exposes the startxref lookup for writers that append revisions.
func LastStartXRef(data []byte) (int64, error) { return lastStartXRef(data) }

func readAll(r io.ReaderAt) []byte {
	if b, ok := r.(interface{ Bytes() []byte }); ok {
		return b.Bytes()
	}
	var buf bytes.Buffer
	const chunk = int64(32 * 1024)
	tmp := make([]byte, chunk)
	for off := int64(0); ; off += chunk {
		n, err := r.ReadAt(tmp, off)
		if n > 0 {
			buf.Write(tmp[:n])
		}
		if err != nil || int64(n) < chunk {
			break
		}
	}
	return buf.Bytes()
}
