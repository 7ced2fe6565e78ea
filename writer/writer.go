package writer

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"sort"

	"golang.org/x/crypto/blake2b"

	"github.com/wudi/pdfengine/filters"
	"github.com/wudi/pdfengine/ir/raw"
	"github.com/wudi/pdfengine/xref"
)

type PDFVersion string

const (
	PDF17 PDFVersion = "1.7"
)

// ErrDuplicateObject is returned when two objects in one pass share a number.
var ErrDuplicateObject = errors.New("writer: duplicate object number")

type Config struct {
	Version PDFVersion
	// Compression is the flate level applied to streams that carry no
	// filter yet. Zero leaves stream data as is.
	Compression int
	// Deterministic derives /ID only from the written bytes.
	Deterministic bool
}

// File is one serialization pass: the objects to write, the numbers to mark
// free, and the trailer entries (Root, Info) to carry. Size, Prev and ID are
// filled in by the writer.
type File struct {
	Objects []raw.IndirectObject
	// Free lists released numbers; Gen is the generation a reuse must carry.
	Free    []raw.ObjectRef
	Trailer *raw.DictObj
	// ID[0] is kept when set; ID[1] is always recomputed.
	ID [2][]byte
}

// Base describes the file an incremental update is appended to.
type Base struct {
	Data      []byte
	StartXRef int64
	Size      int
}

// Result reports where the newest cross-reference section landed.
type Result struct {
	StartXRef int64
	Size      int
	ID        [2][]byte
}

func pdfVersion(cfg Config) string {
	if cfg.Version == "" {
		return string(PDF17)
	}
	return string(cfg.Version)
}

// WriteFull writes a self-contained file: header, every object in number
// order, one xref section covering 0..Size-1, trailer, startxref and %%EOF.
func WriteFull(ctx context.Context, w io.Writer, f File, cfg Config) (Result, error) {
	objs, err := sortedObjects(f.Objects)
	if err != nil {
		return Result{}, err
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%%PDF-%s\n%%\xE2\xE3\xCF\xD3\n", pdfVersion(cfg))

	hash, _ := blake2b.New(16, nil)
	offsets := make(map[int]xref.Entry, len(objs))
	for _, o := range objs {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		data, err := serializeForWrite(o, cfg)
		if err != nil {
			return Result{}, err
		}
		offsets[o.Ref.Num] = xref.Entry{Num: o.Ref.Num, Kind: xref.EntryInUse, Offset: int64(buf.Len()), Gen: o.Ref.Gen}
		buf.Write(data)
		hash.Write(data)
	}

	size := 1
	for num := range offsets {
		if num+1 > size {
			size = num + 1
		}
	}
	freeGen := make(map[int]int, len(f.Free))
	for _, r := range f.Free {
		freeGen[r.Num] = r.Gen
		if r.Num+1 > size {
			size = r.Num + 1
		}
	}
	entries := make([]xref.Entry, 0, size)
	entries = append(entries, xref.Entry{Num: 0, Kind: xref.EntryFree, Gen: 65535})
	for num := 1; num < size; num++ {
		if e, ok := offsets[num]; ok {
			entries = append(entries, e)
			continue
		}
		entries = append(entries, xref.Entry{Num: num, Kind: xref.EntryFree, Gen: freeGen[num]})
	}

	id := fileID(f.ID, hash.Sum(nil), cfg)
	trailer := buildTrailer(f.Trailer, size, id, 0)
	start := int64(buf.Len())
	if err := xref.WriteTable(&buf, entries); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrDuplicateObject, err)
	}
	writeTrailer(&buf, trailer, start)
	if _, err := w.Write(buf.Bytes()); err != nil {
		return Result{}, err
	}
	return Result{StartXRef: start, Size: size, ID: id}, nil
}

// WriteIncremental copies base verbatim and appends the given objects, one
// xref section for exactly those numbers, and a trailer chained to the base
// with /Prev.
func WriteIncremental(ctx context.Context, w io.Writer, base Base, f File, cfg Config) (Result, error) {
	objs, err := sortedObjects(f.Objects)
	if err != nil {
		return Result{}, err
	}
	if len(objs) == 0 && len(f.Free) == 0 {
		// An xref section needs at least one subsection; with nothing to
		// append the base file already is the saved document.
		if _, err := w.Write(base.Data); err != nil {
			return Result{}, err
		}
		return Result{StartXRef: base.StartXRef, Size: base.Size, ID: f.ID}, nil
	}
	var buf bytes.Buffer
	buf.Grow(len(base.Data) + 1024)
	buf.Write(base.Data)
	if n := len(base.Data); n > 0 && base.Data[n-1] != '\n' && base.Data[n-1] != '\r' {
		buf.WriteByte('\n')
	}

	hash, _ := blake2b.New(16, nil)
	size := base.Size
	seen := make(map[int]bool, len(objs)+len(f.Free))
	var entries []xref.Entry
	for _, o := range objs {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		data, err := serializeForWrite(o, cfg)
		if err != nil {
			return Result{}, err
		}
		entries = append(entries, xref.Entry{Num: o.Ref.Num, Kind: xref.EntryInUse, Offset: int64(buf.Len()), Gen: o.Ref.Gen})
		seen[o.Ref.Num] = true
		buf.Write(data)
		hash.Write(data)
		if o.Ref.Num+1 > size {
			size = o.Ref.Num + 1
		}
	}
	for _, r := range f.Free {
		if seen[r.Num] {
			return Result{}, fmt.Errorf("%w: %d freed and written", ErrDuplicateObject, r.Num)
		}
		seen[r.Num] = true
		entries = append(entries, xref.Entry{Num: r.Num, Kind: xref.EntryFree, Gen: r.Gen})
	}
	if len(f.Free) > 0 {
		entries = append(entries, xref.Entry{Num: 0, Kind: xref.EntryFree, Gen: 65535})
	}

	id := fileID(f.ID, hash.Sum(nil), cfg)
	trailer := buildTrailer(f.Trailer, size, id, base.StartXRef)
	start := int64(buf.Len())
	if err := xref.WriteTable(&buf, entries); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrDuplicateObject, err)
	}
	writeTrailer(&buf, trailer, start)
	if _, err := w.Write(buf.Bytes()); err != nil {
		return Result{}, err
	}
	return Result{StartXRef: start, Size: size, ID: id}, nil
}

func sortedObjects(in []raw.IndirectObject) ([]raw.IndirectObject, error) {
	objs := append([]raw.IndirectObject(nil), in...)
	sort.Slice(objs, func(i, j int) bool { return objs[i].Ref.Num < objs[j].Ref.Num })
	for i, o := range objs {
		if o.Ref.Num <= 0 {
			return nil, fmt.Errorf("writer: invalid object number %d", o.Ref.Num)
		}
		if i > 0 && objs[i-1].Ref.Num == o.Ref.Num {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateObject, o.Ref.Num)
		}
	}
	return objs, nil
}

func serializeForWrite(o raw.IndirectObject, cfg Config) ([]byte, error) {
	s, ok := o.Value.(*raw.StreamObj)
	if !ok || cfg.Compression <= 0 || s == nil || len(s.Data) == 0 {
		return SerializeObject(o.Ref, o.Value), nil
	}
	if s.Dict != nil {
		if _, filtered := s.Dict.Lookup("Filter"); filtered {
			return SerializeObject(o.Ref, o.Value), nil
		}
		// XMP packets stay readable to tools that scan for them.
		if t, _ := s.Dict.Lookup("Type"); raw.NameOf(t) == "Metadata" {
			return SerializeObject(o.Ref, o.Value), nil
		}
	}
	data, err := filters.FlateEncode(s.Data, cfg.Compression)
	if err != nil {
		return nil, fmt.Errorf("compress object %s: %w", o.Ref, err)
	}
	dict, _ := raw.DeepCopy(s.Dict).(*raw.DictObj)
	if dict == nil {
		dict = raw.Dict()
	}
	dict.Put("Filter", raw.NameLiteral("FlateDecode"))
	return SerializeObject(o.Ref, raw.NewStream(dict, data)), nil
}

// fileID keeps the permanent half when one is known and derives the
// changing half from the written body.
func fileID(prev [2][]byte, sum []byte, cfg Config) [2][]byte {
	changing := append([]byte(nil), sum...)
	if !cfg.Deterministic {
		salt := make([]byte, 16)
		if _, err := rand.Read(salt); err == nil {
			h, _ := blake2b.New(16, nil)
			h.Write(sum)
			h.Write(salt)
			changing = h.Sum(nil)
		}
	}
	permanent := prev[0]
	if len(permanent) == 0 {
		permanent = append([]byte(nil), changing...)
	}
	return [2][]byte{permanent, changing}
}

func buildTrailer(base *raw.DictObj, size int, id [2][]byte, prev int64) *raw.DictObj {
	trailer := raw.Dict()
	for _, key := range []string{"Root", "Info"} {
		if v, ok := base.Lookup(key); ok {
			trailer.Put(key, v)
		}
	}
	trailer.Put("Size", raw.NumberInt(int64(size)))
	trailer.Put("ID", raw.NewArray(raw.HexStr(id[0]), raw.HexStr(id[1])))
	if prev > 0 {
		trailer.Put("Prev", raw.NumberInt(prev))
	}
	return trailer
}

func writeTrailer(buf *bytes.Buffer, trailer *raw.DictObj, startXRef int64) {
	buf.WriteString("trailer\n")
	buf.Write(SerializePrimitive(trailer))
	fmt.Fprintf(buf, "\nstartxref\n%d\n%%%%EOF\n", startXRef)
}
