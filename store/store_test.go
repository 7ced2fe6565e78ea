package store

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wudi/pdfengine/ir/raw"
	"github.com/wudi/pdfengine/recovery"
	"github.com/wudi/pdfengine/writer"
)

func deterministic() Config {
	return Config{Writer: writer.Config{Deterministic: true}}
}

// newCatalog builds catalog -> pages and returns the catalog ref.
func newCatalog(s *Store) raw.ObjectRef {
	pagesRef := s.Alloc()
	pages := raw.Dict()
	pages.Put("Type", raw.NameLiteral("Pages"))
	pages.Put("Kids", raw.NewArray())
	pages.Put("Count", raw.NumberInt(0))
	catalog := raw.Dict()
	catalog.Put("Type", raw.NameLiteral("Catalog"))
	catalog.Put("Pages", raw.RefTo(pagesRef))
	if err := s.Set(pagesRef, pages); err != nil {
		panic(err)
	}
	return s.Add(catalog)
}

func TestAllocIsMonotonic(t *testing.T) {
	s := New(Config{})
	a := s.Alloc()
	b := s.Add(raw.Dict())
	if a.Num != 1 || b.Num != 2 || b.Gen != 0 {
		t.Fatalf("unexpected refs %v %v", a, b)
	}
	if err := s.Set(raw.ObjectRef{Num: 10}, raw.Dict()); err != nil {
		t.Fatal(err)
	}
	if c := s.Alloc(); c.Num != 11 {
		t.Fatalf("alloc after explicit set = %v, want 11", c)
	}
	if err := s.Set(raw.ObjectRef{}, raw.Dict()); !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("object 0 accepted: %v", err)
	}
}

func TestResolveFollowsChains(t *testing.T) {
	s := New(Config{})
	target := s.Add(raw.NumberInt(7))
	mid := s.Add(raw.RefTo(target))
	got, err := s.Resolve(raw.RefTo(mid))
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := raw.IntOf(got); n != 7 {
		t.Fatalf("resolved %v", got)
	}
	if got, _ := s.Resolve(raw.Ref(99, 0)); got != (raw.NullObj{}) {
		t.Fatalf("missing ref resolved to %v", got)
	}

	loopA := s.Alloc()
	loopB := s.Add(raw.RefTo(loopA))
	_ = s.Set(loopA, raw.RefTo(loopB))
	if _, err := s.Resolve(raw.RefTo(loopA)); !errors.Is(err, ErrCorruptDocument) {
		t.Fatalf("expected ErrCorruptDocument for reference loop, got %v", err)
	}
}

func TestReachableHandlesCycles(t *testing.T) {
	s := New(Config{})
	a := s.Alloc()
	b := s.Alloc()
	da := raw.Dict()
	da.Put("Next", raw.RefTo(b))
	db := raw.Dict()
	db.Put("Prev", raw.RefTo(a))
	_ = s.Set(a, da)
	_ = s.Set(b, db)
	s.Add(raw.Dict()) // unreachable

	got := s.Reachable(a)
	if diff := cmp.Diff([]raw.ObjectRef{a, b}, got); diff != "" {
		t.Fatalf("reachable mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteFullRenumbersDensely(t *testing.T) {
	s := New(deterministic())
	s.Add(raw.Dict()) // garbage at number 1
	root := newCatalog(s)
	info := raw.Dict()
	info.Put("Title", raw.Str([]byte("T")))
	infoRef := s.Add(info)

	var buf bytes.Buffer
	res, err := s.WriteFull(context.Background(), &buf, root, infoRef)
	if err != nil {
		t.Fatal(err)
	}
	if res.Size != 4 {
		t.Fatalf("size = %d, want 4 (catalog, pages, info)", res.Size)
	}
	loaded, err := Load(context.Background(), buf.Bytes(), Config{})
	if err != nil {
		t.Fatal(err)
	}
	rootRef, _ := loaded.TrailerRef("Root")
	if rootRef.Num != 1 {
		t.Fatalf("catalog renumbered to %v, want 1", rootRef)
	}
	catalog := loaded.ResolveDict(raw.RefTo(rootRef))
	pages := loaded.ResolveDict(catalog.KV["Pages"])
	if raw.NameOf(pages.KV["Type"]) != "Pages" {
		t.Fatalf("pages not resolvable after renumbering")
	}
	if loaded.Len() != 3 {
		t.Fatalf("objects = %d, want 3", loaded.Len())
	}
}

func TestLoadCorrupt(t *testing.T) {
	_, err := Load(context.Background(), []byte("%PDF-1.7\ngarbage"), Config{})
	if !errors.Is(err, ErrCorruptDocument) {
		t.Fatalf("expected ErrCorruptDocument, got %v", err)
	}
}

func saved(t *testing.T) []byte {
	t.Helper()
	s := New(deterministic())
	root := newCatalog(s)
	info := raw.Dict()
	info.Put("Title", raw.Str([]byte("Original")))
	infoRef := s.Add(info)
	extra := s.Add(raw.Dict())
	catalog, _ := s.Get(root)
	catalog.(*raw.DictObj).Put("Extra", raw.RefTo(extra))

	var buf bytes.Buffer
	if _, err := s.WriteFull(context.Background(), &buf, root, infoRef); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestWriteIncrementalAppendsChanges(t *testing.T) {
	base := saved(t)
	s, err := Load(context.Background(), base, deterministic())
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Dirty()) != 0 {
		t.Fatalf("freshly loaded store is dirty: %v", s.Dirty())
	}
	root, _ := s.TrailerRef("Root")
	infoRef, _ := s.TrailerRef("Info")
	info := s.ResolveDict(raw.RefTo(infoRef))
	info.Put("Title", raw.Str([]byte("Changed")))
	s.Touch(infoRef)

	catalog := s.ResolveDict(raw.RefTo(root))
	extra := catalog.KV["Extra"].(raw.RefObj).R
	catalog.Delete("Extra")
	s.Touch(root)
	s.Delete(extra)

	var out bytes.Buffer
	if _, err := s.WriteIncremental(context.Background(), &out, root, infoRef); err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(out.Bytes(), base) {
		t.Fatalf("original bytes altered")
	}

	reloaded, err := Load(context.Background(), out.Bytes(), Config{})
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Revisions() != 2 {
		t.Fatalf("revisions = %d, want 2", reloaded.Revisions())
	}
	title := reloaded.ResolveDict(raw.RefTo(infoRef)).KV["Title"].(raw.StringObj)
	if string(title.Bytes) != "Changed" {
		t.Fatalf("title = %q", title.Bytes)
	}
	if _, ok := reloaded.Get(extra); ok {
		t.Fatalf("deleted object %v still live", extra)
	}

	// A second save starts from the same base and yields the same bytes.
	var again bytes.Buffer
	if _, err := s.WriteIncremental(context.Background(), &again, root, infoRef); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out.Bytes(), again.Bytes()) {
		t.Fatalf("repeated incremental save differs")
	}
}

func TestWriteIncrementalRequiresBase(t *testing.T) {
	s := New(Config{})
	root := newCatalog(s)
	_, err := s.WriteIncremental(context.Background(), &bytes.Buffer{}, root, raw.ObjectRef{})
	if !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("expected ErrInvariantViolation, got %v", err)
	}
}

func TestRepairedLoadCannotAppend(t *testing.T) {
	data := saved(t)
	broken := bytes.Replace(data, []byte("startxref\n"), []byte("startxref\n9"), 1)
	if _, err := Load(context.Background(), broken, Config{}); !errors.Is(err, ErrCorruptDocument) {
		t.Fatalf("strict load of broken file: %v", err)
	}
	s, err := Load(context.Background(), broken, Config{Recovery: recovery.NewLenientStrategy()})
	if err != nil {
		t.Fatalf("lenient load: %v", err)
	}
	if !s.Repaired() || s.CanAppend() {
		t.Fatalf("repaired=%v canAppend=%v", s.Repaired(), s.CanAppend())
	}
}
