package xref

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/wudi/pdfengine/ir/raw"
)

// repair rebuilds the table from every "<num> <gen> obj" header in the file.
// The trailer is the last one found; without one, a minimal trailer is
// synthesized around the first catalog object.
func repair(ctx context.Context, data []byte, cfg ResolverConfig) (*Table, error) {
	res, err := raw.ScanObjects(ctx, bytes.NewReader(data), raw.ScanConfig{Scanner: cfg.Scanner})
	if err != nil {
		return nil, err
	}
	if len(res.Objects) == 0 {
		return nil, fmt.Errorf("%w: repair found no objects", ErrMalformed)
	}

	t := &Table{entries: make(map[int]Entry), repaired: true}
	refs := make([]raw.ObjectRef, 0, len(res.Offsets))
	for ref := range res.Offsets {
		refs = append(refs, ref)
	}
	// Higher generations of the same number supersede lower ones.
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Num != refs[j].Num {
			return refs[i].Num < refs[j].Num
		}
		return refs[i].Gen > refs[j].Gen
	})
	for _, ref := range refs {
		if _, ok := t.entries[ref.Num]; ok {
			continue
		}
		t.entries[ref.Num] = Entry{Num: ref.Num, Kind: EntryInUse, Offset: res.Offsets[ref], Gen: ref.Gen}
	}

	trailer := raw.Dict()
	if res.Trailer != nil {
		trailer = mergedTrailer([]Section{{Trailer: res.Trailer}})
	}
	if root, ok := trailer.KV["Root"].(raw.RefObj); !ok || t.entries[root.R.Num].Kind != EntryInUse {
		catalog, ok := findCatalog(res, refs)
		if !ok {
			return nil, errors.Join(ErrMalformed, errors.New("repair found no catalog"))
		}
		trailer.Put("Root", raw.RefTo(catalog))
	}
	t.trailer = trailer
	t.trailer.Put("Size", raw.NumberInt(int64(t.Size())))
	t.sections = []Section{{Trailer: trailer}}
	return t, nil
}

func findCatalog(res *raw.ScanResult, refs []raw.ObjectRef) (raw.ObjectRef, bool) {
	for _, ref := range refs {
		if d, ok := res.Objects[ref].(*raw.DictObj); ok && raw.NameOf(d.KV["Type"]) == "Catalog" {
			return ref, true
		}
	}
	return raw.ObjectRef{}, false
}
