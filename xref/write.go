package xref

import (
	"fmt"
	"io"
	"sort"
)

// WriteTable writes a classic cross-reference section ("xref" keyword and
// subsections, no trailer). Entries are sorted and grouped into contiguous
// runs; free entries are chained into a list headed by object 0.
func WriteTable(w io.Writer, entries []Entry) error {
	sorted := append([]Entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Num < sorted[j].Num })

	var free []int
	for i, e := range sorted {
		if i > 0 && e.Num == sorted[i-1].Num {
			return fmt.Errorf("duplicate xref entry for object %d", e.Num)
		}
		if e.Kind == EntryFree {
			free = append(free, i)
		}
	}
	for k, idx := range free {
		next := 0
		if k+1 < len(free) {
			next = sorted[free[k+1]].Num
		}
		sorted[idx].Offset = int64(next)
	}

	if _, err := io.WriteString(w, "xref\n"); err != nil {
		return err
	}
	for start := 0; start < len(sorted); {
		end := start + 1
		for end < len(sorted) && sorted[end].Num == sorted[end-1].Num+1 {
			end++
		}
		if _, err := fmt.Fprintf(w, "%d %d\n", sorted[start].Num, end-start); err != nil {
			return err
		}
		for _, e := range sorted[start:end] {
			kind := 'n'
			if e.Kind == EntryFree {
				kind = 'f'
			}
			// Each entry is exactly 20 bytes including the two-byte EOL.
			if _, err := fmt.Fprintf(w, "%010d %05d %c \n", e.Offset, e.Gen, kind); err != nil {
				return err
			}
		}
		start = end
	}
	return nil
}
