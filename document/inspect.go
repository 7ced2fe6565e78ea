package document

// DocumentState is a read-only snapshot of document internals.
type DocumentState struct {
	// OriginalProperties are the Info properties as loaded; empty for new
	// documents.
	OriginalProperties map[string]string
	// NamedDestinations maps each destination name to the index of its
	// target page, or -1 when the target is not a page in the sequence.
	NamedDestinations map[string]int
	Loaded            bool
	Repaired          bool
	Version           string
	Revisions         int
	Pages             []PageState
}

// PageState is a read-only snapshot of one page.
type PageState struct {
	Width, Height float64
	Rotate        int
	// SaveCount is the number of graphics states saved and not yet
	// restored by the page's new content.
	SaveCount  int
	Operations int
	Fonts      []string
	Loaded     bool
}

// Inspect returns a snapshot of the document's internal state.
func (d *Document) Inspect() DocumentState {
	index := make(map[*Page]int, len(d.pages))
	for i, p := range d.pages {
		index[p] = i
	}
	st := DocumentState{
		OriginalProperties: d.props.Original(),
		NamedDestinations:  make(map[string]int, len(d.dests)),
		Loaded:             d.loaded,
		Repaired:           d.store.Repaired(),
		Version:            d.store.Version(),
		Revisions:          d.store.Revisions(),
	}
	if st.OriginalProperties == nil {
		st.OriginalProperties = map[string]string{}
	}
	for name, dest := range d.dests {
		i, ok := index[dest.page]
		if dest.page == nil || !ok {
			i = -1
		}
		st.NamedDestinations[name] = i
	}
	for _, p := range d.pages {
		st.Pages = append(st.Pages, p.Inspect())
	}
	return st
}

func (p *Page) Inspect() PageState {
	return PageState{
		Width:      p.Width(),
		Height:     p.Height(),
		Rotate:     p.rotate,
		SaveCount:  p.b.State().Depth(),
		Operations: p.b.Len(),
		Fonts:      p.Fonts(),
		Loaded:     p.Loaded(),
	}
}
