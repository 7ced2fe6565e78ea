package metadata

import (
	"sort"

	"github.com/wudi/pdfengine/ir/raw"
)

// Standard information dictionary keys.
const (
	KeyTitle        = "Title"
	KeyAuthor       = "Author"
	KeySubject      = "Subject"
	KeyKeywords     = "Keywords"
	KeyCreator      = "Creator"
	KeyProducer     = "Producer"
	KeyCreationDate = "CreationDate"
	KeyModDate      = "ModDate"
	KeyTrapped      = "Trapped"
)

type property struct {
	value string
	// name values (such as /Trapped /True) are written back as names.
	name bool
	enc  TextEncoding
}

// Properties is the document information dictionary as a map of decoded
// strings. Writes mark it dirty; a clean set is never re-encoded.
type Properties struct {
	entries  map[string]property
	original map[string]string
	dirty    bool
}

func NewProperties() *Properties {
	return &Properties{entries: map[string]property{}, original: map[string]string{}}
}

// FromInfo decodes an information dictionary. resolve follows indirect
// values and may be nil when the dictionary holds direct objects only.
// Entries that are neither strings nor names are dropped.
func FromInfo(info *raw.DictObj, resolve func(raw.Object) raw.Object) *Properties {
	p := NewProperties()
	if info == nil {
		return p
	}
	for _, key := range info.SortedKeys() {
		v := info.KV[key]
		if resolve != nil {
			v = resolve(v)
		}
		switch t := v.(type) {
		case raw.StringObj:
			s, enc := DecodeText(t.Bytes)
			p.entries[key] = property{value: s, enc: enc}
		case raw.NameObj:
			p.entries[key] = property{value: t.Val, name: true}
		default:
			continue
		}
		p.original[key] = p.entries[key].value
	}
	return p
}

func (p *Properties) Get(key string) (string, bool) {
	e, ok := p.entries[key]
	return e.value, ok
}

// Value returns the property or the empty string.
func (p *Properties) Value(key string) string {
	v, _ := p.Get(key)
	return v
}

// Set stores value and marks the properties dirty, even when the value is
// unchanged. A dirty set is re-encoded in full at the next save.
func (p *Properties) Set(key, value string) {
	p.entries[key] = property{value: value, enc: DetectEncoding(EncodeText(value))}
	p.dirty = true
}

// SetName stores a name-valued entry such as Trapped.
func (p *Properties) SetName(key, value string) {
	p.entries[key] = property{value: value, name: true}
	p.dirty = true
}

func (p *Properties) Delete(key string) {
	if _, ok := p.entries[key]; !ok {
		return
	}
	delete(p.entries, key)
	p.dirty = true
}

// Keys returns the property names in sorted order.
func (p *Properties) Keys() []string {
	keys := make([]string, 0, len(p.entries))
	for k := range p.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p *Properties) Len() int { return len(p.entries) }

// Dirty reports whether any write happened since the properties were
// decoded.
func (p *Properties) Dirty() bool { return p.dirty }

// Encoding reports how a property was stored when it was loaded.
func (p *Properties) Encoding(key string) (TextEncoding, bool) {
	e, ok := p.entries[key]
	return e.enc, ok
}

// HasLegacy reports whether any loaded value needed the Windows-1252
// fallback.
func (p *Properties) HasLegacy() bool {
	for _, e := range p.entries {
		if !e.name && e.enc == EncodingLegacy {
			return true
		}
	}
	return false
}

// Original returns a copy of the values as they were decoded at load time.
func (p *Properties) Original() map[string]string {
	out := make(map[string]string, len(p.original))
	for k, v := range p.original {
		out[k] = v
	}
	return out
}

// Map returns a copy of the current values.
func (p *Properties) Map() map[string]string {
	out := make(map[string]string, len(p.entries))
	for k, e := range p.entries {
		out[k] = e.value
	}
	return out
}

// Info re-encodes every property canonically into a new dictionary.
// Legacy values come out as PDFDocEncoding or UTF-16BE.
func (p *Properties) Info() *raw.DictObj {
	d := raw.Dict()
	for k, e := range p.entries {
		if e.name {
			d.Put(k, raw.NameLiteral(e.value))
			continue
		}
		d.Put(k, raw.Str(EncodeText(e.value)))
	}
	return d
}

// Clone returns an independent copy including the dirty flag.
func (p *Properties) Clone() *Properties {
	out := &Properties{
		entries:  make(map[string]property, len(p.entries)),
		original: p.Original(),
		dirty:    p.dirty,
	}
	for k, e := range p.entries {
		out.entries[k] = e
	}
	return out
}
