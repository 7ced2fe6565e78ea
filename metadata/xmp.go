package metadata

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
)

// XMP namespaces used by the information dictionary mapping.
const (
	NSRDF  = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	NSDC   = "http://purl.org/dc/elements/1.1/"
	NSPDF  = "http://ns.adobe.com/pdf/1.3/"
	NSXMP  = "http://ns.adobe.com/xap/1.0/"
	NSPDFX = "http://ns.adobe.com/pdfx/1.3/"
	NSMM   = "http://ns.adobe.com/xap/1.0/mm/"
	NSPDFA = "http://www.aiim.org/pdfa/ns/id/"
)

var (
	ErrMalformedXMP  = errors.New("metadata: malformed XMP")
	ErrNoDescription = errors.New("metadata: XMP has no rdf:Description")
)

var knownPrefixes = map[string]string{
	NSRDF:  "rdf",
	NSDC:   "dc",
	NSPDF:  "pdf",
	NSXMP:  "xmp",
	NSPDFX: "pdfx",
	NSMM:   "xmpMM",
	NSPDFA: "pdfaid",
}

// xtoken is a raw token with its byte span in the packet. Element tokens
// carry the namespace URIs their prefixes resolve to at that point.
type xtoken struct {
	tok        xml.Token
	start, end int
	uri        string
	attrURI    []string
	scope      map[string]string // prefix -> URI in effect inside the element
}

type xdoc struct {
	data []byte
	toks []xtoken
}

// scanXMP tokenizes the packet. Namespace declarations are scoped to the
// element declaring them, so a prefix may be rebound in a nested element.
func scanXMP(data []byte) (*xdoc, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	doc := &xdoc{data: data}
	scopes := []map[string]string{{"xml": "http://www.w3.org/XML/1998/namespace"}}
	for {
		start := int(d.InputOffset())
		tok, err := d.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedXMP, err)
		}
		xt := xtoken{tok: xml.CopyToken(tok), start: start, end: int(d.InputOffset())}
		switch t := tok.(type) {
		case xml.StartElement:
			scope, copied := scopes[len(scopes)-1], false
			for _, a := range t.Attr {
				if a.Name.Space != "xmlns" {
					continue
				}
				if !copied {
					scope, copied = copyScope(scope), true
				}
				scope[a.Name.Local] = a.Value
			}
			scopes = append(scopes, scope)
			xt.scope = scope
			xt.uri = scope[t.Name.Space]
			xt.attrURI = make([]string, len(t.Attr))
			for i, a := range t.Attr {
				if a.Name.Space != "" {
					xt.attrURI[i] = scope[a.Name.Space]
				}
			}
		case xml.EndElement:
			if len(scopes) == 1 {
				return nil, fmt.Errorf("%w: unexpected </%s>", ErrMalformedXMP, qname(t.Name))
			}
			xt.scope = scopes[len(scopes)-1]
			xt.uri = xt.scope[t.Name.Space]
			scopes = scopes[:len(scopes)-1]
		}
		doc.toks = append(doc.toks, xt)
	}
	return doc, nil
}

func copyScope(m map[string]string) map[string]string {
	out := make(map[string]string, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// isElement reports whether token i opens or closes ns:local.
func (doc *xdoc) isElement(i int, ns, local string) bool {
	t := doc.toks[i]
	switch e := t.tok.(type) {
	case xml.StartElement:
		return e.Name.Local == local && t.uri == ns
	case xml.EndElement:
		return e.Name.Local == local && t.uri == ns
	}
	return false
}

// key names a property by its conventional prefix when the namespace is
// well known.
func key(uri string, n xml.Name) string {
	if p, ok := knownPrefixes[uri]; ok {
		return p + ":" + n.Local
	}
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

// matchEnd returns the index of the end token closing the element opened
// at i.
func (doc *xdoc) matchEnd(i int) int {
	depth := 0
	for j := i; j < len(doc.toks); j++ {
		switch doc.toks[j].tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
			if depth == 0 {
				return j
			}
		}
	}
	return len(doc.toks) - 1
}

// descriptions returns the [start, end] token indexes of every
// rdf:Description element.
func (doc *xdoc) descriptions() [][2]int {
	var out [][2]int
	for i := 0; i < len(doc.toks); i++ {
		if _, ok := doc.toks[i].tok.(xml.StartElement); !ok || !doc.isElement(i, NSRDF, "Description") {
			continue
		}
		end := doc.matchEnd(i)
		out = append(out, [2]int{i, end})
		i = end
	}
	return out
}

// ReadDescription returns the simple properties of every rdf:Description,
// keyed prefix:Local. Attribute and element forms are both read. Array
// values (rdf:Alt, rdf:Seq, rdf:Bag) are joined with ", ".
func ReadDescription(xmp []byte) (map[string]string, error) {
	doc, err := scanXMP(xmp)
	if err != nil {
		return nil, err
	}
	descs := doc.descriptions()
	if len(descs) == 0 {
		return nil, ErrNoDescription
	}
	out := map[string]string{}
	for _, span := range descs {
		open := doc.toks[span[0]]
		for k, a := range open.tok.(xml.StartElement).Attr {
			if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" || open.attrURI[k] == NSRDF {
				continue
			}
			out[key(open.attrURI[k], a.Name)] = a.Value
		}
		for i := span[0] + 1; i < span[1]; i++ {
			child, ok := doc.toks[i].tok.(xml.StartElement)
			if !ok {
				continue
			}
			end := doc.matchEnd(i)
			out[key(doc.toks[i].uri, child.Name)] = doc.elementText(i, end)
			i = end
		}
	}
	return out, nil
}

func (doc *xdoc) elementText(from, to int) string {
	var items []string
	var text strings.Builder
	inItem := false
	for j := from + 1; j < to; j++ {
		switch t := doc.toks[j].tok.(type) {
		case xml.StartElement:
			if doc.isElement(j, NSRDF, "li") {
				inItem = true
				text.Reset()
			}
		case xml.EndElement:
			if inItem && doc.isElement(j, NSRDF, "li") {
				items = append(items, text.String())
				inItem = false
			}
		case xml.CharData:
			text.Write(t)
		}
	}
	if len(items) > 0 {
		return strings.Join(items, ", ")
	}
	return strings.TrimSpace(text.String())
}

func escapeXML(s string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

func qname(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

// splice replaces data[from:to] with s.
func splice(data []byte, from, to int, s string) []byte {
	out := make([]byte, 0, len(data)-(to-from)+len(s))
	out = append(out, data[:from]...)
	out = append(out, s...)
	return append(out, data[to:]...)
}

// fillEmpty turns a self-closing tag into an open/close pair around s.
func fillEmpty(tag []byte, name xml.Name, s string) string {
	open := strings.TrimSuffix(strings.TrimRight(string(tag), " \t\r\n"), "/>")
	return strings.TrimRight(open, " \t\r\n") + ">" + s + "</" + qname(name) + ">"
}

// SetDescriptionValue rewrites one simple property in the first
// rdf:Description that holds it and returns the new packet. The first
// array item is replaced for array values. A missing property is added to
// the first description. Bytes outside the changed value are kept as-is.
func SetDescriptionValue(xmp []byte, ns, local, value string) ([]byte, error) {
	doc, err := scanXMP(xmp)
	if err != nil {
		return nil, err
	}
	descs := doc.descriptions()
	if len(descs) == 0 {
		return nil, ErrNoDescription
	}
	esc := escapeXML(value)
	for _, span := range descs {
		open := doc.toks[span[0]]
		se := open.tok.(xml.StartElement)
		for k, a := range se.Attr {
			if a.Name.Local == local && open.attrURI[k] == ns {
				return replaceAttr(doc.data, open, a.Name, esc)
			}
		}
		for i := span[0] + 1; i < span[1]; i++ {
			child, ok := doc.toks[i].tok.(xml.StartElement)
			if !ok {
				continue
			}
			end := doc.matchEnd(i)
			if child.Name.Local == local && doc.toks[i].uri == ns {
				return doc.replaceContent(i, end, esc), nil
			}
			i = end
		}
	}

	// Not present: append to the first description.
	span := descs[0]
	scope := doc.toks[span[0]].scope
	prefix, bound := boundPrefix(scope, ns)
	decl := ""
	if !bound {
		prefix = knownPrefixes[ns]
		for n := len(scope); prefix == "" || scope[prefix] != ""; n++ {
			prefix = "ns" + fmt.Sprint(n)
		}
		decl = fmt.Sprintf(` xmlns:%s="%s"`, prefix, escapeXML(ns))
	}
	elem := fmt.Sprintf("<%s:%s%s>%s</%s:%s>", prefix, local, decl, esc, prefix, local)
	open, closing := doc.toks[span[0]], doc.toks[span[1]]
	if closing.start == open.end && bytes.HasSuffix(bytes.TrimRight(doc.data[open.start:open.end], " \t\r\n"), []byte("/>")) {
		se := open.tok.(xml.StartElement)
		return splice(doc.data, open.start, open.end, fillEmpty(doc.data[open.start:open.end], se.Name, elem)), nil
	}
	return splice(doc.data, closing.start, closing.start, elem), nil
}

// boundPrefix returns the prefix scope binds to ns, preferring the
// conventional one.
func boundPrefix(scope map[string]string, ns string) (string, bool) {
	if p := knownPrefixes[ns]; p != "" && scope[p] == ns {
		return p, true
	}
	var found []string
	for p, uri := range scope {
		if uri == ns {
			found = append(found, p)
		}
	}
	if len(found) == 0 {
		return "", false
	}
	sort.Strings(found)
	return found[0], true
}

func (doc *xdoc) replaceContent(from, to int, esc string) []byte {
	for j := from + 1; j < to; j++ {
		if _, ok := doc.toks[j].tok.(xml.StartElement); ok && doc.isElement(j, NSRDF, "li") {
			return doc.replaceContent(j, doc.matchEnd(j), esc)
		}
	}
	open, closing := doc.toks[from], doc.toks[to]
	if closing.start == open.end && bytes.HasSuffix(bytes.TrimRight(doc.data[open.start:open.end], " \t\r\n"), []byte("/>")) {
		se := open.tok.(xml.StartElement)
		return splice(doc.data, open.start, open.end, fillEmpty(doc.data[open.start:open.end], se.Name, esc))
	}
	return splice(doc.data, open.end, closing.start, esc)
}

func replaceAttr(data []byte, open xtoken, name xml.Name, esc string) ([]byte, error) {
	tag := data[open.start:open.end]
	re := regexp.MustCompile(`(\s` + regexp.QuoteMeta(qname(name)) + `\s*=\s*)("[^"]*"|'[^']*')`)
	loc := re.FindSubmatchIndex(tag)
	if loc == nil {
		return nil, fmt.Errorf("%w: attribute %s not found", ErrMalformedXMP, qname(name))
	}
	return splice(data, open.start+loc[4], open.start+loc[5], `"`+esc+`"`), nil
}

// infoToXMP maps information dictionary keys onto XMP properties.
var infoToXMP = map[string]struct {
	ns, local, array string
}{
	KeyTitle:        {NSDC, "title", "Alt"},
	KeyAuthor:       {NSDC, "creator", "Seq"},
	KeySubject:      {NSDC, "description", "Alt"},
	KeyKeywords:     {NSPDF, "Keywords", ""},
	KeyProducer:     {NSPDF, "Producer", ""},
	KeyTrapped:      {NSPDF, "Trapped", ""},
	KeyCreator:      {NSXMP, "CreatorTool", ""},
	KeyCreationDate: {NSXMP, "CreateDate", ""},
	KeyModDate:      {NSXMP, "ModifyDate", ""},
}

var ncName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9._-]*$`)

// NewPacket builds an XMP packet mirroring props. Standard keys map to the
// Dublin Core, PDF and XMP basic schemas; other keys whose names are valid
// XML names go to the pdfx schema. Dates are converted to ISO 8601 when
// they parse.
func NewPacket(props *Properties) []byte {
	var b strings.Builder
	b.WriteString("<?xpacket begin=\"\ufeff\" id=\"W5M0MpCehiHzreSzNTczkc9d\"?>\n")
	b.WriteString(`<x:xmpmeta xmlns:x="adobe:ns:meta/">` + "\n")
	b.WriteString(` <rdf:RDF xmlns:rdf="` + NSRDF + `">` + "\n")
	b.WriteString(`  <rdf:Description rdf:about=""`)
	for _, ns := range []string{NSDC, NSPDF, NSXMP, NSPDFX} {
		fmt.Fprintf(&b, " xmlns:%s=\"%s\"", knownPrefixes[ns], ns)
	}
	b.WriteString(">\n")

	for _, k := range props.Keys() {
		v := props.Value(k)
		m, ok := infoToXMP[k]
		if !ok {
			if !ncName.MatchString(k) {
				continue
			}
			m.ns, m.local = NSPDFX, k
		}
		if k == KeyCreationDate || k == KeyModDate {
			if t, err := ParseDate(v); err == nil {
				v = t.Format("2006-01-02T15:04:05-07:00")
			}
		}
		q := knownPrefixes[m.ns] + ":" + m.local
		switch m.array {
		case "Alt":
			fmt.Fprintf(&b, "   <%s><rdf:Alt><rdf:li xml:lang=\"x-default\">%s</rdf:li></rdf:Alt></%s>\n", q, escapeXML(v), q)
		case "Seq":
			fmt.Fprintf(&b, "   <%s><rdf:Seq><rdf:li>%s</rdf:li></rdf:Seq></%s>\n", q, escapeXML(v), q)
		default:
			fmt.Fprintf(&b, "   <%s>%s</%s>\n", q, escapeXML(v), q)
		}
	}
	b.WriteString("  </rdf:Description>\n </rdf:RDF>\n</x:xmpmeta>\n")
	b.WriteString(`<?xpacket end="w"?>`)
	return []byte(b.String())
}
