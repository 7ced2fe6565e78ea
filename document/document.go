// Package document is the public face of the engine: an ordered set of
// pages, the Info properties and XMP packet of a file, and the load and save
// entry points tying them to an object store.
package document

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/wudi/pdfengine/filters"
	"github.com/wudi/pdfengine/fonts"
	"github.com/wudi/pdfengine/ir/raw"
	"github.com/wudi/pdfengine/metadata"
	"github.com/wudi/pdfengine/observability"
	"github.com/wudi/pdfengine/recovery"
	"github.com/wudi/pdfengine/security"
	"github.com/wudi/pdfengine/store"
	"github.com/wudi/pdfengine/writer"
)

// ErrUnsupportedOperation reports a request the engine refuses to carry
// out, such as drawing on a struct copy of a Page or attaching one page
// twice.
var ErrUnsupportedOperation = errors.New("document: unsupported operation")

// Error records the operation that failed.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return "document: " + e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

type Config struct {
	Logger   observability.Logger
	Tracer   observability.Tracer
	Recovery recovery.Strategy
	Limits   security.Limits
	// Compression is the flate level for new streams; zero stores them raw.
	Compression int
	// FullRewrite saves loaded documents as a new file instead of an
	// incremental update.
	FullRewrite     bool
	DeterministicID bool
}

type Option func(*Config)

func WithLogger(l observability.Logger) Option { return func(c *Config) { c.Logger = l } }
func WithTracer(t observability.Tracer) Option { return func(c *Config) { c.Tracer = t } }

// WithRecovery selects how loading reacts to damaged files.
// recovery.NewLenientStrategy rebuilds a broken cross-reference table by
// scanning the file.
func WithRecovery(s recovery.Strategy) Option { return func(c *Config) { c.Recovery = s } }
func WithLimits(l security.Limits) Option     { return func(c *Config) { c.Limits = l } }
func WithCompression(level int) Option        { return func(c *Config) { c.Compression = level } }
func WithFullRewrite() Option                 { return func(c *Config) { c.FullRewrite = true } }

// WithDeterministicID derives the trailer /ID from the written bytes only,
// so that identical documents render identically.
func WithDeterministicID() Option { return func(c *Config) { c.DeterministicID = true } }

func newConfig(opts []Option) Config {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NopTracer()
	}
	cfg.Limits = cfg.Limits.WithDefaults()
	if lenient, ok := cfg.Recovery.(*recovery.LenientStrategy); ok && lenient.Logger == nil {
		lenient.Logger = cfg.Logger
	}
	return cfg
}

func (c Config) store() store.Config {
	return store.Config{
		Recovery: c.Recovery,
		Limits:   c.Limits,
		Logger:   c.Logger,
		Writer: writer.Config{
			Compression:   c.Compression,
			Deterministic: c.DeterministicID,
		},
	}
}

// Document is not safe for concurrent use.
type Document struct {
	cfg      Config
	store    *store.Store
	pipeline *filters.Pipeline
	loaded   bool

	catalog   raw.ObjectRef
	pagesRoot raw.ObjectRef
	info      raw.ObjectRef
	pages     []*Page
	// tree is the page order last written to (or read from) the store.
	tree []raw.ObjectRef

	props    *metadata.Properties
	xmp      []byte
	xmpRef   raw.ObjectRef
	xmpDirty bool

	dests      map[string]*destination
	destsDirty bool

	fontRefs map[*fonts.Font]raw.ObjectRef
}

type destination struct {
	page *Page
	// raw is the value read from the file; nil for destinations set
	// through SetNamedDestination.
	raw raw.Object
}

// New returns an empty document.
func New(opts ...Option) *Document {
	cfg := newConfig(opts)
	return newDocument(cfg, store.New(cfg.store()))
}

func newDocument(cfg Config, st *store.Store) *Document {
	return &Document{
		cfg:   cfg,
		store: st,
		pipeline: filters.DefaultPipeline(filters.Limits{
			MaxDecompressedSize: cfg.Limits.MaxDecompressedSize,
			MaxDecodeTime:       cfg.Limits.MaxDecodeTime,
		}),
		props:    metadata.NewProperties(),
		dests:    make(map[string]*destination),
		fontRefs: make(map[*fonts.Font]raw.ObjectRef),
	}
}

// Load reads the file at path.
func Load(ctx context.Context, path string, opts ...Option) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Op: "load", Err: err}
	}
	return Parse(ctx, data, opts...)
}

// NewPage returns a page bound to d. It is not part of the page sequence
// until it is appended.
func (d *Document) NewPage(size PageSize) *Page {
	p := NewPage(size)
	p.doc = d
	return p
}

// Pages returns the page sequence. The slice is a copy; the pages are not.
func (d *Document) Pages() []*Page {
	out := make([]*Page, len(d.pages))
	copy(out, d.pages)
	return out
}

func (d *Document) PageCount() int { return len(d.pages) }

// SetPages replaces the page sequence. Pages are saved in this order. A page
// may appear once, must not be a struct copy and must not belong to another
// document.
func (d *Document) SetPages(pages []*Page) error {
	seen := make(map[*Page]bool, len(pages))
	for i, p := range pages {
		if p == nil {
			return &Error{Op: "set pages", Err: fmt.Errorf("%w: page %d is nil", ErrUnsupportedOperation, i+1)}
		}
		if err := p.usable(); err != nil {
			return &Error{Op: "set pages", Err: err}
		}
		if p.doc != nil && p.doc != d {
			return &Error{Op: "set pages", Err: fmt.Errorf("%w: page %d belongs to another document", ErrUnsupportedOperation, i+1)}
		}
		if seen[p] {
			return &Error{Op: "set pages", Err: fmt.Errorf("%w: page %d appears twice", ErrUnsupportedOperation, i+1)}
		}
		seen[p] = true
	}
	for _, p := range pages {
		p.doc = d
	}
	d.pages = append([]*Page(nil), pages...)
	return nil
}

// AppendPage adds pages at the end of the sequence.
func (d *Document) AppendPage(pages ...*Page) error {
	next := append(d.Pages(), pages...)
	return d.SetPages(next)
}

// Properties returns the live Info properties. Any write makes the next
// save re-encode and store the whole dictionary.
func (d *Document) Properties() *metadata.Properties { return d.props }

// Metadata returns the XMP packet, or nil when the document has none.
func (d *Document) Metadata() []byte {
	if d.xmp == nil {
		return nil
	}
	return append([]byte(nil), d.xmp...)
}

// SetMetadata replaces the XMP packet. Info properties are not touched.
func (d *Document) SetMetadata(xmp []byte) {
	d.xmp = append([]byte(nil), xmp...)
	d.xmpDirty = true
}

// NamedDestinations lists destination names in sorted order.
func (d *Document) NamedDestinations() []string {
	names := make([]string, 0, len(d.dests))
	for name := range d.dests {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Destination returns the page a named destination points at. The page is
// nil when the target is not a page of this document.
func (d *Document) Destination(name string) (*Page, bool) {
	dest, ok := d.dests[name]
	if !ok {
		return nil, false
	}
	return dest.page, true
}

// SetNamedDestination makes name jump to the top of p.
func (d *Document) SetNamedDestination(name string, p *Page) error {
	if err := p.usable(); err != nil {
		return &Error{Op: "set destination", Err: err}
	}
	if p.doc != d {
		return &Error{Op: "set destination", Err: fmt.Errorf("%w: page is not part of this document", ErrUnsupportedOperation)}
	}
	d.dests[name] = &destination{page: p}
	d.destsDirty = true
	return nil
}

func (d *Document) RemoveNamedDestination(name string) {
	if _, ok := d.dests[name]; ok {
		delete(d.dests, name)
		d.destsDirty = true
	}
}

// Store exposes the underlying object store.
func (d *Document) Store() *store.Store { return d.store }

func (d *Document) fontRef(f *fonts.Font) raw.ObjectRef {
	if ref, ok := d.fontRefs[f]; ok {
		return ref
	}
	ref := d.store.Add(f.Dictionary())
	d.fontRefs[f] = ref
	return ref
}

func (d *Document) resolve(obj raw.Object) raw.Object {
	v, err := d.store.Resolve(obj)
	if err != nil {
		return raw.NullObj{}
	}
	return v
}

// streamData returns the decoded bytes of a stream object.
func (d *Document) streamData(ctx context.Context, obj raw.Object) ([]byte, error) {
	s, ok := d.resolve(obj).(*raw.StreamObj)
	if !ok {
		return nil, fmt.Errorf("%w: expected stream, got %T", store.ErrCorruptDocument, d.resolve(obj))
	}
	names, params := filters.ExtractFilters(s.Dict)
	if len(names) == 0 {
		return s.Data, nil
	}
	if !d.pipeline.Supports(names) {
		return nil, fmt.Errorf("%w: stream filters %v", ErrUnsupportedOperation, names)
	}
	return d.pipeline.Decode(ctx, s.Data, names, params)
}
