package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfengine/filters"
	"github.com/wudi/pdfengine/ir/raw"
	"github.com/wudi/pdfengine/observability"
	"github.com/wudi/pdfengine/recovery"
	"github.com/wudi/pdfengine/scanner"
	"github.com/wudi/pdfengine/security"
	"github.com/wudi/pdfengine/xref"
)

// ErrEncrypted is returned for files carrying an /Encrypt dictionary.
var ErrEncrypted = errors.New("encrypted documents are not supported")

// Config controls high-level PDF parsing (xref resolution + object loading).
type Config struct {
	Recovery recovery.Strategy
	Limits   security.Limits
	Logger   observability.Logger
}

// DocumentParser builds a raw.Document using xref tables/streams and the object loader.
type DocumentParser struct {
	cfg Config
}

func NewDocumentParser(cfg Config) *DocumentParser {
	cfg.Limits = cfg.Limits.WithDefaults()
	if cfg.Logger == nil {
		cfg.Logger = observability.NopLogger{}
	}
	return &DocumentParser{cfg: cfg}
}

// Parse loads the effective revision of every live object. Any failure to
// read the cross-reference chain or a referenced object is returned as an
// error; no partial document is produced unless the recovery strategy
// chooses to skip the broken object.
func (p *DocumentParser) Parse(ctx context.Context, r io.ReaderAt) (*raw.Document, error) {
	limits := p.cfg.Limits
	pipe := filters.DefaultPipeline(filters.Limits{
		MaxDecompressedSize: limits.MaxDecompressedSize,
		MaxDecodeTime:       limits.MaxDecodeTime,
	})
	resolver := xref.NewResolver(xref.ResolverConfig{
		MaxXRefDepth: limits.MaxXRefDepth,
		Recovery:     p.cfg.Recovery,
		Filters:      pipe,
		Scanner: scanner.Config{
			MaxStringLength: limits.MaxStringLength,
			MaxStreamLength: limits.MaxStreamLength,
		},
	})
	table, err := resolver.Resolve(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("resolve xref: %w", err)
	}
	if _, ok := table.Trailer().Lookup("Encrypt"); ok {
		return nil, ErrEncrypted
	}
	if table.Repaired() {
		p.cfg.Logger.Warn("cross-reference rebuilt from object scan", observability.Int("objects", len(table.Objects())))
	}

	loader, err := (&ObjectLoaderBuilder{}).
		WithReader(r).
		WithXRef(table).
		WithLimits(limits).
		WithRecovery(p.cfg.Recovery).
		WithFilters(pipe).
		Build()
	if err != nil {
		return nil, err
	}

	doc := &raw.Document{
		Objects:   make(map[raw.ObjectRef]raw.Object),
		Trailer:   table.Trailer(),
		Version:   detectHeaderVersion(r),
		StartXRef: table.StartXRef(),
		Size:      table.Size(),
		Revisions: len(table.Sections()),
		Repaired:  table.Repaired(),
	}
	for _, num := range table.Objects() {
		ref := raw.ObjectRef{Num: num}
		if e, ok := table.Entry(num); ok && e.Kind == xref.EntryInUse {
			ref.Gen = e.Gen
		}
		obj, err := loader.Load(ctx, ref)
		if err != nil {
			loc := recovery.Location{ObjectNum: ref.Num, ObjectGen: ref.Gen, Component: recovery.ComponentParser}
			if errors.Is(err, context.Canceled) || !recovery.Allows(p.cfg.Recovery, err, loc) {
				return nil, fmt.Errorf("load %s: %w", ref, err)
			}
			p.cfg.Logger.Warn("skipping unreadable object", observability.String("ref", ref.String()), observability.Error("error", err))
			continue
		}
		doc.Objects[ref] = obj
	}
	if rootRef, ok := doc.Trailer.KV["Root"].(raw.RefObj); ok {
		if _, ok := doc.Objects[rootRef.R].(*raw.DictObj); !ok {
			return nil, fmt.Errorf("%w: /Root %s is missing or not a dictionary", xref.ErrMalformed, rootRef.R)
		}
	}
	p.cfg.Logger.Debug("parsed document",
		observability.Int("objects", len(doc.Objects)),
		observability.Int("revisions", doc.Revisions),
		observability.String("version", doc.Version))
	return doc, nil
}

// detectHeaderVersion reads the "%PDF-x.y" header.
func detectHeaderVersion(r io.ReaderAt) string {
	buf := make([]byte, 1024)
	n, _ := r.ReadAt(buf, 0)
	buf = buf[:n]
	idx := bytes.Index(buf, []byte("%PDF-"))
	if idx < 0 || idx+8 > len(buf) {
		return ""
	}
	return string(buf[idx+5 : idx+8])
}
