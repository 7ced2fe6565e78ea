package raw

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfengine/recovery"
	"github.com/wudi/pdfengine/scanner"
)

// TokenReader wraps a scanner with token pushback.
type TokenReader struct {
	s   scanner.Scanner
	buf []scanner.Token
}

func NewTokenReader(s scanner.Scanner) *TokenReader { return &TokenReader{s: s} }

func (tr *TokenReader) Next() (scanner.Token, error) {
	if n := len(tr.buf); n > 0 {
		tok := tr.buf[n-1]
		tr.buf = tr.buf[:n-1]
		return tok, nil
	}
	return tr.s.Next()
}

func (tr *TokenReader) Unread(tok scanner.Token) { tr.buf = append(tr.buf, tok) }

// Seek repositions the underlying scanner and drops pushed-back tokens.
func (tr *TokenReader) Seek(offset int64) error {
	tr.buf = tr.buf[:0]
	return tr.s.Seek(offset)
}

func (tr *TokenReader) Scanner() scanner.Scanner { return tr.s }

// ErrUnexpectedToken reports a token that cannot start or continue an object.
var ErrUnexpectedToken = errors.New("unexpected token")

// ParseObject reads one direct object. Stream payloads are not handled here
// because the length may be an indirect reference only the caller can resolve.
func ParseObject(tr *TokenReader) (Object, error) {
	tok, err := tr.Next()
	if err != nil {
		return nil, err
	}
	return objectFromToken(tr, tok)
}

func objectFromToken(tr *TokenReader, tok scanner.Token) (Object, error) {
	switch tok.Type {
	case scanner.TokenName:
		return NameObj{Val: tok.Str}, nil
	case scanner.TokenNumber:
		if tok.IsInt {
			return NumberInt(tok.Int), nil
		}
		return NumberFloat(tok.Float), nil
	case scanner.TokenBoolean:
		return Bool(tok.Bool), nil
	case scanner.TokenNull:
		return NullObj{}, nil
	case scanner.TokenString:
		return StringObj{Bytes: tok.Bytes, Hex: tok.Hex}, nil
	case scanner.TokenRef:
		return Ref(int(tok.Int), tok.Gen), nil
	case scanner.TokenArray:
		return parseArray(tr)
	case scanner.TokenDict:
		return parseDict(tr)
	}
	return nil, fmt.Errorf("%w %v %q at %d", ErrUnexpectedToken, tok.Type, tok.Str, tok.Pos)
}

func parseArray(tr *TokenReader) (Object, error) {
	arr := &ArrayObj{}
	for {
		tok, err := tr.Next()
		if err != nil {
			return nil, fmt.Errorf("array: %w", err)
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "]" {
			return arr, nil
		}
		item, err := objectFromToken(tr, tok)
		if err != nil {
			return nil, err
		}
		arr.Append(item)
	}
}

func parseDict(tr *TokenReader) (Object, error) {
	dict := Dict()
	for {
		tok, err := tr.Next()
		if err != nil {
			return nil, fmt.Errorf("dict: %w", err)
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == ">>" {
			return dict, nil
		}
		if tok.Type != scanner.TokenName {
			return nil, fmt.Errorf("dict key: %w %v at %d", ErrUnexpectedToken, tok.Type, tok.Pos)
		}
		val, err := ParseObject(tr)
		if err != nil {
			return nil, fmt.Errorf("dict /%s: %w", tok.Str, err)
		}
		// A null value is equivalent to an absent entry.
		if _, isNull := val.(NullObj); isNull {
			continue
		}
		dict.Put(tok.Str, val)
	}
}

// ScanConfig controls ScanObjects.
type ScanConfig struct {
	Scanner scanner.Config
}

// ScanResult is what a linear pass over a file finds: every "n g obj"
// header with its offset, the object values, and the last trailer seen.
type ScanResult struct {
	Offsets map[ObjectRef]int64
	Objects map[ObjectRef]Object
	Trailer *DictObj
}

// ScanObjects walks r from the first byte and collects every indirect
// object it can parse. Later definitions of a number replace earlier ones,
// which matches how appended revisions supersede the originals.
func ScanObjects(ctx context.Context, r scanner.ReaderAt, cfg ScanConfig) (*ScanResult, error) {
	s := scanner.New(r, cfg.Scanner)
	tr := NewTokenReader(s)
	res := &ScanResult{Offsets: map[ObjectRef]int64{}, Objects: map[ObjectRef]Object{}}
	rc, _ := s.(interface{ SetRecoveryLocation(recovery.Location) })

	var window [2]scanner.Token
	seen := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tok, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			seen = 0
			continue
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "trailer" {
			if obj, err := ParseObject(tr); err == nil {
				if d, ok := obj.(*DictObj); ok {
					res.Trailer = d
				}
			}
			seen = 0
			continue
		}
		if tok.Type == scanner.TokenKeyword && tok.Str == "obj" && seen == 2 &&
			window[0].IsInt && window[1].IsInt && window[0].Int > 0 {
			ref := ObjectRef{Num: int(window[0].Int), Gen: int(window[1].Int)}
			if rc != nil {
				rc.SetRecoveryLocation(recovery.Location{ObjectNum: ref.Num, ObjectGen: ref.Gen, Component: recovery.ComponentScan})
			}
			obj, err := ParseObject(tr)
			seen = 0
			if err != nil {
				continue
			}
			if d, ok := obj.(*DictObj); ok {
				if next, err := tr.Next(); err == nil {
					if next.Type == scanner.TokenStream {
						obj = NewStream(d, next.Bytes)
					} else {
						tr.Unread(next)
					}
				}
			}
			res.Offsets[ref] = window[0].Pos
			res.Objects[ref] = obj
			continue
		}
		if tok.Type == scanner.TokenNumber {
			if seen == 2 {
				window[0] = window[1]
				seen = 1
			}
			window[seen] = tok
			seen++
			continue
		}
		seen = 0
	}
	if res.Trailer == nil {
		for _, obj := range res.Objects {
			if st, ok := obj.(*StreamObj); ok && NameOf(st.Dict.KV["Type"]) == "XRef" {
				res.Trailer = st.Dict
				break
			}
		}
	}
	return res, nil
}
