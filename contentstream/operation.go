package contentstream

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/wudi/pdfengine/ir/raw"
	"github.com/wudi/pdfengine/scanner"
	"github.com/wudi/pdfengine/writer"
)

// ErrDanglingOperands reports operands left over at the end of a stream.
var ErrDanglingOperands = errors.New("contentstream: operands without operator")

// Operation represents a PDF operator and operands. An inline image is
// stored as operator "BI" with the image dictionary and the raw data as
// its two operands.
type Operation struct {
	Operator string
	Operands []raw.Object
}

func Op(operator string, operands ...raw.Object) Operation {
	return Operation{Operator: operator, Operands: operands}
}

func (o Operation) clone() Operation {
	out := Operation{Operator: o.Operator, Operands: make([]raw.Object, len(o.Operands))}
	for i, v := range o.Operands {
		out.Operands[i] = raw.DeepCopy(v)
	}
	return out
}

// Serialize writes ops one per line.
func Serialize(ops []Operation) []byte {
	var buf []byte
	for _, op := range ops {
		if op.Operator == "BI" && len(op.Operands) == 2 {
			buf = appendInlineImage(buf, op)
			continue
		}
		for _, v := range op.Operands {
			buf = writer.AppendPrimitive(buf, v)
			buf = append(buf, ' ')
		}
		buf = append(buf, op.Operator...)
		buf = append(buf, '\n')
	}
	return buf
}

func appendInlineImage(buf []byte, op Operation) []byte {
	buf = append(buf, "BI"...)
	if d, ok := op.Operands[0].(*raw.DictObj); ok {
		for _, k := range d.SortedKeys() {
			buf = append(buf, ' ')
			buf = writer.AppendPrimitive(buf, raw.NameLiteral(k))
			buf = append(buf, ' ')
			buf = writer.AppendPrimitive(buf, d.KV[k])
		}
	}
	buf = append(buf, " ID "...)
	if s, ok := op.Operands[1].(raw.StringObj); ok {
		buf = append(buf, s.Bytes...)
	}
	return append(buf, "\nEI\n"...)
}

// Parse tokenizes a decoded content stream into operations.
func Parse(data []byte) ([]Operation, error) {
	tr := raw.NewTokenReader(scanner.NewBytes(data, scanner.Config{}))
	var ops []Operation
	var operands []raw.Object
	for {
		tok, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if tok.Type != scanner.TokenKeyword {
			tr.Unread(tok)
			v, err := raw.ParseObject(tr)
			if err != nil {
				return nil, err
			}
			operands = append(operands, v)
			continue
		}
		if tok.Str == "BI" {
			op, err := parseInlineImage(tr)
			if err != nil {
				return nil, err
			}
			ops = append(ops, op)
			operands = nil
			continue
		}
		ops = append(ops, Operation{Operator: tok.Str, Operands: operands})
		operands = nil
	}
	if len(operands) > 0 {
		return ops, fmt.Errorf("%w: %d", ErrDanglingOperands, len(operands))
	}
	return ops, nil
}

func parseInlineImage(tr *raw.TokenReader) (Operation, error) {
	dict := raw.Dict()
	for {
		tok, err := tr.Next()
		if err != nil {
			return Operation{}, fmt.Errorf("inline image: %w", err)
		}
		switch tok.Type {
		case scanner.TokenInlineImage:
			return Op("BI", dict, raw.Str(tok.Bytes)), nil
		case scanner.TokenName:
			v, err := raw.ParseObject(tr)
			if err != nil {
				return Operation{}, fmt.Errorf("inline image /%s: %w", tok.Str, err)
			}
			dict.Put(tok.Str, v)
		default:
			return Operation{}, fmt.Errorf("inline image: %w %v", raw.ErrUnexpectedToken, tok.Type)
		}
	}
}

// Equivalent reports whether two streams hold the same operators and
// operands, ignoring layout.
func Equivalent(a, b []Operation) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Operator != b[i].Operator || len(a[i].Operands) != len(b[i].Operands) {
			return false
		}
		for j := range a[i].Operands {
			if !bytes.Equal(writer.SerializePrimitive(a[i].Operands[j]), writer.SerializePrimitive(b[i].Operands[j])) {
				return false
			}
		}
	}
	return true
}
