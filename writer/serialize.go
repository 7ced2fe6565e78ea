package writer

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/wudi/pdfengine/ir/raw"
)

// SerializeObject renders one indirect object, "n g obj" through "endobj".
func SerializeObject(ref raw.ObjectRef, obj raw.Object) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%d %d obj\n", ref.Num, ref.Gen)
	b.Write(SerializePrimitive(obj))
	b.WriteString("\nendobj\n")
	return b.Bytes()
}

// SerializePrimitive renders a direct object. Dictionary keys are written in
// byte order so equal objects always produce equal bytes. Streams get their
// /Length rewritten from the data.
func SerializePrimitive(o raw.Object) []byte {
	return AppendPrimitive(nil, o)
}

// AppendPrimitive appends the serialized form of o to dst.
func AppendPrimitive(dst []byte, o raw.Object) []byte {
	switch v := o.(type) {
	case raw.NameObj:
		return append(dst, "/"+pdfNameLiteral(v.Val)...)
	case raw.NumberObj:
		if v.IsInt {
			return strconv.AppendInt(dst, v.I, 10)
		}
		return append(dst, FormatNumber(v.F)...)
	case raw.BoolObj:
		return strconv.AppendBool(dst, v.V)
	case raw.NullObj:
		return append(dst, "null"...)
	case raw.StringObj:
		if v.Hex {
			return append(dst, hexString(v.Bytes)...)
		}
		return append(dst, escapeLiteralString(v.Bytes)...)
	case *raw.ArrayObj:
		if v == nil {
			return append(dst, "null"...)
		}
		dst = append(dst, '[')
		for i, it := range v.Items {
			if i > 0 {
				dst = append(dst, ' ')
			}
			dst = AppendPrimitive(dst, it)
		}
		return append(dst, ']')
	case *raw.DictObj:
		if v == nil {
			return append(dst, "null"...)
		}
		dst = append(dst, "<<"...)
		for _, k := range v.SortedKeys() {
			item := v.KV[k]
			if item == nil {
				continue
			}
			if _, isNull := item.(raw.NullObj); isNull {
				continue
			}
			dst = append(dst, "/"+pdfNameLiteral(k)+" "...)
			dst = AppendPrimitive(dst, item)
		}
		return append(dst, ">>"...)
	case *raw.StreamObj:
		if v == nil {
			return append(dst, "null"...)
		}
		dict := v.Dict
		if dict == nil {
			dict = raw.Dict()
		}
		withLen := &raw.DictObj{KV: make(map[string]raw.Object, len(dict.KV)+1)}
		for k, item := range dict.KV {
			withLen.KV[k] = item
		}
		withLen.KV["Length"] = raw.NumberInt(int64(len(v.Data)))
		dst = AppendPrimitive(dst, withLen)
		dst = append(dst, "\nstream\n"...)
		dst = append(dst, v.Data...)
		return append(dst, "\nendstream"...)
	case raw.RefObj:
		return append(dst, fmt.Sprintf("%d %d R", v.R.Num, v.R.Gen)...)
	default:
		return append(dst, "null"...)
	}
}

// FormatNumber writes a real with at most six decimals and no exponent.
// Integral values lose the decimal point.
func FormatNumber(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "0"
	}
	r := math.Round(f*1e6) / 1e6
	if r == 0 {
		return "0"
	}
	if r == math.Trunc(r) && math.Abs(r) < 1e15 {
		return strconv.FormatInt(int64(r), 10)
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

func hexString(data []byte) string {
	return "<" + strings.ToUpper(hex.EncodeToString(data)) + ">"
}

func escapeLiteralString(rawBytes []byte) []byte {
	var b bytes.Buffer
	b.WriteByte('(')
	for _, ch := range rawBytes {
		switch ch {
		case '\\', '(', ')':
			b.WriteByte('\\')
			b.WriteByte(ch)
		case '\n':
			b.WriteString("\\n")
		case '\r':
			b.WriteString("\\r")
		case '\t':
			b.WriteString("\\t")
		case '\b':
			b.WriteString("\\b")
		case '\f':
			b.WriteString("\\f")
		default:
			if ch < 0x20 || ch >= 0x7f {
				fmt.Fprintf(&b, "\\%03o", ch)
			} else {
				b.WriteByte(ch)
			}
		}
	}
	b.WriteByte(')')
	return b.Bytes()
}

// pdfNameLiteral escapes delimiters, whitespace and bytes outside the
// printable ASCII range with the #XX form.
func pdfNameLiteral(value string) string {
	var b strings.Builder
	for i := 0; i < len(value); i++ {
		ch := value[i]
		if ch > 0x20 && ch < 0x7f && !strings.ContainsRune("#/()<>[]{}%", rune(ch)) {
			b.WriteByte(ch)
			continue
		}
		fmt.Fprintf(&b, "#%02X", ch)
	}
	return b.String()
}
