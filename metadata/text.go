// Package metadata handles the document information dictionary and the XMP
// metadata packet.
package metadata

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// TextEncoding identifies how a PDF text string was stored.
type TextEncoding int

const (
	EncodingPDFDoc TextEncoding = iota
	EncodingUTF16BE
	EncodingUTF8
	// EncodingLegacy marks bytes that are valid in neither standard form,
	// typically Windows-1252 written by office exporters.
	EncodingLegacy
)

func (e TextEncoding) String() string {
	switch e {
	case EncodingPDFDoc:
		return "PDFDocEncoding"
	case EncodingUTF16BE:
		return "UTF-16BE"
	case EncodingUTF8:
		return "UTF-8"
	default:
		return "legacy"
	}
}

var (
	bomUTF16BE = []byte{0xFE, 0xFF}
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
)

// PDFDocEncoding code points that differ from Latin-1. Zero marks an
// undefined code.
var pdfDocHigh = map[byte]rune{
	0x18: 0x02D8, 0x19: 0x02C7, 0x1A: 0x02C6, 0x1B: 0x02D9,
	0x1C: 0x02DD, 0x1D: 0x02DB, 0x1E: 0x02DA, 0x1F: 0x02DC,
	0x7F: 0,
	0x80: 0x2022, 0x81: 0x2020, 0x82: 0x2021, 0x83: 0x2026,
	0x84: 0x2014, 0x85: 0x2013, 0x86: 0x0192, 0x87: 0x2044,
	0x88: 0x2039, 0x89: 0x203A, 0x8A: 0x2212, 0x8B: 0x2030,
	0x8C: 0x201E, 0x8D: 0x201C, 0x8E: 0x201D, 0x8F: 0x2018,
	0x90: 0x2019, 0x91: 0x201A, 0x92: 0x2122, 0x93: 0xFB01,
	0x94: 0xFB02, 0x95: 0x0141, 0x96: 0x0152, 0x97: 0x0160,
	0x98: 0x0178, 0x99: 0x017D, 0x9A: 0x0131, 0x9B: 0x0142,
	0x9C: 0x0153, 0x9D: 0x0161, 0x9E: 0x017E, 0x9F: 0,
	0xA0: 0x20AC, 0xAD: 0,
}

var pdfDocReverse = func() map[rune]byte {
	m := make(map[rune]byte, len(pdfDocHigh))
	for b, r := range pdfDocHigh {
		if r != 0 {
			m[r] = b
		}
	}
	return m
}()

func pdfDocRune(b byte) (rune, bool) {
	if r, ok := pdfDocHigh[b]; ok {
		return r, r != 0
	}
	if b < 0x18 && b != '\t' && b != '\n' && b != '\r' {
		return 0, false
	}
	return rune(b), true
}

func pdfDocByte(r rune) (byte, bool) {
	if b, ok := pdfDocReverse[r]; ok {
		return b, true
	}
	if r > 0xFF {
		return 0, false
	}
	b := byte(r)
	if _, special := pdfDocHigh[b]; special {
		return 0, false
	}
	if b < 0x18 && b != '\t' && b != '\n' && b != '\r' {
		return 0, false
	}
	return b, true
}

// DetectEncoding classifies the bytes of a text string.
func DetectEncoding(b []byte) TextEncoding {
	switch {
	case bytes.HasPrefix(b, bomUTF16BE):
		if validUTF16(b[2:]) {
			return EncodingUTF16BE
		}
		return EncodingLegacy
	case bytes.HasPrefix(b, bomUTF8):
		if utf8.Valid(b[3:]) {
			return EncodingUTF8
		}
		return EncodingLegacy
	}
	for _, c := range b {
		if _, ok := pdfDocRune(c); !ok {
			return EncodingLegacy
		}
	}
	return EncodingPDFDoc
}

// IsLegacy reports whether b needs the Windows-1252 fallback.
func IsLegacy(b []byte) bool { return DetectEncoding(b) == EncodingLegacy }

func validUTF16(b []byte) bool {
	if len(b)%2 != 0 {
		return false
	}
	for i := 0; i < len(b); i += 2 {
		u := uint16(b[i])<<8 | uint16(b[i+1])
		switch {
		case u >= 0xD800 && u < 0xDC00:
			if i+3 >= len(b) {
				return false
			}
			lo := uint16(b[i+2])<<8 | uint16(b[i+3])
			if lo < 0xDC00 || lo > 0xDFFF {
				return false
			}
			i += 2
		case u >= 0xDC00 && u <= 0xDFFF:
			return false
		}
	}
	return true
}

// DecodeText converts a PDF text string to UTF-8.
func DecodeText(b []byte) (string, TextEncoding) {
	enc := DetectEncoding(b)
	switch enc {
	case EncodingUTF16BE:
		out, err := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder().Bytes(b[2:])
		if err == nil {
			return string(out), enc
		}
		enc = EncodingLegacy
	case EncodingUTF8:
		return string(b[3:]), enc
	case EncodingPDFDoc:
		var sb []rune
		for _, c := range b {
			r, _ := pdfDocRune(c)
			sb = append(sb, r)
		}
		return string(sb), enc
	}
	runes := make([]rune, 0, len(b))
	for _, c := range b {
		runes = append(runes, charmap.Windows1252.DecodeByte(c))
	}
	return string(runes), enc
}

// EncodeText returns the canonical bytes for s: PDFDocEncoding when every
// rune is representable, UTF-16BE with a byte order mark otherwise.
func EncodeText(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		b, ok := pdfDocByte(r)
		if !ok {
			return encodeUTF16(s)
		}
		out = append(out, b)
	}
	return out
}

func encodeUTF16(s string) []byte {
	// Round-tripping through []rune replaces invalid UTF-8 with U+FFFD.
	out, _ := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder().Bytes([]byte(string([]rune(s))))
	return out
}
