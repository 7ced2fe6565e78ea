package metadata

import (
	"bytes"
	"testing"
	"time"
)

func TestDecodeText(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
		enc  TextEncoding
	}{
		{"ascii", []byte("PDF as a Standard for Archiving"), "PDF as a Standard for Archiving", EncodingPDFDoc},
		{"pdfdoc specials", []byte{'a', 0x84, 'b', 0xA0}, "a—b€", EncodingPDFDoc},
		{"latin1 range", []byte("Caf\xe9"), "Café", EncodingPDFDoc},
		{"utf16", []byte{0xFE, 0xFF, 0x00, 'H', 0x04, 0x10}, "H\u0410", EncodingUTF16BE},
		{"utf8 bom", []byte("\xef\xbb\xbfna\xc3\xafve"), "naïve", EncodingUTF8},
		{"windows-1252", []byte("\x93Quoted\x94 \x9f"), "“Quoted” Ÿ", EncodingLegacy},
		{"odd utf16", []byte{0xFE, 0xFF, 0x00}, "þÿ\x00", EncodingLegacy},
	}
	for _, tt := range tests {
		got, enc := DecodeText(tt.in)
		if got != tt.want || enc != tt.enc {
			t.Fatalf("%s: got %q (%v), want %q (%v)", tt.name, got, enc, tt.want, tt.enc)
		}
	}
}

func TestIsLegacy(t *testing.T) {
	if !IsLegacy([]byte("Word \x9f export")) {
		t.Fatalf("undefined PDFDocEncoding byte not detected")
	}
	if IsLegacy([]byte("plain")) {
		t.Fatalf("ascii reported as legacy")
	}
}

func TestEncodeTextRoundTrip(t *testing.T) {
	for _, s := range []string{"", "Test-Title", "Café — €", "日本語", "emoji \U0001F600"} {
		b := EncodeText(s)
		got, _ := DecodeText(b)
		if got != s {
			t.Fatalf("round trip of %q gave %q", s, got)
		}
	}
	if b := EncodeText("日"); !bytes.HasPrefix(b, []byte{0xFE, 0xFF}) {
		t.Fatalf("non-PDFDoc text should be UTF-16BE with BOM, got % x", b)
	}
	if b := EncodeText("A—"); !bytes.Equal(b, []byte{'A', 0x84}) {
		t.Fatalf("em dash should use PDFDocEncoding, got % x", b)
	}
}

func TestDates(t *testing.T) {
	tm, err := ParseDate("D:20240102030405+01'30'")
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("", 5400))
	if !tm.Equal(want) {
		t.Fatalf("parsed %v, want %v", tm, want)
	}
	if s := FormatDate(want); s != "D:20240102030405+01'30'" {
		t.Fatalf("formatted %s", s)
	}
	short, err := ParseDate("D:2023")
	if err != nil || short.Year() != 2023 || short.Month() != time.January {
		t.Fatalf("year-only date: %v %v", short, err)
	}
	if _, err := ParseDate("yesterday"); err == nil {
		t.Fatalf("expected error for garbage date")
	}
	if s := FormatDate(time.Date(2020, 5, 6, 7, 8, 9, 0, time.UTC)); s != "D:20200506070809Z" {
		t.Fatalf("utc formatted %s", s)
	}
}
