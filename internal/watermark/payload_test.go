package watermark_test

import (
	"bytes"
	"testing"

	"github.com/YannKr/fingerprint/internal/watermark"
)

func TestPack7RoundTrip(t *testing.T) {
	tests := []string{
		"",
		"A",
		"ABCDEFG",
		"ABCDEFGH",
		"Hello, World!",
		"\x7f\x01 ~",
	}
	for _, s := range tests {
		data, ok := watermark.Pack7(s)
		if !ok {
			t.Fatalf("Pack7(%q) rejected ASCII", s)
		}
		if want := (len(s)*7 + 7) / 8; len(data) != want {
			t.Errorf("Pack7(%q) length = %d, want %d", s, len(data), want)
		}
		if got := watermark.Unpack7(data); got != s {
			t.Errorf("Unpack7(Pack7(%q)) = %q", s, got)
		}
	}
}

func TestPack7BitOrder(t *testing.T) {
	// 'A' = 1000001b, 'B' = 1000010b; 7 bits each, least significant first.
	data, _ := watermark.Pack7("AB")
	want := []byte{0x41, 0x21}
	if !bytes.Equal(data, want) {
		t.Errorf("Pack7(\"AB\") = %#v, want %#v", data, want)
	}
}

func TestPack7RejectsNonASCII(t *testing.T) {
	if _, ok := watermark.Pack7("héllo"); ok {
		t.Error("Pack7 accepted a non-ASCII string")
	}
	data, sevenBit := watermark.EncodeText("héllo")
	if sevenBit {
		t.Fatal("EncodeText chose 7-bit for non-ASCII text")
	}
	if got := watermark.DecodeText(data, sevenBit); got != "héllo" {
		t.Errorf("DecodeText = %q", got)
	}
}

func TestEncodePayload(t *testing.T) {
	tests := []struct {
		enc     watermark.Encoding
		value   string
		want    []byte
		resolve watermark.Encoding
		wantErr bool
	}{
		{watermark.EncodingText, "AB", []byte{0x41, 0x21}, watermark.EncodingSevenBit, false},
		{watermark.EncodingText, "é", []byte("é"), watermark.EncodingUTF8, false},
		{watermark.EncodingHex, "00ff10", []byte{0, 0xff, 0x10}, watermark.EncodingHex, false},
		{watermark.EncodingHex, "zz", nil, "", true},
		{watermark.EncodingSevenBit, "é", nil, "", true},
		{"base64", "AA==", nil, "", true},
	}
	for _, tt := range tests {
		got, enc, err := watermark.EncodePayload(tt.enc, tt.value)
		if tt.wantErr {
			if err == nil {
				t.Errorf("EncodePayload(%s, %q) succeeded", tt.enc, tt.value)
			}
			continue
		}
		if err != nil {
			t.Fatalf("EncodePayload(%s, %q): %v", tt.enc, tt.value, err)
		}
		if !bytes.Equal(got, tt.want) || enc != tt.resolve {
			t.Errorf("EncodePayload(%s, %q) = %x, %s; want %x, %s", tt.enc, tt.value, got, enc, tt.want, tt.resolve)
		}
		if back := watermark.DecodePayload(enc, got); enc != watermark.EncodingHex && back != tt.value {
			t.Errorf("DecodePayload = %q, want %q", back, tt.value)
		}
	}
}
