package watermark

import (
	"encoding/hex"
	"fmt"
	"unicode/utf8"
)

// Encoding names how a textual payload is turned into bytes.
type Encoding string

const (
	// EncodingText picks EncodingSevenBit when every rune is ASCII and
	// EncodingUTF8 otherwise.
	EncodingText     Encoding = "text"
	EncodingSevenBit Encoding = "7bit"
	EncodingUTF8     Encoding = "utf8"
	EncodingHex      Encoding = "hex"
)

// Pack7 packs ASCII text at 7 bits per character. Bits are taken least
// significant first, both from each character and into each output byte.
// ok is false if s holds a rune above 127.
func Pack7(s string) (data []byte, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return nil, false
		}
	}
	nbits := len(s) * 7
	data = make([]byte, (nbits+7)/8)
	pos := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		for bit := range 7 {
			if c>>bit&1 != 0 {
				data[pos>>3] |= 1 << (pos & 7)
			}
			pos++
		}
	}
	return data, true
}

// Unpack7 reverses Pack7. The packed length does not record the character
// count, so a final NUL that fits entirely in the padding bits is dropped.
func Unpack7(data []byte) string {
	nbits := len(data) * 8
	count := nbits / 7
	out := make([]byte, count)
	for i := range count {
		var c byte
		for bit := range 7 {
			pos := i*7 + bit
			if data[pos>>3]>>(pos&7)&1 != 0 {
				c |= 1 << bit
			}
		}
		out[i] = c
	}
	if count > 0 && out[count-1] == 0 && (7*(count-1)+7)/8 == len(data) {
		out = out[:count-1]
	}
	return string(out)
}

// EncodeText packs s with Pack7 when possible and falls back to UTF-8.
func EncodeText(s string) (data []byte, sevenBit bool) {
	if data, ok := Pack7(s); ok {
		return data, true
	}
	return []byte(s), false
}

// DecodeText reverses EncodeText.
func DecodeText(data []byte, sevenBit bool) string {
	if sevenBit {
		return Unpack7(data)
	}
	return string(data)
}

// EncodePayload converts value to payload bytes. EncodingText resolves to
// the encoding actually used, which is returned.
func EncodePayload(enc Encoding, value string) ([]byte, Encoding, error) {
	switch enc {
	case EncodingText, "":
		data, sevenBit := EncodeText(value)
		if sevenBit {
			return data, EncodingSevenBit, nil
		}
		return data, EncodingUTF8, nil
	case EncodingSevenBit:
		data, ok := Pack7(value)
		if !ok {
			return nil, "", fmt.Errorf("payload is not ASCII")
		}
		return data, EncodingSevenBit, nil
	case EncodingUTF8:
		if !utf8.ValidString(value) {
			return nil, "", fmt.Errorf("payload is not valid UTF-8")
		}
		return []byte(value), EncodingUTF8, nil
	case EncodingHex:
		data, err := hex.DecodeString(value)
		if err != nil {
			return nil, "", fmt.Errorf("payload hex: %w", err)
		}
		return data, EncodingHex, nil
	}
	return nil, "", fmt.Errorf("unknown payload encoding %q", enc)
}

// DecodePayload renders payload bytes produced with enc as text.
func DecodePayload(enc Encoding, data []byte) string {
	switch enc {
	case EncodingSevenBit:
		return Unpack7(data)
	case EncodingUTF8, EncodingText:
		return string(data)
	}
	return hex.EncodeToString(data)
}
