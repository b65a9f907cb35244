// Package hexutil provides the byte-level conversions used throughout the
// opensig protocol: hex strings with or without a 0x prefix, UTF-16BE text
// encoding for annotation payloads, and buffer concatenation.
package hexutil

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf16"
)

// ErrInvalidHex indicates a string that is not valid hexadecimal.
var ErrInvalidHex = errors.New("hexutil: invalid hex string")

// Strip0x removes a leading "0x" or "0X" prefix if present.
func Strip0x(s string) string {
	if len(s) >= 2 && (s[:2] == "0x" || s[:2] == "0X") {
		return s[2:]
	}
	return s
}

// Decode converts a hex string (0x prefix optional) to bytes.
func Decode(s string) ([]byte, error) {
	b, err := hex.DecodeString(Strip0x(s))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHex, err)
	}
	return b, nil
}

// Encode converts bytes to a lowercase hex string without a prefix.
func Encode(b []byte) string {
	return hex.EncodeToString(b)
}

// Encode0x converts bytes to a lowercase hex string with a 0x prefix.
func Encode0x(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// IsHex reports whether s (0x prefix optional) is a well-formed hex string
// with an even number of digits.
func IsHex(s string) bool {
	s = Strip0x(s)
	if len(s)%2 != 0 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// Concat joins byte slices into a single new buffer.
func Concat(buffers ...[]byte) []byte {
	n := 0
	for _, b := range buffers {
		n += len(b)
	}
	out := make([]byte, 0, n)
	for _, b := range buffers {
		out = append(out, b...)
	}
	return out
}

// EncodeUTF16BE encodes a string as UTF-16 big-endian bytes.
// Characters outside the BMP are encoded as surrogate pairs.
func EncodeUTF16BE(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 2*len(units))
	for i, u := range units {
		out[2*i] = byte(u >> 8)
		out[2*i+1] = byte(u)
	}
	return out
}

// DecodeUTF16BE decodes UTF-16 big-endian bytes into a string.
// A trailing odd byte is dropped.
func DecodeUTF16BE(b []byte) string {
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
	return string(utf16.Decode(units))
}

// TrimHexString lowercases a hex string and strips its prefix, for
// case-insensitive comparisons of hash identifiers.
func TrimHexString(s string) string {
	return strings.ToLower(Strip0x(s))
}
