// Package codec implements the opensig annotation wire format.
//
// An encoded annotation is hex, byte exact:
//
//	[version:1][type:1][payload:...]
//
// where version is 0x00 and type combines the content kind (0 = UTF-16BE
// string, 1 = binary) with the encryption flag bit 0x80. Encrypted payloads
// are nonce || AES-GCM ciphertext under the document-hash key.
//
// Encoding validates its input and fails loudly; decoding never fails,
// because on-chain payloads may be malformed or addressed to someone else.
// Undecodable input becomes an Invalid annotation and undecryptable content
// becomes empty content, both by protocol policy.
package codec

import (
	"errors"
	"fmt"

	"opensig/internal/crypt"
	"opensig/internal/hexutil"
	"opensig/internal/logging"
)

// Version is the annotation wire format version this codec produces.
const Version = 0

// encryptedFlag is the bit of the type byte marking an encrypted payload.
const encryptedFlag = 0x80

// EmptyPayload is the marker for an absent annotation.
const EmptyPayload = "0x"

// Kind identifies the content of an annotation.
type Kind int

const (
	// KindNone marks an absent annotation.
	KindNone Kind = iota
	// KindString marks UTF-16BE text content.
	KindString
	// KindBinary marks raw binary content, carried as a hex string.
	KindBinary
	// KindInvalid marks an annotation that could not be decoded; Content
	// holds a diagnostic message.
	KindInvalid
)

// wire values for the content-type half of the type byte.
const (
	wireString = 0
	wireBinary = 1
)

// Encode input errors.
var (
	ErrInvalidKind    = errors.New("codec: annotation type must be string or binary")
	ErrInvalidContent = errors.New("codec: binary annotation content must be a hex string")
)

// Annotation is the user data attached to a published signature.
type Annotation struct {
	// Kind identifies how Content is interpreted.
	Kind Kind

	// Content holds the annotation text (KindString), hex data
	// (KindBinary), or a diagnostic (KindInvalid).
	Content string

	// Encrypted marks the payload as AES-GCM encrypted under the
	// document-hash key.
	Encrypted bool
}

// None returns the absent annotation.
func None() Annotation { return Annotation{Kind: KindNone} }

// invalid builds a KindInvalid annotation carrying a diagnostic.
func invalid(format string, args ...any) Annotation {
	return Annotation{Kind: KindInvalid, Content: fmt.Sprintf(format, args...)}
}

// Encode serializes an annotation to its hex wire form. An absent
// annotation (KindNone or empty content) encodes to the empty-payload
// marker. key is required only when a.Encrypted is set.
func Encode(a Annotation, key *crypt.EncryptionKey) (string, error) {
	if a.Kind == KindNone || a.Content == "" {
		return EmptyPayload, nil
	}

	var typeByte byte
	var content []byte
	switch a.Kind {
	case KindString:
		typeByte = wireString
		content = hexutil.EncodeUTF16BE(a.Content)
	case KindBinary:
		typeByte = wireBinary
		if !hexutil.IsHex(a.Content) {
			return "", fmt.Errorf("%w: %q", ErrInvalidContent, a.Content)
		}
		content, _ = hexutil.Decode(a.Content)
	default:
		return "", fmt.Errorf("%w: kind %d", ErrInvalidKind, a.Kind)
	}

	if a.Encrypted {
		typeByte |= encryptedFlag
		sealed, err := key.Encrypt(content)
		if err != nil {
			return "", fmt.Errorf("encrypt annotation: %w", err)
		}
		content = sealed
	}

	return hexutil.Encode0x(hexutil.Concat([]byte{Version, typeByte}, content)), nil
}

// Decode parses a hex wire payload into an Annotation. It never returns an
// error: empty input yields KindNone, undecodable input yields KindInvalid
// with a diagnostic, and content that fails decryption yields empty content.
func Decode(payload string, key *crypt.EncryptionKey) Annotation {
	if payload == "" || payload == EmptyPayload {
		return None()
	}

	raw, err := hexutil.Decode(payload)
	if err != nil {
		return invalid("malformed hex payload")
	}
	if len(raw) < 3 {
		return invalid("payload too short: %d bytes", len(raw))
	}
	if raw[0] != Version {
		return invalid("unsupported version: %d", raw[0])
	}

	typeByte := raw[1]
	encrypted := typeByte&encryptedFlag != 0
	contentType := typeByte &^ byte(encryptedFlag)
	content := raw[2:]

	if encrypted && len(content) > 0 {
		var plain []byte
		err := errors.New("no decryption key")
		if key != nil {
			plain, err = key.Decrypt(content)
		}
		if err != nil {
			// Annotations on a shared registry may be sealed for a
			// different key; treat as not-for-us, not as a fault.
			logging.Debug("annotation decryption failed", "error", err)
			plain = nil
		}
		content = plain
	}

	switch contentType {
	case wireString:
		return Annotation{Kind: KindString, Content: hexutil.DecodeUTF16BE(content), Encrypted: encrypted}
	case wireBinary:
		return Annotation{Kind: KindBinary, Content: hexutil.Encode0x(content), Encrypted: encrypted}
	default:
		return invalid("unrecognised content type: %d", contentType)
	}
}
