package ir

import (
	"crypto/sha256"
	"encoding/base32"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"strings"
)

// MaxPrincipalLen is the longest raw id the host runtime accepts.
const MaxPrincipalLen = 29

// Id class suffixes.
const (
	classOpaque           = 0x01
	classSelfAuthenticate = 0x02
	classAnonymous        = 0x04
)

var principalEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Principal is an opaque host identity: a caller, a unit, or the factory
// itself. The zero value is the management id ("aaaaa-aa").
//
// Principal is comparable and safe to use as a map key.
type Principal struct {
	raw string
}

// AnonymousPrincipal is the identity of unauthenticated callers. It is also
// the sentinel the host uses for "no address" and is never a valid unit.
var AnonymousPrincipal = Principal{raw: string([]byte{classAnonymous})}

// ManagementPrincipal addresses the host runtime itself.
var ManagementPrincipal = Principal{}

// PrincipalFromBytes wraps raw id bytes.
func PrincipalFromBytes(b []byte) (Principal, error) {
	if len(b) > MaxPrincipalLen {
		return Principal{}, fmt.Errorf("principal too long: %d bytes", len(b))
	}
	return Principal{raw: string(b)}, nil
}

// MustPrincipal parses text and panics on error.
// Use only in tests or with constant input.
func MustPrincipal(text string) Principal {
	p, err := ParsePrincipal(text)
	if err != nil {
		panic(err)
	}
	return p
}

// ParsePrincipal decodes the textual form and verifies its checksum.
// The text must be in canonical form: lowercase, dash-grouped by five.
func ParsePrincipal(text string) (Principal, error) {
	if text == "" {
		return Principal{}, fmt.Errorf("empty principal text")
	}
	compact := strings.ToUpper(strings.ReplaceAll(text, "-", ""))
	data, err := principalEncoding.DecodeString(compact)
	if err != nil {
		return Principal{}, fmt.Errorf("principal %q: %w", text, err)
	}
	if len(data) < 4 {
		return Principal{}, fmt.Errorf("principal %q: too short", text)
	}
	raw := data[4:]
	if len(raw) > MaxPrincipalLen {
		return Principal{}, fmt.Errorf("principal %q: too long", text)
	}
	if binary.BigEndian.Uint32(data[:4]) != crc32.ChecksumIEEE(raw) {
		return Principal{}, fmt.Errorf("principal %q: checksum mismatch", text)
	}
	p := Principal{raw: string(raw)}
	if p.String() != text {
		return Principal{}, fmt.Errorf("principal %q: not in canonical form", text)
	}
	return p, nil
}

// UnitIDFromSeq builds the id the local replica assigns to its n-th unit.
func UnitIDFromSeq(n uint64) Principal {
	b := make([]byte, 10)
	binary.BigEndian.PutUint64(b, n)
	b[8] = classOpaque
	b[9] = classOpaque
	return Principal{raw: string(b)}
}

// DerivePrincipal maps a seed phrase to a stable self-authenticating style id.
// The local replica uses it for the factory identity when none is configured.
func DerivePrincipal(seed string) Principal {
	sum := sha256.Sum224([]byte(seed))
	return Principal{raw: string(append(sum[:], classSelfAuthenticate))}
}

// Bytes returns a copy of the raw id.
func (p Principal) Bytes() []byte {
	return []byte(p.raw)
}

// IsAnonymous reports whether p is the anonymous sentinel.
func (p Principal) IsAnonymous() bool {
	return p == AnonymousPrincipal
}

// IsManagement reports whether p is the empty management id.
func (p Principal) IsManagement() bool {
	return p.raw == ""
}

// String renders the checksummed, dash-grouped text form.
func (p Principal) String() string {
	buf := make([]byte, 4+len(p.raw))
	binary.BigEndian.PutUint32(buf, crc32.ChecksumIEEE([]byte(p.raw)))
	copy(buf[4:], p.raw)
	enc := strings.ToLower(principalEncoding.EncodeToString(buf))

	var sb strings.Builder
	for i := 0; i < len(enc); i += 5 {
		if i > 0 {
			sb.WriteByte('-')
		}
		end := min(i+5, len(enc))
		sb.WriteString(enc[i:end])
	}
	return sb.String()
}

// MarshalText implements encoding.TextMarshaler.
func (p Principal) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Principal) UnmarshalText(text []byte) error {
	parsed, err := ParsePrincipal(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// MarshalJSON writes the text form as a JSON string.
func (p Principal) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON reads the text form from a JSON string.
func (p *Principal) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return p.UnmarshalText([]byte(s))
}
