package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainCall    = "mintfactory/call/v1"
	DomainRequest = "mintfactory/request/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ModuleHash is the host's identity for a code module: the plain SHA-256 of
// its bytes, hex encoded. It matches what the runtime reports for a unit.
func ModuleHash(module []byte) string {
	sum := sha256.Sum256(module)
	return hex.EncodeToString(sum[:])
}

// CallID computes the content address of one runtime operation in the call
// log. Two operations with the same request, position, target, method and
// argument bytes share an id, which makes log writes idempotent.
func CallID(requestID string, seq int64, target Principal, method string, arg []byte) (string, error) {
	obj := IRObject{
		"request_id": IRString(requestID),
		"seq":        IRInt(seq),
		"target":     IRString(target.String()),
		"method":     IRString(method),
		"arg":        IRBlob(arg),
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("CallID: failed to marshal: %w", err)
	}

	return hashWithDomain(DomainCall, canonical), nil
}

// RequestDigest fingerprints a caller-facing request (operation name plus its
// canonical arguments). It is logged next to the request id so retries of the
// same logical request can be correlated.
func RequestDigest(op string, args IRObject) (string, error) {
	canonical, err := MarshalCanonical(IRObject{
		"op":   IRString(op),
		"args": args,
	})
	if err != nil {
		return "", fmt.Errorf("RequestDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRequest, canonical), nil
}

// MustCallID is like CallID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustCallID(requestID string, seq int64, target Principal, method string, arg []byte) string {
	id, err := CallID(requestID, seq, target, method, arg)
	if err != nil {
		panic(err)
	}
	return id
}
