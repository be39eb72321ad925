package ir

import (
	"encoding/base64"
	"fmt"
	"math"
)

// fields reads typed values out of a decoded IRObject. The first failure is
// kept in err and later reads return zero values, so decoders check once.
type fields struct {
	obj IRObject
	err error
}

func (f *fields) has(key string) bool {
	_, ok := f.obj[key]
	return ok
}

func (f *fields) fail(key, want string) {
	if f.err == nil {
		f.err = fmt.Errorf("field %q: expected %s, got %T", key, want, f.obj[key])
	}
}

func (f *fields) str(key string) string {
	v, ok := f.obj[key].(IRString)
	if !ok {
		f.fail(key, "string")
		return ""
	}
	return string(v)
}

func (f *fields) u16(key string) uint16 {
	v, ok := f.obj[key].(IRInt)
	if !ok || v < 0 || v > math.MaxUint16 {
		f.fail(key, "nat16")
		return 0
	}
	return uint16(v)
}

func (f *fields) nat(key string) IRNat {
	switch v := f.obj[key].(type) {
	case IRNat:
		return v
	case IRInt:
		if v >= 0 {
			return NatFromUint64(uint64(v))
		}
	}
	f.fail(key, "nat")
	return IRNat{}
}

func (f *fields) blob(key string) []byte {
	switch v := f.obj[key].(type) {
	case IRBlob:
		return []byte(v)
	case IRString:
		b, err := base64.StdEncoding.DecodeString(string(v))
		if err == nil {
			return b
		}
	}
	f.fail(key, "blob")
	return nil
}

func (f *fields) principal(key string) Principal {
	s := f.str(key)
	if f.err != nil {
		return Principal{}
	}
	p, err := ParsePrincipal(s)
	if err != nil {
		f.err = fmt.Errorf("field %q: %w", key, err)
	}
	return p
}

func (f *fields) account(key string) Account {
	obj, ok := f.obj[key].(IRObject)
	if !ok {
		f.fail(key, "account")
		return Account{}
	}
	inner := fields{obj: obj}
	a := Account{Owner: inner.principal("owner")}
	if inner.has("subaccount") {
		a.Subaccount = inner.blob("subaccount")
	}
	if inner.err != nil && f.err == nil {
		f.err = fmt.Errorf("field %q: %w", key, inner.err)
	}
	return a
}

// DecodeNat parses a canonical reply that carries a single nat.
func DecodeNat(data []byte) (IRNat, error) {
	v, err := UnmarshalIRValue(data)
	if err != nil {
		return IRNat{}, err
	}
	switch n := v.(type) {
	case IRNat:
		return n, nil
	case IRInt:
		if n >= 0 {
			return NatFromUint64(uint64(n)), nil
		}
	}
	return IRNat{}, fmt.Errorf("expected nat, got %s", data)
}
