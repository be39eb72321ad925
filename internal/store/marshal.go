package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/roach88/mintfactory/internal/ir"
)

// Sentinel errors returned by store operations.
var (
	ErrNotFound           = errors.New("not found")
	ErrInsufficientCycles = errors.New("insufficient cycles")
	ErrDuplicateToken     = errors.New("token id already minted")
	ErrAlreadyInstalled   = errors.New("unit already has code installed")
)

// marshalPrincipals converts a controller list to canonical JSON TEXT.
func marshalPrincipals(ps []ir.Principal) (string, error) {
	arr := make(ir.IRArray, len(ps))
	for i, p := range ps {
		arr[i] = ir.IRString(p.String())
	}
	data, err := ir.MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("marshal principals: %w", err)
	}
	return string(data), nil
}

func unmarshalPrincipals(data string) ([]ir.Principal, error) {
	var texts []string
	if err := json.Unmarshal([]byte(data), &texts); err != nil {
		return nil, fmt.Errorf("unmarshal principals: %w", err)
	}
	ps := make([]ir.Principal, len(texts))
	for i, t := range texts {
		p, err := ir.ParsePrincipal(t)
		if err != nil {
			return nil, fmt.Errorf("unmarshal principals: %w", err)
		}
		ps[i] = p
	}
	return ps, nil
}

// marshalAccount converts an account to canonical JSON TEXT.
func marshalAccount(a ir.Account) (string, error) {
	data, err := ir.MarshalCanonical(a.ToIR())
	if err != nil {
		return "", fmt.Errorf("marshal account: %w", err)
	}
	return string(data), nil
}

func unmarshalAccount(data string) (ir.Account, error) {
	var a ir.Account
	if err := json.Unmarshal([]byte(data), &a); err != nil {
		return ir.Account{}, fmt.Errorf("unmarshal account: %w", err)
	}
	return a, nil
}

// toDBCycles narrows a cycle amount to SQLite's signed INTEGER.
func toDBCycles(c uint64) (int64, error) {
	if c > math.MaxInt64 {
		return 0, fmt.Errorf("cycle amount %d exceeds storable range", c)
	}
	return int64(c), nil
}

// principalFromDB wraps raw id bytes read from a BLOB column.
func principalFromDB(b []byte) (ir.Principal, error) {
	p, err := ir.PrincipalFromBytes(b)
	if err != nil {
		return ir.Principal{}, fmt.Errorf("stored principal: %w", err)
	}
	return p, nil
}
