package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/mintfactory/internal/ir"
)

const unitColumns = `id, controllers, compute_allocation, memory_allocation, freezing_threshold,
	module_hash, init_arg, created_seq`

// ReadUnit returns one unit. Returns ErrNotFound for an unknown id.
func (s *Store) ReadUnit(ctx context.Context, id ir.Principal) (ir.UnitRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+unitColumns+` FROM units WHERE id = ?`, id.Bytes())
	u, err := scanUnit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.UnitRecord{}, fmt.Errorf("unit %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return ir.UnitRecord{}, fmt.Errorf("read unit: %w", err)
	}
	return u, nil
}

// ReadModule returns the code installed in a unit, nil for an empty unit.
func (s *Store) ReadModule(ctx context.Context, id ir.Principal) ([]byte, error) {
	var module []byte
	err := s.db.QueryRowContext(ctx, `SELECT module FROM units WHERE id = ?`, id.Bytes()).Scan(&module)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("unit %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read module: %w", err)
	}
	return module, nil
}

// ListUnits returns all units in creation order.
// Returns an empty slice (not nil) when there are none.
func (s *Store) ListUnits(ctx context.Context) ([]ir.UnitRecord, error) {
	return s.queryUnits(ctx, `
		SELECT `+unitColumns+`
		FROM units
		ORDER BY created_seq ASC, id ASC
	`)
}

// UnitsByModule returns the units running the module with the given hash,
// in creation order.
func (s *Store) UnitsByModule(ctx context.Context, moduleHash string) ([]ir.UnitRecord, error) {
	return s.queryUnits(ctx, `
		SELECT `+unitColumns+`
		FROM units
		WHERE module_hash = ?
		ORDER BY created_seq ASC, id ASC
	`, moduleHash)
}

func (s *Store) queryUnits(ctx context.Context, query string, args ...any) ([]ir.UnitRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query units: %w", err)
	}
	defer rows.Close()

	units := []ir.UnitRecord{}
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate units: %w", err)
	}
	return units, nil
}

// Balance returns a principal's cycle balance; unknown principals hold 0.
func (s *Store) Balance(ctx context.Context, p ir.Principal) (uint64, error) {
	var cycles int64
	err := s.db.QueryRowContext(ctx, `SELECT cycles FROM balances WHERE principal = ?`, p.Bytes()).Scan(&cycles)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return uint64(cycles), nil
}

// ReadCalls returns the call-log rows of one request in seq order.
// Returns an empty slice (not nil) if the request left no rows.
func (s *Store) ReadCalls(ctx context.Context, requestID string) ([]ir.CallRecord, error) {
	return s.queryCalls(ctx, `
		SELECT id, request_id, seq, caller, target, method, arg, outcome, reject_code, message
		FROM calls
		WHERE request_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, requestID)
}

// RecentCalls returns the last limit call-log rows in seq order.
func (s *Store) RecentCalls(ctx context.Context, limit int) ([]ir.CallRecord, error) {
	return s.queryCalls(ctx, `
		SELECT id, request_id, seq, caller, target, method, arg, outcome, reject_code, message
		FROM (
			SELECT * FROM calls ORDER BY seq DESC, id COLLATE BINARY DESC LIMIT ?
		)
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, limit)
}

// ListCalls returns every call-log row in seq order.
func (s *Store) ListCalls(ctx context.Context) ([]ir.CallRecord, error) {
	return s.queryCalls(ctx, `
		SELECT id, request_id, seq, caller, target, method, arg, outcome, reject_code, message
		FROM calls
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
}

func (s *Store) queryCalls(ctx context.Context, query string, args ...any) ([]ir.CallRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	calls := []ir.CallRecord{}
	for rows.Next() {
		var (
			c              ir.CallRecord
			caller, target []byte
		)
		if err := rows.Scan(&c.ID, &c.RequestID, &c.Seq, &caller, &target, &c.Method,
			&c.Arg, &c.Outcome, &c.RejectCode, &c.Message); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		if c.Caller, err = principalFromDB(caller); err != nil {
			return nil, err
		}
		if c.Target, err = principalFromDB(target); err != nil {
			return nil, err
		}
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calls: %w", err)
	}
	return calls, nil
}

// ReadTokens returns the tokens of one unit in mint order.
func (s *Store) ReadTokens(ctx context.Context, unit ir.Principal) ([]ir.TokenRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token_id, owner, name, description, image, seq
		FROM tokens
		WHERE unit = ?
		ORDER BY seq ASC
	`, unit.Bytes())
	if err != nil {
		return nil, fmt.Errorf("query tokens: %w", err)
	}
	defer rows.Close()

	tokens := []ir.TokenRecord{}
	for rows.Next() {
		var (
			tok     = ir.TokenRecord{Unit: unit}
			tokenID string
			owner   string
			desc    sql.NullString
		)
		if err := rows.Scan(&tokenID, &owner, &tok.Name, &desc, &tok.Image, &tok.Seq); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		if tok.TokenID, err = ir.ParseNat(tokenID); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		if tok.Owner, err = unmarshalAccount(owner); err != nil {
			return nil, err
		}
		if desc.Valid {
			tok.Description = &desc.String
		}
		tokens = append(tokens, tok)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tokens: %w", err)
	}
	return tokens, nil
}

// CountTokens returns how many tokens a unit holds.
func (s *Store) CountTokens(ctx context.Context, unit ir.Principal) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tokens WHERE unit = ?`, unit.Bytes()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tokens: %w", err)
	}
	return n, nil
}

// MaxSeq returns the highest seq stored in any table, 0 for a new database.
// The replica resumes its clock from here.
func (s *Store) MaxSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(
			COALESCE((SELECT MAX(created_seq) FROM units), 0),
			COALESCE((SELECT MAX(seq) FROM calls), 0),
			COALESCE((SELECT MAX(seq) FROM tokens), 0)
		)
	`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("max seq: %w", err)
	}
	return seq, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUnit(row rowScanner) (ir.UnitRecord, error) {
	var (
		u           ir.UnitRecord
		id          []byte
		controllers string
		c, m, f     int64
	)
	if err := row.Scan(&id, &controllers, &c, &m, &f, &u.ModuleHash, &u.InitArg, &u.CreatedSeq); err != nil {
		return ir.UnitRecord{}, err
	}

	var err error
	if u.ID, err = principalFromDB(id); err != nil {
		return ir.UnitRecord{}, err
	}
	if u.Controllers, err = unmarshalPrincipals(controllers); err != nil {
		return ir.UnitRecord{}, err
	}
	u.ComputeAllocation = uint64(c)
	u.MemoryAllocation = uint64(m)
	u.FreezingThreshold = uint64(f)
	return u, nil
}
