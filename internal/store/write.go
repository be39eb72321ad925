package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/mintfactory/internal/ir"
)

// CreateUnit debits cycles from payer, allocates the next unit id and inserts
// an empty unit, atomically. The returned record carries the new id. Ids are
// never reused, even after a unit is deleted.
// Returns ErrInsufficientCycles when the payer cannot cover the fee; in that
// case nothing is written.
func (s *Store) CreateUnit(ctx context.Context, unit ir.UnitRecord, payer ir.Principal, cycles uint64) (ir.UnitRecord, error) {
	controllers, err := marshalPrincipals(unit.Controllers)
	if err != nil {
		return ir.UnitRecord{}, fmt.Errorf("create unit: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.UnitRecord{}, fmt.Errorf("create unit: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := debit(ctx, tx, payer, cycles); err != nil {
		return ir.UnitRecord{}, fmt.Errorf("create unit: %w", err)
	}

	var next int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO counters (name, value) VALUES ('units', 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1
		RETURNING value
	`).Scan(&next)
	if err != nil {
		return ir.UnitRecord{}, fmt.Errorf("create unit: allocate id: %w", err)
	}
	unit.ID = ir.UnitIDFromSeq(uint64(next - 1))

	_, err = tx.ExecContext(ctx, `
		INSERT INTO units
		(id, controllers, compute_allocation, memory_allocation, freezing_threshold, created_seq)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		unit.ID.Bytes(),
		controllers,
		int64(unit.ComputeAllocation),
		int64(unit.MemoryAllocation),
		int64(unit.FreezingThreshold),
		unit.CreatedSeq,
	)
	if err != nil {
		return ir.UnitRecord{}, fmt.Errorf("create unit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return ir.UnitRecord{}, fmt.Errorf("create unit: commit: %w", err)
	}
	return unit, nil
}

// UpdateUnitSettings replaces controllers and allocations of a unit.
func (s *Store) UpdateUnitSettings(ctx context.Context, unit ir.UnitRecord) error {
	controllers, err := marshalPrincipals(unit.Controllers)
	if err != nil {
		return fmt.Errorf("update unit settings: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE units
		SET controllers = ?, compute_allocation = ?, memory_allocation = ?, freezing_threshold = ?
		WHERE id = ?
	`,
		controllers,
		int64(unit.ComputeAllocation),
		int64(unit.MemoryAllocation),
		int64(unit.FreezingThreshold),
		unit.ID.Bytes(),
	)
	if err != nil {
		return fmt.Errorf("update unit settings: %w", err)
	}
	return expectOneRow(res, "update unit settings")
}

// InstallModule stores code and its startup argument in an empty unit.
// Returns ErrAlreadyInstalled if the unit already carries a module.
func (s *Store) InstallModule(ctx context.Context, id ir.Principal, module []byte, initArg []byte) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE units
		SET module = ?, module_hash = ?, init_arg = ?
		WHERE id = ? AND module_hash = ''
	`, module, ir.ModuleHash(module), initArg, id.Bytes())
	if err != nil {
		return fmt.Errorf("install module: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("install module: %w", err)
	}
	if n == 0 {
		if _, err := s.ReadUnit(ctx, id); err != nil {
			return fmt.Errorf("install module: %w", err)
		}
		return fmt.Errorf("install module: %w", ErrAlreadyInstalled)
	}
	return nil
}

// ClearModule empties a unit again. Used to roll back an install whose
// initializer failed.
func (s *Store) ClearModule(ctx context.Context, id ir.Principal) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE units SET module = NULL, module_hash = '', init_arg = NULL WHERE id = ?
	`, id.Bytes())
	if err != nil {
		return fmt.Errorf("clear module: %w", err)
	}
	return expectOneRow(res, "clear module")
}

// DeleteUnit removes a unit and, through the foreign key, its tokens.
func (s *Store) DeleteUnit(ctx context.Context, id ir.Principal) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM units WHERE id = ?`, id.Bytes())
	if err != nil {
		return fmt.Errorf("delete unit: %w", err)
	}
	return expectOneRow(res, "delete unit")
}

// Credit adds cycles to a principal's balance.
func (s *Store) Credit(ctx context.Context, p ir.Principal, cycles uint64) error {
	amount, err := toDBCycles(cycles)
	if err != nil {
		return fmt.Errorf("credit: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO balances (principal, cycles) VALUES (?, ?)
		ON CONFLICT(principal) DO UPDATE SET cycles = cycles + excluded.cycles
	`, p.Bytes(), amount)
	if err != nil {
		return fmt.Errorf("credit: %w", err)
	}
	return nil
}

// debit removes cycles from p's balance inside tx.
func debit(ctx context.Context, tx *sql.Tx, p ir.Principal, cycles uint64) error {
	amount, err := toDBCycles(cycles)
	if err != nil {
		return err
	}

	var balance int64
	err = tx.QueryRowContext(ctx, `SELECT cycles FROM balances WHERE principal = ?`, p.Bytes()).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		balance = 0
	} else if err != nil {
		return err
	}
	if balance < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientCycles, balance, amount)
	}
	if amount == 0 {
		return nil
	}

	_, err = tx.ExecContext(ctx, `UPDATE balances SET cycles = cycles - ? WHERE principal = ?`, amount, p.Bytes())
	return err
}

// WriteCall appends a call-log row.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - duplicate IDs are silently ignored.
func (s *Store) WriteCall(ctx context.Context, call ir.CallRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calls
		(id, request_id, seq, caller, target, method, arg, outcome, reject_code, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		call.ID,
		call.RequestID,
		call.Seq,
		call.Caller.Bytes(),
		call.Target.Bytes(),
		call.Method,
		call.Arg,
		call.Outcome,
		call.RejectCode,
		call.Message,
	)
	if err != nil {
		return fmt.Errorf("write call: %w", err)
	}
	return nil
}

// InsertToken records a minted token. Returns ErrDuplicateToken when the unit
// already holds a token with the same id.
func (s *Store) InsertToken(ctx context.Context, tok ir.TokenRecord) error {
	owner, err := marshalAccount(tok.Owner)
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}

	var desc sql.NullString
	if tok.Description != nil {
		desc = sql.NullString{String: *tok.Description, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tokens (unit, token_id, owner, name, description, image, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(unit, token_id) DO NOTHING
	`,
		tok.Unit.Bytes(),
		tok.TokenID.String(),
		owner,
		tok.Name,
		desc,
		tok.Image,
		tok.Seq,
	)
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("insert token %s: %w", tok.TokenID, ErrDuplicateToken)
	}
	return nil
}

func expectOneRow(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}
