package local

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/mintfactory/internal/hostrt"
	"github.com/roach88/mintfactory/internal/ir"
	"github.com/roach88/mintfactory/internal/store"
)

// Handler executes one kind of installed module.
type Handler interface {
	// Init runs once after the module is stored. An error rolls the
	// install back.
	Init(ctx context.Context, env Env, arg []byte) error
	// Call serves one method call. A *hostrt.Reject passes through to the
	// caller unchanged; any other error is reported as a trap.
	Call(ctx context.Context, env Env, method string, arg []byte) ([]byte, error)
}

// Env is what a handler sees of the replica during one call.
type Env struct {
	Store  *store.Store
	Unit   ir.UnitRecord
	Caller ir.Principal
	Seq    int64
}

// Ledger is a development stand-in for a token ledger. It validates the
// startup record, records minted tokens and answers a few metadata queries.
// It does not implement transfers or approvals.
type Ledger struct {
	mintMethod string
}

// NewLedger creates a ledger that mints through mintMethod.
func NewLedger(mintMethod string) *Ledger {
	return &Ledger{mintMethod: mintMethod}
}

// Ledger query methods.
const (
	MethodName        = "icrc7_name"
	MethodSymbol      = "icrc7_symbol"
	MethodTotalSupply = "icrc7_total_supply"
	MethodSupplyCap   = "icrc7_supply_cap"
)

// Init checks that arg is a well-formed startup record.
func (l *Ledger) Init(_ context.Context, _ Env, arg []byte) error {
	rec, err := ir.DecodeInitRecord(arg)
	if err != nil {
		return err
	}
	if rec.Name == "" {
		return errors.New("init record: empty name")
	}
	return nil
}

// Call dispatches mint and metadata methods.
func (l *Ledger) Call(ctx context.Context, env Env, method string, arg []byte) ([]byte, error) {
	rec, err := ir.DecodeInitRecord(env.Unit.InitArg)
	if err != nil {
		return nil, err
	}

	switch method {
	case l.mintMethod:
		return l.mint(ctx, env, rec, arg)
	case MethodName:
		return ir.MarshalWire(ir.IRString(rec.Name))
	case MethodSymbol:
		return ir.MarshalWire(ir.IRString(rec.Symbol))
	case MethodTotalSupply:
		n, err := env.Store.CountTokens(ctx, env.Unit.ID)
		if err != nil {
			return nil, err
		}
		return ir.MarshalWire(ir.NatFromUint64(uint64(n)))
	case MethodSupplyCap:
		if rec.SupplyCap == nil {
			return ir.MarshalWire(ir.IRArray{})
		}
		return ir.MarshalWire(ir.IRArray{*rec.SupplyCap})
	default:
		return nil, hostrt.Rejectf(hostrt.CanisterReject, "canister has no update method '%s'", method)
	}
}

func (l *Ledger) mint(ctx context.Context, env Env, rec ir.InitRecord, arg []byte) ([]byte, error) {
	args, err := ir.DecodeMintArgs(arg)
	if err != nil {
		return nil, hostrt.Rejectf(hostrt.CanisterReject, "decode mint args: %v", err)
	}
	if err := args.To.Validate(); err != nil {
		return nil, hostrt.Rejectf(hostrt.CanisterReject, "invalid recipient: %v", err)
	}

	if rec.SupplyCap != nil {
		n, err := env.Store.CountTokens(ctx, env.Unit.ID)
		if err != nil {
			return nil, err
		}
		if ir.NatFromUint64(uint64(n)).Cmp(*rec.SupplyCap) >= 0 {
			return nil, hostrt.Rejectf(hostrt.CanisterReject, "supply cap %s reached", rec.SupplyCap)
		}
	}

	err = env.Store.InsertToken(ctx, ir.TokenRecord{
		Unit:        env.Unit.ID,
		TokenID:     args.ID,
		Owner:       args.To,
		Name:        args.Name,
		Description: args.Description,
		Image:       args.Image,
		Seq:         env.Seq,
	})
	if errors.Is(err, store.ErrDuplicateToken) {
		return nil, hostrt.Rejectf(hostrt.CanisterReject, "token %s already exists", args.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("record token: %w", err)
	}
	return ir.MarshalWire(args.ID)
}
