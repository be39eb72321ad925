// Package proxy forwards typed mint calls to collection units and reduces
// every result to a MintOutcome.
//
// The proxy keeps no state between requests. Which method to call for a
// module kind, and how to read its reply, comes from the module catalog.
package proxy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/mintfactory/internal/flow"
	"github.com/roach88/mintfactory/internal/hostrt"
	"github.com/roach88/mintfactory/internal/ir"
)

// MsgInvalidCanisterID is the diagnostic for an unknown kind or a malformed
// unit address.
const MsgInvalidCanisterID = "invalid canister id"

// Proxy forwards mint requests.
//
// Thread-safety: safe for concurrent use when its Runtime is.
type Proxy struct {
	rt     hostrt.Runtime
	table  *Table
	verify bool
	ids    flow.IDGenerator
	logger *slog.Logger
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithVerifyModuleKind controls whether the target unit's installed module
// is checked against the requested kind before forwarding. Default: true.
func WithVerifyModuleKind(enabled bool) Option {
	return func(p *Proxy) {
		p.verify = enabled
	}
}

// WithIDGenerator sets the request id source. Default: UUIDv7.
func WithIDGenerator(gen flow.IDGenerator) Option {
	return func(p *Proxy) {
		p.ids = gen
	}
}

// WithLogger sets the base logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Proxy) {
		p.logger = logger
	}
}

// New creates a Proxy calling through rt and routing with table.
func New(rt hostrt.Runtime, table *Table, opts ...Option) *Proxy {
	p := &Proxy{
		rt:     rt,
		table:  table,
		verify: true,
		ids:    flow.UUIDv7Generator{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Mint forwards req to the unit it names and returns the outcome. It never
// fails: local problems come back as other, downstream rejections as err.
func (p *Proxy) Mint(ctx context.Context, req ir.MintRequest) ir.MintOutcome {
	ctx, _ = flow.Start(ctx, p.ids, p.logger, "mint_proxy")
	log := flow.Logger(ctx).With("canister_name", req.CanisterName, "canister_id", req.CanisterID)

	out := p.mint(ctx, req)
	log.Info("mint forwarded", "outcome", out.String())
	return out
}

func (p *Proxy) mint(ctx context.Context, req ir.MintRequest) ir.MintOutcome {
	route, ok := p.table.Route(req.CanisterName)
	if !ok {
		return ir.MintOther(MsgInvalidCanisterID)
	}
	target, err := ir.ParsePrincipal(req.CanisterID)
	if err != nil || target.IsAnonymous() || target.IsManagement() {
		return ir.MintOther(MsgInvalidCanisterID)
	}
	if err := req.To.Validate(); err != nil {
		return ir.MintOther(fmt.Sprintf("invalid recipient: %v", err))
	}
	if !req.ID.Fits128() {
		return ir.MintOther(fmt.Sprintf("token id %s exceeds 128 bits", req.ID))
	}

	image, err := ir.MarshalWire(ir.IRString(req.Image))
	if err != nil {
		return ir.MintOther(fmt.Sprintf("encode image: %v", err))
	}
	args := ir.MintArgs{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		To:          req.To,
		Image:       image,
	}
	arg, err := args.Encode()
	if err != nil {
		return ir.MintOther(fmt.Sprintf("encode arguments: %v", err))
	}
	if digest, err := ir.RequestDigest("mint_proxy", args.ToIR()); err == nil {
		flow.Logger(ctx).Debug("mint arguments encoded", "method", route.Method, "digest", digest)
	}

	if p.verify {
		if out, ok := p.checkKind(ctx, target, route.Kind); !ok {
			return out
		}
	}

	reply, err := p.rt.Call(ctx, target, route.Method, arg)
	if err != nil {
		return ir.MintErr(rejectMessage(err))
	}
	return decodeReply(route.Reply, reply)
}

// checkKind confirms that target runs a module of kind. The bool is false
// when the returned outcome should end the request.
func (p *Proxy) checkKind(ctx context.Context, target ir.Principal, kind string) (ir.MintOutcome, bool) {
	hash, err := p.rt.ModuleHash(ctx, target)
	if err != nil {
		return ir.MintErr(rejectMessage(err)), false
	}
	if got, ok := p.table.KindOf(hash); !ok || got != kind {
		return ir.MintOther(fmt.Sprintf("unit %s does not run module %s", target, kind)), false
	}
	return ir.MintOutcome{}, true
}

func decodeReply(form string, reply []byte) ir.MintOutcome {
	switch form {
	case ir.ReplyNat:
		id, err := ir.DecodeNat(reply)
		if err != nil {
			return ir.MintErr(fmt.Sprintf("invalid reply: %v", err))
		}
		return ir.MintOK(id)
	default:
		return ir.MintErr(fmt.Sprintf("invalid reply: unsupported reply form %q", form))
	}
}

// rejectMessage returns a rejection's message verbatim.
func rejectMessage(err error) string {
	if rej, ok := hostrt.AsReject(err); ok {
		return rej.Message
	}
	return err.Error()
}
