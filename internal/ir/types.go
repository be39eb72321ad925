package ir

import (
	"encoding/json"
	"fmt"
)

// SubaccountLen is the fixed size of an account subaccount.
const SubaccountLen = 32

// Account is a ledger destination: an owner plus an optional subaccount.
type Account struct {
	Owner      Principal `json:"owner"`
	Subaccount []byte    `json:"subaccount,omitempty"`
}

// Validate checks the subaccount length.
func (a Account) Validate() error {
	if a.Subaccount != nil && len(a.Subaccount) != SubaccountLen {
		return fmt.Errorf("subaccount must be %d bytes, got %d", SubaccountLen, len(a.Subaccount))
	}
	return nil
}

// ToIR encodes the account. A nil subaccount is omitted.
func (a Account) ToIR() IRObject {
	obj := IRObject{"owner": IRString(a.Owner.String())}
	if a.Subaccount != nil {
		obj["subaccount"] = IRBlob(a.Subaccount)
	}
	return obj
}

// InitRecord is the startup argument installed with a collection unit.
// Pointer and nil slice fields are optional; absent ones are not encoded.
type InitRecord struct {
	Name               string     `json:"name"`
	Symbol             string     `json:"symbol"`
	TxWindow           uint16     `json:"tx_window"`
	PermittedDrift     uint16     `json:"permitted_drift"`
	MintingAuthority   *Principal `json:"minting_authority,omitempty"`
	Royalties          *uint16    `json:"royalties,omitempty"`
	RoyaltiesRecipient *Account   `json:"royalties_recipient,omitempty"`
	Description        *string    `json:"description,omitempty"`
	Image              []byte     `json:"image,omitempty"`
	SupplyCap          *IRNat     `json:"supply_cap,omitempty"`
	WasmName           string     `json:"wasm_name"`
}

// ToIR encodes the record for the wire.
func (r InitRecord) ToIR() IRObject {
	obj := IRObject{
		"name":            IRString(r.Name),
		"symbol":          IRString(r.Symbol),
		"tx_window":       IRInt(r.TxWindow),
		"permitted_drift": IRInt(r.PermittedDrift),
		"wasm_name":       IRString(r.WasmName),
	}
	if r.MintingAuthority != nil {
		obj["minting_authority"] = IRString(r.MintingAuthority.String())
	}
	if r.Royalties != nil {
		obj["royalties"] = IRInt(*r.Royalties)
	}
	if r.RoyaltiesRecipient != nil {
		obj["royalties_recipient"] = r.RoyaltiesRecipient.ToIR()
	}
	if r.Description != nil {
		obj["description"] = IRString(*r.Description)
	}
	if r.Image != nil {
		obj["image"] = IRBlob(r.Image)
	}
	if r.SupplyCap != nil {
		obj["supply_cap"] = *r.SupplyCap
	}
	return obj
}

// Encode returns the canonical wire bytes of the record.
func (r InitRecord) Encode() ([]byte, error) {
	return MarshalWire(r.ToIR())
}

// DecodeInitRecord parses canonical wire bytes back into a record.
func DecodeInitRecord(data []byte) (InitRecord, error) {
	obj, err := decodeObject(data)
	if err != nil {
		return InitRecord{}, fmt.Errorf("init record: %w", err)
	}
	f := fields{obj: obj}
	r := InitRecord{
		Name:           f.str("name"),
		Symbol:         f.str("symbol"),
		TxWindow:       f.u16("tx_window"),
		PermittedDrift: f.u16("permitted_drift"),
		WasmName:       f.str("wasm_name"),
	}
	if f.has("minting_authority") {
		p := f.principal("minting_authority")
		r.MintingAuthority = &p
	}
	if f.has("royalties") {
		v := f.u16("royalties")
		r.Royalties = &v
	}
	if f.has("royalties_recipient") {
		a := f.account("royalties_recipient")
		r.RoyaltiesRecipient = &a
	}
	if f.has("description") {
		d := f.str("description")
		r.Description = &d
	}
	if f.has("image") {
		r.Image = f.blob("image")
	}
	if f.has("supply_cap") {
		n := f.nat("supply_cap")
		r.SupplyCap = &n
	}
	if f.err != nil {
		return InitRecord{}, fmt.Errorf("init record: %w", f.err)
	}
	return r, nil
}

// CreateRequest is what a caller supplies to create a collection. Identity
// and timing fields are filled in by the factory.
type CreateRequest struct {
	Name               string   `json:"name"`
	Symbol             string   `json:"symbol"`
	Royalties          *uint16  `json:"royalties,omitempty"`
	RoyaltiesRecipient *Account `json:"royalties_recipient,omitempty"`
	Description        *string  `json:"description,omitempty"`
	Image              []byte   `json:"image,omitempty"`
	SupplyCap          *IRNat   `json:"supply_cap,omitempty"`
	WasmName           string   `json:"wasm_name"`
}

// MintRequest is the caller-facing mint input. CanisterName selects the
// module kind, CanisterID the target unit in text form.
type MintRequest struct {
	ID           IRNat   `json:"id"`
	Name         string  `json:"name"`
	Description  *string `json:"description,omitempty"`
	Image        string  `json:"image"`
	To           Account `json:"to"`
	CanisterName string  `json:"canister_name"`
	CanisterID   string  `json:"canister_id"`
}

// MintArgs is the normalized argument forwarded to a unit's mint method.
type MintArgs struct {
	ID          IRNat
	Name        string
	Description *string
	To          Account
	Image       []byte
}

// ToIR encodes the arguments for the wire.
func (m MintArgs) ToIR() IRObject {
	obj := IRObject{
		"id":    m.ID,
		"name":  IRString(m.Name),
		"to":    m.To.ToIR(),
		"image": IRBlob(m.Image),
	}
	if m.Description != nil {
		obj["description"] = IRString(*m.Description)
	}
	return obj
}

// Encode returns the canonical wire bytes of the arguments.
func (m MintArgs) Encode() ([]byte, error) {
	return MarshalWire(m.ToIR())
}

// DecodeMintArgs parses canonical wire bytes back into mint arguments.
func DecodeMintArgs(data []byte) (MintArgs, error) {
	obj, err := decodeObject(data)
	if err != nil {
		return MintArgs{}, fmt.Errorf("mint args: %w", err)
	}
	f := fields{obj: obj}
	m := MintArgs{
		ID:    f.nat("id"),
		Name:  f.str("name"),
		To:    f.account("to"),
		Image: f.blob("image"),
	}
	if f.has("description") {
		d := f.str("description")
		m.Description = &d
	}
	if f.err != nil {
		return MintArgs{}, fmt.Errorf("mint args: %w", f.err)
	}
	return m, nil
}

// OutcomeKind tags a MintOutcome variant.
type OutcomeKind string

const (
	OutcomeOK    OutcomeKind = "ok"
	OutcomeErr   OutcomeKind = "err"
	OutcomeOther OutcomeKind = "other"
)

// MintOutcome is the uniform result of a proxied mint: ok carries the minted
// id, err the downstream reject message, other a local diagnostic.
type MintOutcome struct {
	Kind    OutcomeKind
	ID      IRNat
	Message string
}

// MintOK builds an ok outcome.
func MintOK(id IRNat) MintOutcome { return MintOutcome{Kind: OutcomeOK, ID: id} }

// MintErr builds an err outcome.
func MintErr(msg string) MintOutcome { return MintOutcome{Kind: OutcomeErr, Message: msg} }

// MintOther builds an other outcome.
func MintOther(msg string) MintOutcome { return MintOutcome{Kind: OutcomeOther, Message: msg} }

// ToIR encodes the outcome as a single-key variant object.
func (o MintOutcome) ToIR() IRObject {
	if o.Kind == OutcomeOK {
		return IRObject{string(OutcomeOK): o.ID}
	}
	return IRObject{string(o.Kind): IRString(o.Message)}
}

// String renders the outcome for text output.
func (o MintOutcome) String() string {
	if o.Kind == OutcomeOK {
		return fmt.Sprintf("ok(%s)", o.ID)
	}
	return fmt.Sprintf("%s(%q)", o.Kind, o.Message)
}

// MarshalJSON writes {"ok":N}, {"err":"..."} or {"other":"..."}.
func (o MintOutcome) MarshalJSON() ([]byte, error) {
	switch o.Kind {
	case OutcomeOK, OutcomeErr, OutcomeOther:
		return MarshalWire(o.ToIR())
	default:
		return nil, fmt.Errorf("unknown outcome kind %q", o.Kind)
	}
}

// UnmarshalJSON reads the single-key variant form.
func (o *MintOutcome) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 1 {
		return fmt.Errorf("outcome must have exactly one variant, got %d", len(raw))
	}
	for k, v := range raw {
		switch OutcomeKind(k) {
		case OutcomeOK:
			var id IRNat
			if err := id.UnmarshalJSON(v); err != nil {
				return err
			}
			*o = MintOK(id)
		case OutcomeErr, OutcomeOther:
			var msg string
			if err := json.Unmarshal(v, &msg); err != nil {
				return err
			}
			*o = MintOutcome{Kind: OutcomeKind(k), Message: msg}
		default:
			return fmt.Errorf("unknown outcome variant %q", k)
		}
	}
	return nil
}

func decodeObject(data []byte) (IRObject, error) {
	v, err := UnmarshalIRValue(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(IRObject)
	if !ok {
		return nil, fmt.Errorf("expected object, got %T", v)
	}
	return obj, nil
}
