package factory

import "github.com/roach88/mintfactory/internal/ir"

// Timing fields of every startup record. They are fixed, not configurable.
const (
	DefaultTxWindow       uint16 = 1
	DefaultPermittedDrift uint16 = 1
)

// NewInitRecord builds the startup record for a collection requested by
// caller. The caller becomes the minting authority; optional fields are
// copied as given and stay absent when absent.
func NewInitRecord(caller ir.Principal, req ir.CreateRequest) ir.InitRecord {
	authority := caller
	return ir.InitRecord{
		Name:               req.Name,
		Symbol:             req.Symbol,
		TxWindow:           DefaultTxWindow,
		PermittedDrift:     DefaultPermittedDrift,
		MintingAuthority:   &authority,
		Royalties:          req.Royalties,
		RoyaltiesRecipient: req.RoyaltiesRecipient,
		Description:        req.Description,
		Image:              req.Image,
		SupplyCap:          req.SupplyCap,
		WasmName:           req.WasmName,
	}
}
