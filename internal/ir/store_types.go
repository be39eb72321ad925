package ir

// NOTE: These are store-internal types of the local replica, not wire records.
// Seq values come from the replica's logical clock.

// UnitRecord is the host-side state of one unit.
type UnitRecord struct {
	ID                Principal   `json:"id"`
	Controllers       []Principal `json:"controllers"`
	ComputeAllocation uint64      `json:"compute_allocation"`
	MemoryAllocation  uint64      `json:"memory_allocation"`
	FreezingThreshold uint64      `json:"freezing_threshold"`
	ModuleHash        string      `json:"module_hash,omitempty"` // empty until code is installed
	InitArg           []byte      `json:"init_arg,omitempty"`
	CreatedSeq        int64       `json:"created_seq"`
}

// HasController reports whether p controls the unit.
func (u UnitRecord) HasController(p Principal) bool {
	for _, c := range u.Controllers {
		if c == p {
			return true
		}
	}
	return false
}

// CallRecord is one entry of the replica's call log.
type CallRecord struct {
	ID         string    `json:"id"` // Content-addressed (CallID)
	RequestID  string    `json:"request_id"`
	Seq        int64     `json:"seq"`
	Caller     Principal `json:"caller"`
	Target     Principal `json:"target"`
	Method     string    `json:"method"`
	Arg        []byte    `json:"arg,omitempty"`
	Outcome    string    `json:"outcome"`               // "reply" or "reject"
	RejectCode int       `json:"reject_code,omitempty"` // Set when Outcome is "reject"
	Message    string    `json:"message,omitempty"`
}

// Call outcomes.
const (
	CallReplied  = "reply"
	CallRejected = "reject"
)

// TokenRecord is a token minted through the replica's development ledger.
type TokenRecord struct {
	Unit        Principal `json:"unit"`
	TokenID     IRNat     `json:"token_id"`
	Owner       Account   `json:"owner"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Image       []byte    `json:"image,omitempty"`
	Seq         int64     `json:"seq"`
}
