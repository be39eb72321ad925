package ir

// ModuleSpec is one compiled catalog entry: a named code module the factory
// can install, with the call shape used to mint through it.
type ModuleSpec struct {
	Name        string     `json:"name"`
	Kind        string     `json:"kind"`
	Description string     `json:"description,omitempty"`
	File        string     `json:"file"`
	Hash        string     `json:"hash"`
	Size        int        `json:"size"`
	Mint        *MintShape `json:"mint,omitempty"`
}

// MintShape names the unit method a mint is forwarded to and how its reply
// is read.
type MintShape struct {
	Method string `json:"method"`
	Reply  string `json:"reply"`
}

// Reply forms understood by the proxy.
const (
	ReplyNat = "nat"
)

// ServiceSpec is a compiled interface declaration.
type ServiceSpec struct {
	Name    string      `json:"name"`
	Types   []TypeDef   `json:"types"`
	Methods []MethodSig `json:"methods"`
}

// TypeDef is a named record, variant or alias in a service declaration.
type TypeDef struct {
	Name   string     `json:"name"`
	Kind   string     `json:"kind"`
	Fields []FieldDef `json:"fields,omitempty"`
	Alias  string     `json:"alias,omitempty"`
}

// FieldDef is a record field or variant case. Type is empty for a case
// without payload.
type FieldDef struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// MethodSig is one service method.
type MethodSig struct {
	Name    string   `json:"name"`
	Args    []string `json:"args"`
	Returns []string `json:"returns"`
	Mode    string   `json:"mode"`
}

// Type kinds and method modes.
const (
	KindRecord  = "record"
	KindVariant = "variant"
	KindAlias   = "alias"

	ModeUpdate = "update"
	ModeQuery  = "query"
)
