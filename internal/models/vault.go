package models

// Vault is a custody account. Anyone may deposit into it, only Authority may
// withdraw from it, and while Locked no funds move in either direction.
type Vault struct {
	Address   Identity `json:"address"`
	Authority Identity `json:"authority"` // fixed at creation
	Balance   uint64   `json:"balance"`   // lamports
	Locked    bool     `json:"locked"`
}
