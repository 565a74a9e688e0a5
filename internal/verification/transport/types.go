package transport

// StartRequest begins verification on the primary network.
type StartRequest struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Wallet   string `json:"wallet"`
}

// ConfirmRequest asks for the user's challenge payment to be confirmed.
type ConfirmRequest struct {
	UserID string `json:"userId"`
}

// NetworkRequest verifies holdings on a secondary network.
type NetworkRequest struct {
	UserID  string `json:"userId"`
	Network string `json:"network"`
}

// ResetRequest clears a user's verification state.
type ResetRequest struct {
	UserID string `json:"userId"`
}
