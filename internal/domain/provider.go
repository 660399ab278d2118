package domain

import "time"

// ProviderConfig selects the extraction backend for one owner.
// At most one config per owner is active at a time.
type ProviderConfig struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	ProviderName string    `json:"provider_name"`
	APIKey       string    `json:"-"`
	ModelName    string    `json:"model_name"`
	Active       bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// MaskedKey returns the credential with everything but the last 4 characters hidden.
func (c ProviderConfig) MaskedKey() string {
	if len(c.APIKey) <= 4 {
		return "****"
	}
	return "****" + c.APIKey[len(c.APIKey)-4:]
}
