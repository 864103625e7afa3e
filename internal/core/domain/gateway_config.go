package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProviderType identifies one of the supported payment providers.
type ProviderType string

const (
	ProviderWallet    ProviderType = "wallet"
	ProviderPSB       ProviderType = "psb"
	ProviderUniteller ProviderType = "uniteller"
	ProviderRBS       ProviderType = "rbs"
)

// AllProviders lists every supported provider type.
var AllProviders = []ProviderType{ProviderWallet, ProviderPSB, ProviderUniteller, ProviderRBS}

// Valid reports whether p is a known provider type.
func (p ProviderType) Valid() bool {
	switch p {
	case ProviderWallet, ProviderPSB, ProviderUniteller, ProviderRBS:
		return true
	}
	return false
}

// BankCode selects a partner bank on the RBS acquiring platform.
type BankCode string

const (
	BankSberbank    BankCode = "sberbank"
	BankAlfabank    BankCode = "alfabank"
	BankVTB         BankCode = "vtb"
	BankGazprombank BankCode = "gazprombank"
	BankRaiffeisen  BankCode = "raiffeisen"
	BankOtkritie    BankCode = "otkritie"
	BankRosbank     BankCode = "rosbank"
	BankMKB         BankCode = "mkb"
	BankUralsib     BankCode = "uralsib"
)

// AllBanks lists the partner banks reachable through the RBS platform.
var AllBanks = []BankCode{
	BankSberbank, BankAlfabank, BankVTB, BankGazprombank, BankRaiffeisen,
	BankOtkritie, BankRosbank, BankMKB, BankUralsib,
}

// Valid reports whether b is a known partner bank.
func (b BankCode) Valid() bool {
	for _, known := range AllBanks {
		if b == known {
			return true
		}
	}
	return false
}

// GatewayConfig is a provider configuration record. The Config bundle holds
// provider-specific credentials and protocol options; fields named by the
// secret schema are stored encrypted and masked on read-out.
type GatewayConfig struct {
	ID        uuid.UUID      `json:"id"`
	Type      ProviderType   `json:"type"`
	Bank      BankCode       `json:"bank,omitempty"` // set only for RBS configs
	Name      string         `json:"name"`
	Enabled   bool           `json:"enabled"`
	TestMode  bool           `json:"test_mode"`
	Position  int            `json:"position"`
	Config    map[string]any `json:"config"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// CloneConfig returns a deep copy of the settings bundle so masking and
// decryption never rewrite the map a repository or caller still holds.
func (c *GatewayConfig) CloneConfig() map[string]any {
	return cloneConfigMap(c.Config)
}

func cloneConfigMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if child, ok := v.(map[string]any); ok {
			out[k] = cloneConfigMap(child)
			continue
		}
		out[k] = v
	}
	return out
}

// SecretFieldMask replaces decrypted secrets before a config leaves the store.
const SecretFieldMask = "********"

// SecretWildcard matches every key of a nested object in a secret field path.
const SecretWildcard = "*"

// secretSchema declares, per provider, which Config paths hold credentials.
// Paths are static; a wildcard segment spans map keys (per-currency accounts).
var secretSchema = map[ProviderType][][]string{
	ProviderWallet: {
		{"secret_key"},
	},
	ProviderPSB: {
		{"password"},
		{"test_password"},
	},
	ProviderUniteller: {
		{"password"},
		{"accounts", SecretWildcard, "password"},
	},
	ProviderRBS: {
		{"password"},
		{"test_password"},
	},
}

// SecretFields returns the declared secret paths for a provider type.
func SecretFields(t ProviderType) [][]string {
	return secretSchema[t]
}
