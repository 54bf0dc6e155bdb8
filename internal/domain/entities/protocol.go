package entities

import (
	"time"

	"github.com/google/uuid"
)

// ProtocolCategory represents the kind of external protocol
type ProtocolCategory string

const (
	ProtocolCategoryLending ProtocolCategory = "lending"
	ProtocolCategoryLP      ProtocolCategory = "lp"
	ProtocolCategoryStaking ProtocolCategory = "staking"
)

// RiskTier represents protocol risk classification
type RiskTier string

const (
	RiskTierLow    RiskTier = "low"
	RiskTierMedium RiskTier = "medium"
	RiskTierHigh   RiskTier = "high"
)

// Rank orders tiers from safest to riskiest. Unknown tiers rank above high.
func (t RiskTier) Rank() int {
	switch t {
	case RiskTierLow:
		return 1
	case RiskTierMedium:
		return 2
	case RiskTierHigh:
		return 3
	default:
		return 4
	}
}

// Valid reports whether the category is known.
func (c ProtocolCategory) Valid() bool {
	switch c {
	case ProtocolCategoryLending, ProtocolCategoryLP, ProtocolCategoryStaking:
		return true
	}
	return false
}

// Protocol is a catalog entry for an external yield venue on one chain
type Protocol struct {
	ID        uuid.UUID        `json:"id"`
	Name      string           `json:"name"`
	Chain     string           `json:"chain"`
	Category  ProtocolCategory `json:"category"`
	RiskTier  RiskTier         `json:"riskTier"`
	IsActive  bool             `json:"isActive"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// RegisterProtocolInput represents input for adding a protocol to the registry
type RegisterProtocolInput struct {
	Name     string           `json:"name"`
	Chain    string           `json:"chain"`
	Category ProtocolCategory `json:"category"`
	RiskTier RiskTier         `json:"riskTier"`
}
