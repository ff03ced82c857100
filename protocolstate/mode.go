package protocolstate

import (
	"github.com/shopspring/decimal"

	"talvault/numeric"
)

// Mode is the protocol-wide operating regime.
type Mode int

const (
	ModeReadOnly Mode = iota
	ModeGeneralAvailability
	ModeRecovery
)

func (m Mode) String() string {
	switch m {
	case ModeReadOnly:
		return "Read-only"
	case ModeGeneralAvailability:
		return "General availability"
	case ModeRecovery:
		return "Recovery"
	default:
		return "Unknown"
	}
}

// IsAvailable reports whether mutating calls are permitted at all.
func (m Mode) IsAvailable() bool { return m != ModeReadOnly }

// MinimumCollateralRatio is MCR: the floor collateral ratio required to
// avoid liquidation outside Recovery.
func MinimumCollateralRatio() numeric.Ratio {
	return numeric.NewRatio(decimal.NewFromFloat(1.10))
}

// RecoveryCollateralRatio is CCR: the total-collateral-ratio threshold
// below which the protocol enters Recovery mode, and the per-vault minimum
// liquidation ratio while in Recovery.
func RecoveryCollateralRatio() numeric.Ratio {
	return numeric.NewRatio(decimal.NewFromFloat(1.50))
}

// MinimumLiquidationCollateralRatio returns the per-vault ratio below which
// a vault is liquidatable in the given mode.
func (m Mode) MinimumLiquidationCollateralRatio() numeric.Ratio {
	if m == ModeRecovery {
		return RecoveryCollateralRatio()
	}
	return MinimumCollateralRatio()
}
