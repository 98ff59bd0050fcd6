package marketplace

// Fees is the fee schedule applied by the controller, in microAlgos.
type Fees struct {
	// FundingAmount is paid to the custodial address on opt-in to cover its
	// minimum balance.
	FundingAmount uint64 `yaml:"funding_amount" json:"funding_amount"`
	// ExtraFee is added to payment arguments to pay for the contract's inner
	// transactions.
	ExtraFee uint64 `yaml:"extra_fee" json:"extra_fee"`
	// DeleteFee is the flat fee override used when deleting the application.
	DeleteFee uint64 `yaml:"delete_fee" json:"delete_fee"`
}

// DefaultFees mirrors the amounts used by the marketplace front-end:
// 0.2 ALGO funding, 0.001 ALGO extra fee, 0.003 ALGO delete fee.
func DefaultFees() Fees {
	return Fees{
		FundingAmount: 200_000,
		ExtraFee:      1_000,
		DeleteFee:     3_000,
	}
}

// withDefaults fills zero fields from DefaultFees.
func (f Fees) withDefaults() Fees {
	d := DefaultFees()
	if f.FundingAmount == 0 {
		f.FundingAmount = d.FundingAmount
	}
	if f.ExtraFee == 0 {
		f.ExtraFee = d.ExtraFee
	}
	if f.DeleteFee == 0 {
		f.DeleteFee = d.DeleteFee
	}
	return f
}
