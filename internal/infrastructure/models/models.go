package models

// All lists every persisted model in migration order.
func All() []interface{} {
	return []interface{}{
		&Vault{},
		&EndUserPosition{},
		&Protocol{},
		&Allocation{},
		&Deposit{},
		&WithdrawalTransaction{},
		&WithdrawalQueueItem{},
		&ProtocolInstruction{},
		&PayoutInstruction{},
		&LedgerEntry{},
	}
}
