package usecases

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"yield-vault.backend/internal/domain/entities"
	"yield-vault.backend/internal/domain/repositories"
)

func ledgerEntry(v *entities.Vault, entryType entities.LedgerEntryType, amount, units decimal.Decimal) *entities.LedgerEntry {
	return &entities.LedgerEntry{
		ClientID:  v.ClientID,
		VaultID:   v.ID,
		EntryType: entryType,
		Amount:    amount,
		Units:     units,
		Index:     v.CurrentIndex,
	}
}

func withRef(e *entities.LedgerEntry, ref uuid.UUID) *entities.LedgerEntry {
	e.ReferenceID = &ref
	return e
}

func withUser(e *entities.LedgerEntry, userID uuid.UUID) *entities.LedgerEntry {
	e.UserID = &userID
	return e
}

// appendLedger writes the entry in the caller's transaction
func appendLedger(ctx context.Context, repo repositories.LedgerEntryRepository, e *entities.LedgerEntry, meta map[string]string) error {
	if len(meta) > 0 {
		raw, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("encode ledger metadata: %w", err)
		}
		e.Metadata = string(raw)
	}
	if err := repo.Create(ctx, e); err != nil {
		return fmt.Errorf("failed to append %s ledger entry: %w", e.EntryType, err)
	}
	return nil
}
