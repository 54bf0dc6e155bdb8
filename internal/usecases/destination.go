package usecases

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ethereum/go-ethereum/common"
	"yield-vault.backend/internal/domain/entities"
	domainerrors "yield-vault.backend/internal/domain/errors"
)

// normalizeDestination validates a payout destination. An on-chain destination
// without a chain pays out on the vault's chain.
func normalizeDestination(dest entities.Destination, vaultChain string) (entities.Destination, error) {
	switch dest.Type {
	case entities.DestinationBankAccount:
		if strings.TrimSpace(dest.BankAccountRef) == "" {
			return dest, fmt.Errorf("%w: bank account reference is required", domainerrors.ErrInvalidDestination)
		}
		return entities.BankAccountDestination(strings.TrimSpace(dest.BankAccountRef)), nil

	case entities.DestinationClientBalance:
		if strings.TrimSpace(dest.ClientAccountRef) == "" {
			return dest, fmt.Errorf("%w: client account reference is required", domainerrors.ErrInvalidDestination)
		}
		return entities.ClientBalanceDestination(strings.TrimSpace(dest.ClientAccountRef)), nil

	case entities.DestinationOnchainAddress:
		chain := dest.Chain
		if chain == "" {
			chain = vaultChain
		}
		if err := validateAddress(chain, dest.Address); err != nil {
			return dest, err
		}
		return entities.OnchainDestination(chain, dest.Address), nil
	}
	return dest, fmt.Errorf("%w: unknown destination type %q", domainerrors.ErrInvalidDestination, dest.Type)
}

func validateAddress(chain, address string) error {
	if isEVMChain(chain) {
		if !common.IsHexAddress(address) {
			return fmt.Errorf("%w: %q is not an EVM address", domainerrors.ErrInvalidDestination, address)
		}
		return nil
	}
	if address == "" || len(address) > maxAddressLength || strings.IndexFunc(address, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: malformed address %q on %s", domainerrors.ErrInvalidDestination, address, chain)
	}
	return nil
}
