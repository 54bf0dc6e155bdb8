package usecases

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"yield-vault.backend/internal/domain/entities"
	domainerrors "yield-vault.backend/internal/domain/errors"
	"yield-vault.backend/internal/domain/repositories"
)

// ProtocolRegistryUsecase maintains the catalog of yield protocols
type ProtocolRegistryUsecase struct {
	protocolRepo repositories.ProtocolRepository
}

// NewProtocolRegistryUsecase creates a new protocol registry usecase
func NewProtocolRegistryUsecase(protocolRepo repositories.ProtocolRepository) *ProtocolRegistryUsecase {
	return &ProtocolRegistryUsecase{protocolRepo: protocolRepo}
}

// Register adds an active protocol to the registry
func (u *ProtocolRegistryUsecase) Register(ctx context.Context, input *entities.RegisterProtocolInput) (*entities.Protocol, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: protocol name is required", domainerrors.ErrInvalidInput)
	}
	if !validCAIP2(input.Chain) {
		return nil, fmt.Errorf("%w: chain %q is not a CAIP-2 id", domainerrors.ErrInvalidInput, input.Chain)
	}
	if !input.Category.Valid() {
		return nil, fmt.Errorf("%w: unknown category %q", domainerrors.ErrInvalidInput, input.Category)
	}
	if input.RiskTier.Rank() > entities.RiskTierHigh.Rank() {
		return nil, fmt.Errorf("%w: unknown risk tier %q", domainerrors.ErrInvalidInput, input.RiskTier)
	}

	protocol := &entities.Protocol{
		Name:     name,
		Chain:    input.Chain,
		Category: input.Category,
		RiskTier: input.RiskTier,
		IsActive: true,
	}
	if err := u.protocolRepo.Create(ctx, protocol); err != nil {
		return nil, err
	}
	return protocol, nil
}

// Get returns a protocol by id
func (u *ProtocolRegistryUsecase) Get(ctx context.Context, id uuid.UUID) (*entities.Protocol, error) {
	return u.protocolRepo.GetByID(ctx, id)
}

// ListActive returns the active protocols on a chain
func (u *ProtocolRegistryUsecase) ListActive(ctx context.Context, chain string) ([]*entities.Protocol, error) {
	return u.protocolRepo.ListActiveByChain(ctx, chain)
}

// SetActive enables or disables a protocol for new allocations
func (u *ProtocolRegistryUsecase) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	return u.protocolRepo.SetActive(ctx, id, active)
}
