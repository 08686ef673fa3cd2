package scheduling

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"clinicdesk/backend/internal/domain"
)

func (s *Service) CreateProvider(ctx context.Context, name, specialty string) (domain.Provider, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Provider{}, validationError("name is required")
	}
	return s.providers.CreateProvider(ctx, domain.Provider{
		Name:      name,
		Specialty: strings.TrimSpace(specialty),
	})
}

func (s *Service) GetProvider(ctx context.Context, providerID uuid.UUID) (domain.Provider, error) {
	if providerID == uuid.Nil {
		return domain.Provider{}, validationError("provider_id is required")
	}
	return s.providers.GetProvider(ctx, providerID)
}

func (s *Service) GetWorkingHours(ctx context.Context, providerID uuid.UUID) (domain.WeeklyWorkingHours, error) {
	if providerID == uuid.Nil {
		return nil, validationError("provider_id is required")
	}
	return s.providers.WorkingHours(ctx, providerID)
}

func (s *Service) SetWorkingHours(ctx context.Context, providerID uuid.UUID, hours domain.WeeklyWorkingHours) error {
	if providerID == uuid.Nil {
		return validationError("provider_id is required")
	}
	if len(hours) == 0 {
		return validationError("working hours are required")
	}
	if err := hours.Validate(); err != nil {
		return validationError(err.Error())
	}
	return s.providers.SaveWorkingHours(ctx, providerID, hours)
}
