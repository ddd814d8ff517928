package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/borrowsmart/lending-api/internal/models"
	"github.com/borrowsmart/lending-api/internal/repository"
	appErrors "github.com/borrowsmart/lending-api/pkg/errors"
)

type instrumentStore interface {
	List(ctx context.Context, filter models.InstrumentFilter) ([]models.Instrument, int, error)
	FindByID(ctx context.Context, id string) (*models.Instrument, error)
	Create(ctx context.Context, instrument *models.Instrument) error
	Update(ctx context.Context, params repository.UpdateInstrumentParams) (*models.Instrument, error)
	SetStatus(ctx context.Context, id string, status models.InstrumentStatus) error
	Delete(ctx context.Context, id string) error
}

// CreateInstrumentRequest describes payload for registering an instrument.
type CreateInstrumentRequest struct {
	Name        string                    `json:"name" validate:"required,min=2,max=100"`
	Category    models.InstrumentCategory `json:"category" validate:"required"`
	Description string                    `json:"description"`
	Quantity    int                       `json:"quantity" validate:"required,min=1"`
}

// UpdateInstrumentRequest describes payload for editing an instrument.
// Quantity changes re-derive availability by the same delta, so units
// currently on loan are never forgotten.
type UpdateInstrumentRequest struct {
	Name        string                    `json:"name" validate:"required,min=2,max=100"`
	Category    models.InstrumentCategory `json:"category" validate:"required"`
	Description string                    `json:"description"`
	Quantity    int                       `json:"quantity" validate:"required,min=1"`
	Status      models.InstrumentStatus   `json:"status" validate:"required"`
}

// CatalogService manages the instrument inventory.
type CatalogService struct {
	instruments instrumentStore
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(instruments instrumentStore, validate *validator.Validate, logger *zap.Logger) *CatalogService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{instruments: instruments, validator: validate, logger: logger}
}

// List returns instruments matching the filter with total count for paging.
func (s *CatalogService) List(ctx context.Context, filter models.InstrumentFilter) ([]models.Instrument, int, error) {
	if filter.Category != "" && !models.ValidCategory(filter.Category) {
		return nil, 0, appErrors.Clone(appErrors.ErrValidation, "unknown instrument category")
	}
	instruments, total, err := s.instruments.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list instruments")
	}
	return instruments, total, nil
}

// Get returns one instrument by id.
func (s *CatalogService) Get(ctx context.Context, id string) (*models.Instrument, error) {
	instrument, err := s.instruments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "instrument not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load instrument")
	}
	return instrument, nil
}

// Create registers a new instrument. All units start available.
func (s *CatalogService) Create(ctx context.Context, req CreateInstrumentRequest) (*models.Instrument, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid instrument payload")
	}
	if !models.ValidCategory(req.Category) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown instrument category")
	}

	instrument := &models.Instrument{
		Name:        req.Name,
		Category:    req.Category,
		Description: req.Description,
		Quantity:    req.Quantity,
	}
	if err := s.instruments.Create(ctx, instrument); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create instrument")
	}

	s.logger.Info("instrument created",
		zap.String("instrument_id", instrument.ID),
		zap.String("name", instrument.Name),
		zap.Int("quantity", instrument.Quantity),
	)
	return instrument, nil
}

// Update edits an instrument. A quantity change shifts availability by the
// same delta; shrinking the pool below the number of units on loan is
// rejected with InvalidQuantity.
func (s *CatalogService) Update(ctx context.Context, id string, req UpdateInstrumentRequest) (*models.Instrument, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid instrument payload")
	}
	if !models.ValidCategory(req.Category) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown instrument category")
	}
	if !models.ValidInstrumentStatus(req.Status) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown instrument status")
	}

	instrument, err := s.instruments.Update(ctx, repository.UpdateInstrumentParams{
		ID:          id,
		Name:        req.Name,
		Category:    req.Category,
		Description: req.Description,
		Quantity:    req.Quantity,
		Status:      req.Status,
	})
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "instrument not found")
		case errors.Is(err, repository.ErrQuantityBelowLoans):
			return nil, appErrors.ErrInvalidQuantity
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update instrument")
		}
	}

	s.logger.Info("instrument updated",
		zap.String("instrument_id", instrument.ID),
		zap.Int("quantity", instrument.Quantity),
		zap.Int("available_quantity", instrument.AvailableQuantity),
	)
	return instrument, nil
}

// SetStatus flips the administrative status flag. The flag is independent of
// the availability counters.
func (s *CatalogService) SetStatus(ctx context.Context, id string, status models.InstrumentStatus) error {
	if !models.ValidInstrumentStatus(status) {
		return appErrors.Clone(appErrors.ErrValidation, "unknown instrument status")
	}
	if err := s.instruments.SetStatus(ctx, id, status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "instrument not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update instrument status")
	}
	s.logger.Info("instrument status changed", zap.String("instrument_id", id), zap.String("status", string(status)))
	return nil
}

// Delete removes an instrument. Blocked while any loan of it is open, so the
// ledger never references a missing instrument.
func (s *CatalogService) Delete(ctx context.Context, id string) error {
	if err := s.instruments.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return appErrors.Clone(appErrors.ErrNotFound, "instrument not found")
		case errors.Is(err, repository.ErrActiveLoansExist):
			return appErrors.ErrHasActiveLoans
		default:
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete instrument")
		}
	}
	s.logger.Info("instrument deleted", zap.String("instrument_id", id))
	return nil
}
