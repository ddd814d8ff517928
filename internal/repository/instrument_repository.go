package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/borrowsmart/lending-api/internal/models"
)

// InstrumentRepository persists the instrument catalog.
type InstrumentRepository struct {
	db *sqlx.DB
}

// NewInstrumentRepository constructs the repository.
func NewInstrumentRepository(db *sqlx.DB) *InstrumentRepository {
	return &InstrumentRepository{db: db}
}

const instrumentColumns = "id, name, category, description, quantity, available_quantity, status, created_at, updated_at"

// List returns instruments matching the filter plus the total count.
func (r *InstrumentRepository) List(ctx context.Context, filter models.InstrumentFilter) ([]models.Instrument, int, error) {
	base := "FROM instruments WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)+1))
		args = append(args, filter.Category)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}
	if filter.OnlyBorrowable {
		conditions = append(conditions, "available_quantity > 0 AND status <> 'maintenance'")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"name":               true,
		"category":           true,
		"quantity":           true,
		"available_quantity": true,
		"created_at":         true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "category"
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s, name ASC LIMIT %d OFFSET %d", instrumentColumns, base, sortBy, order, size, offset)

	var instruments []models.Instrument
	if err := r.db.SelectContext(ctx, &instruments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list instruments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count instruments: %w", err)
	}

	return instruments, total, nil
}

// FindByID loads an instrument by identifier.
func (r *InstrumentRepository) FindByID(ctx context.Context, id string) (*models.Instrument, error) {
	query := fmt.Sprintf("SELECT %s FROM instruments WHERE id = $1", instrumentColumns)
	var instrument models.Instrument
	if err := r.db.GetContext(ctx, &instrument, query, id); err != nil {
		return nil, err
	}
	return &instrument, nil
}

// Create inserts a new instrument. Availability starts equal to the total
// quantity.
func (r *InstrumentRepository) Create(ctx context.Context, instrument *models.Instrument) error {
	if instrument.ID == "" {
		instrument.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if instrument.CreatedAt.IsZero() {
		instrument.CreatedAt = now
	}
	instrument.UpdatedAt = now
	instrument.AvailableQuantity = instrument.Quantity
	if instrument.Status == "" {
		instrument.Status = models.InstrumentAvailable
	}

	const query = `INSERT INTO instruments (id, name, category, description, quantity, available_quantity, status, created_at, updated_at)
	VALUES (:id, :name, :category, :description, :quantity, :available_quantity, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, instrument); err != nil {
		return fmt.Errorf("create instrument: %w", err)
	}
	return nil
}

// UpdateInstrumentParams groups the mutable catalog columns.
type UpdateInstrumentParams struct {
	ID          string
	Name        string
	Category    models.InstrumentCategory
	Description string
	Quantity    int
	Status      models.InstrumentStatus
}

// Update edits catalog attributes and re-derives availability by the quantity
// delta inside one transaction, so a concurrent borrow or return cannot
// produce a lost update. Returns ErrQuantityBelowLoans when the new total
// would drop availability below zero.
func (r *InstrumentRepository) Update(ctx context.Context, params UpdateInstrumentParams) (*models.Instrument, error) {
	var updated models.Instrument
	err := runSerializable(ctx, r.db, func(tx *sqlx.Tx) error {
		var current models.Instrument
		query := fmt.Sprintf("SELECT %s FROM instruments WHERE id = $1 FOR UPDATE", instrumentColumns)
		if err := tx.GetContext(ctx, &current, query, params.ID); err != nil {
			return err
		}

		newAvailable := current.AvailableQuantity + (params.Quantity - current.Quantity)
		if newAvailable < 0 {
			return ErrQuantityBelowLoans
		}

		updated = current
		updated.Name = params.Name
		updated.Category = params.Category
		updated.Description = params.Description
		updated.Quantity = params.Quantity
		updated.AvailableQuantity = newAvailable
		updated.Status = params.Status
		updated.UpdatedAt = time.Now().UTC()

		const update = `UPDATE instruments SET name = $1, category = $2, description = $3, quantity = $4, available_quantity = $5, status = $6, updated_at = $7 WHERE id = $8`
		if _, err := tx.ExecContext(ctx, update,
			updated.Name, updated.Category, updated.Description,
			updated.Quantity, updated.AvailableQuantity, updated.Status,
			updated.UpdatedAt, updated.ID,
		); err != nil {
			return fmt.Errorf("update instrument: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// SetStatus applies the administrative status flag directly.
func (r *InstrumentRepository) SetStatus(ctx context.Context, id string, status models.InstrumentStatus) error {
	const query = `UPDATE instruments SET status = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set instrument status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check status update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes an instrument unless open borrowing records reference it.
// The check and the delete share one transaction.
func (r *InstrumentRepository) Delete(ctx context.Context, id string) error {
	return runSerializable(ctx, r.db, func(tx *sqlx.Tx) error {
		var active int
		const countQuery = `SELECT COUNT(*) FROM borrowing_records WHERE instrument_id = $1 AND status = 'active'`
		if err := tx.GetContext(ctx, &active, countQuery, id); err != nil {
			return fmt.Errorf("count active loans: %w", err)
		}
		if active > 0 {
			return ErrActiveLoansExist
		}

		result, err := tx.ExecContext(ctx, `DELETE FROM instruments WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete instrument: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("check delete rows: %w", err)
		}
		if rows == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}
