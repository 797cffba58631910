package repository

import (
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/akulikov/statement-import/internal/models"
)

// amountEpsilon is the tolerance for duplicate amount matching. Statement
// amounts survive one float round-trip through the model, so exact equality
// is too strict.
const amountEpsilon = 0.01

type ExpenseRepository struct {
	db  *gorm.DB
	log zerolog.Logger
}

func NewExpenseRepository(db *gorm.DB, log zerolog.Logger) *ExpenseRepository {
	return &ExpenseRepository{db: db, log: log}
}

// FindDuplicate returns the owner's ledger row matching the given date with
// an amount within epsilon, or nil when no such row exists. The amount must
// be the ledger's positive magnitude, not the statement's signed value.
func (r *ExpenseRepository) FindDuplicate(userID string, date time.Time, amount float64) (*models.Expense, error) {
	var expense models.Expense
	err := r.db.
		Where("user_id = ? AND date = ? AND amount BETWEEN ? AND ?",
			userID, date, amount-amountEpsilon, amount+amountEpsilon).
		First(&expense).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &expense, nil
}

// InsertBatch persists expenses in batches with row-level fallback and
// returns the rows actually committed.
func (r *ExpenseRepository) InsertBatch(expenses []*models.Expense) ([]*models.Expense, error) {
	var committed []*models.Expense
	for start := 0; start < len(expenses); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(expenses) {
			end = len(expenses)
		}
		batch := expenses[start:end]

		if err := r.db.Create(batch).Error; err == nil {
			committed = append(committed, batch...)
			continue
		}

		for _, e := range batch {
			if rowErr := r.db.Create(e).Error; rowErr != nil {
				r.log.Warn().
					Err(rowErr).
					Str("user_id", e.UserID).
					Msg("Skipping expense row that failed individual insert")
				continue
			}
			committed = append(committed, e)
		}
	}
	return committed, nil
}
