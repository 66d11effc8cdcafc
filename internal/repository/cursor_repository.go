package repository

import (
	"errors"

	"chatserver/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrDuplicate is returned when a write would violate a uniqueness rule.
var ErrDuplicate = errors.New("record already exists")

type CursorRepository interface {
	Ensure() error
	GetState() (*entity.CursorState, error)
	LastCursor() (uint64, error)
}

type SQLiteCursorRepository struct {
	db *gorm.DB
}

func NewSQLiteCursorRepository(db *gorm.DB) CursorRepository {
	return &SQLiteCursorRepository{db}
}

// Ensure creates the singleton cursor row if the store is fresh.
func (g *SQLiteCursorRepository) Ensure() error {
	return g.db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&entity.CursorState{ID: 1, LastCursor: 0}).Error
}

func (g *SQLiteCursorRepository) GetState() (*entity.CursorState, error) {
	var state *entity.CursorState
	err := g.db.First(&state, 1).Error
	return state, err
}

func (g *SQLiteCursorRepository) LastCursor() (uint64, error) {
	state, err := g.GetState()
	if err != nil {
		return 0, err
	}
	return state.LastCursor, nil
}

// nextCursor bumps the cursor row and returns the new value. The in-place
// increment takes the row's write lock for the rest of the enclosing
// transaction, so no two commits ever carry the same cursor. Must run inside
// the transaction that also writes the message.
func nextCursor(tx *gorm.DB) (uint64, error) {
	res := tx.Model(&entity.CursorState{}).
		Where("id = ?", 1).
		Update("last_cursor", gorm.Expr("last_cursor + 1"))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}

	var state entity.CursorState
	if err := tx.First(&state, 1).Error; err != nil {
		return 0, err
	}
	return state.LastCursor, nil
}
