package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/steamrent/rental-server-go/internal/database"
	"github.com/steamrent/rental-server-go/internal/model"
)

// OperatorRepository stores the operators allowed to call the admin API.
// Tokens are stored hashed; lookups go by hash.
type OperatorRepository interface {
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.Operator, error)
	Create(ctx context.Context, name, tokenHash string) (*model.Operator, error)
	Count(ctx context.Context) (int, error)
}

type operatorRepo struct {
	db *database.DB
}

func NewOperatorRepository(db *database.DB) OperatorRepository {
	return &operatorRepo{db: db}
}

func (r *operatorRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.Operator, error) {
	var operator model.Operator
	err := r.db.GetContext(ctx, &operator, `
		SELECT * FROM operators WHERE token_hash = $1
	`, tokenHash)
	return HandleNotFound(&operator, err)
}

func (r *operatorRepo) Create(ctx context.Context, name, tokenHash string) (*model.Operator, error) {
	var operator model.Operator
	err := r.db.GetContext(ctx, &operator, `
		INSERT INTO operators (id, name, token_hash)
		VALUES ($1, $2, $3)
		RETURNING *
	`, uuid.NewString(), name, tokenHash)
	if err != nil {
		return nil, err
	}
	return &operator, nil
}

func (r *operatorRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM operators`)
	return count, err
}
