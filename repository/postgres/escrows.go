package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"

	"github.com/omni/intent-gmp/db"
	"github.com/omni/intent-gmp/entity"
	"github.com/omni/intent-gmp/gmp"
)

type escrowsRepo basePostgresRepo

func NewEscrowsRepo(table string, db *db.DB) entity.EscrowsRepo {
	return (*escrowsRepo)(newBasePostgresRepo(table, db))
}

func (r *escrowsRepo) Insert(ctx context.Context, escrow *entity.Escrow) error {
	q, args, err := sq.Insert(r.table).
		Columns("chain_id", "intent_id", "escrow_id", "creator_addr", "amount", "token_addr", "solver_addr").
		Values(escrow.ChainID, escrow.IntentID, escrow.EscrowID, escrow.CreatorAddr, escrow.Amount, escrow.TokenAddr, escrow.SolverAddr).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return gmp.ErrEscrowAlreadyCreated
		}
		return fmt.Errorf("can't insert escrow: %w", err)
	}
	return nil
}

func (r *escrowsRepo) GetByIntentID(ctx context.Context, chainID uint64, intentID gmp.IntentID) (*entity.Escrow, error) {
	q, args, err := sq.Select("*").
		From(r.table).
		Where(sq.Eq{"chain_id": chainID, "intent_id": intentID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	escrow := new(entity.Escrow)
	err = r.db.GetContext(ctx, escrow, q, args...)
	if err != nil {
		return nil, err
	}
	return escrow, nil
}

func (r *escrowsRepo) MarkFulfilled(ctx context.Context, chainID uint64, intentID gmp.IntentID) (bool, error) {
	q, args, err := sq.Update(r.table).
		Set("fulfilled", true).
		Set("released", true).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"chain_id": chainID, "intent_id": intentID, "fulfilled": false, "released": false}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("can't build query: %w", err)
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("can't mark escrow fulfilled: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("can't get affected rows: %w", err)
	}
	return n > 0, nil
}

func (r *escrowsRepo) UnmarkCancelled(ctx context.Context, chainID uint64, intentID gmp.IntentID) error {
	q, args, err := sq.Update(r.table).
		Set("released", false).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"chain_id": chainID, "intent_id": intentID, "released": true, "fulfilled": false}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("can't revert escrow cancelled: %w", err)
	}
	return nil
}

func (r *escrowsRepo) UnmarkFulfilled(ctx context.Context, chainID uint64, intentID gmp.IntentID) error {
	q, args, err := sq.Update(r.table).
		Set("fulfilled", false).
		Set("released", false).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"chain_id": chainID, "intent_id": intentID, "fulfilled": true, "released": true}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("can't revert escrow fulfilled: %w", err)
	}
	return nil
}

func (r *escrowsRepo) MarkCancelled(ctx context.Context, chainID uint64, intentID gmp.IntentID) (bool, error) {
	q, args, err := sq.Update(r.table).
		Set("released", true).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"chain_id": chainID, "intent_id": intentID, "released": false}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("can't build query: %w", err)
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("can't mark escrow cancelled: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("can't get affected rows: %w", err)
	}
	return n > 0, nil
}
