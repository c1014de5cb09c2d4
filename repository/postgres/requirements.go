package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/omni/intent-gmp/db"
	"github.com/omni/intent-gmp/entity"
	"github.com/omni/intent-gmp/gmp"
)

type requirementsRepo basePostgresRepo

func NewRequirementsRepo(table string, db *db.DB) entity.RequirementsRepo {
	return (*requirementsRepo)(newBasePostgresRepo(table, db))
}

func (r *requirementsRepo) Ensure(ctx context.Context, req *entity.Requirements) (bool, error) {
	q, args, err := sq.Insert(r.table).
		Columns("chain_id", "intent_id", "requester_addr", "amount_required", "token_addr", "solver_addr", "expiry").
		Values(req.ChainID, req.IntentID, req.RequesterAddr, req.AmountRequired, req.TokenAddr, req.SolverAddr, req.Expiry).
		Suffix("ON CONFLICT (chain_id, intent_id) DO NOTHING").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("can't build query: %w", err)
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("can't insert requirements: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("can't get affected rows: %w", err)
	}
	return n > 0, nil
}

func (r *requirementsRepo) GetByIntentID(ctx context.Context, chainID uint64, intentID gmp.IntentID) (*entity.Requirements, error) {
	q, args, err := sq.Select("*").
		From(r.table).
		Where(sq.Eq{"chain_id": chainID, "intent_id": intentID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	req := new(entity.Requirements)
	err = r.db.GetContext(ctx, req, q, args...)
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *requirementsRepo) markFlag(ctx context.Context, chainID uint64, intentID gmp.IntentID, flag string) (bool, error) {
	q, args, err := sq.Update(r.table).
		Set(flag, true).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"chain_id": chainID, "intent_id": intentID, flag: false}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("can't build query: %w", err)
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("can't update requirements %s: %w", flag, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("can't get affected rows: %w", err)
	}
	return n > 0, nil
}

func (r *requirementsRepo) unmarkFlag(ctx context.Context, chainID uint64, intentID gmp.IntentID, flag string) error {
	q, args, err := sq.Update(r.table).
		Set(flag, false).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"chain_id": chainID, "intent_id": intentID, flag: true}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("can't revert requirements %s: %w", flag, err)
	}
	return nil
}

func (r *requirementsRepo) MarkEscrowCreated(ctx context.Context, chainID uint64, intentID gmp.IntentID) (bool, error) {
	return r.markFlag(ctx, chainID, intentID, "escrow_created")
}

func (r *requirementsRepo) UnmarkEscrowCreated(ctx context.Context, chainID uint64, intentID gmp.IntentID) error {
	return r.unmarkFlag(ctx, chainID, intentID, "escrow_created")
}

func (r *requirementsRepo) MarkFulfilled(ctx context.Context, chainID uint64, intentID gmp.IntentID) (bool, error) {
	return r.markFlag(ctx, chainID, intentID, "fulfilled")
}

func (r *requirementsRepo) UnmarkFulfilled(ctx context.Context, chainID uint64, intentID gmp.IntentID) error {
	return r.unmarkFlag(ctx, chainID, intentID, "fulfilled")
}
