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

type intentStatesRepo basePostgresRepo

func NewIntentStatesRepo(table string, db *db.DB) entity.IntentStatesRepo {
	return (*intentStatesRepo)(newBasePostgresRepo(table, db))
}

func (r *intentStatesRepo) Insert(ctx context.Context, state *entity.IntentGmpState) error {
	q, args, err := sq.Insert(r.table).
		Columns("intent_id", "dst_chain_id", "flow_type").
		Values(state.IntentID, state.DstChainID, state.FlowType).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return gmp.ErrIntentStateExists
		}
		return fmt.Errorf("can't insert intent state: %w", err)
	}
	return nil
}

func (r *intentStatesRepo) GetByIntentID(ctx context.Context, intentID gmp.IntentID) (*entity.IntentGmpState, error) {
	q, args, err := sq.Select("*").
		From(r.table).
		Where(sq.Eq{"intent_id": intentID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	state := new(entity.IntentGmpState)
	err = r.db.GetContext(ctx, state, q, args...)
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (r *intentStatesRepo) setFlag(ctx context.Context, intentID gmp.IntentID, flag string) (bool, error) {
	q, args, err := sq.Update(r.table).
		Set(flag, true).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"intent_id": intentID, flag: false}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("can't build query: %w", err)
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("can't update intent state %s: %w", flag, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("can't get affected rows: %w", err)
	}
	return n > 0, nil
}

func (r *intentStatesRepo) SetEscrowConfirmed(ctx context.Context, intentID gmp.IntentID) (bool, error) {
	return r.setFlag(ctx, intentID, "escrow_confirmed")
}

func (r *intentStatesRepo) SetFulfillmentProofReceived(ctx context.Context, intentID gmp.IntentID) (bool, error) {
	return r.setFlag(ctx, intentID, "fulfillment_proof_received")
}

func (r *intentStatesRepo) Delete(ctx context.Context, intentID gmp.IntentID) error {
	q, args, err := sq.Delete(r.table).
		Where(sq.Eq{"intent_id": intentID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("can't delete intent state: %w", err)
	}
	return nil
}
