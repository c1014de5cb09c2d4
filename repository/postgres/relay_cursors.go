package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/omni/intent-gmp/db"
	"github.com/omni/intent-gmp/entity"
)

type relayCursorsRepo basePostgresRepo

func NewRelayCursorsRepo(table string, db *db.DB) entity.RelayCursorsRepo {
	return (*relayCursorsRepo)(newBasePostgresRepo(table, db))
}

func (r *relayCursorsRepo) Ensure(ctx context.Context, cursor *entity.RelayCursor) error {
	q, args, err := sq.Insert(r.table).
		Columns("chain_id", "last_nonce", "last_block").
		Values(cursor.ChainID, cursor.LastNonce, cursor.LastBlock).
		Suffix("ON CONFLICT (chain_id) DO UPDATE SET updated_at = NOW(), last_nonce = EXCLUDED.last_nonce, last_block = EXCLUDED.last_block").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	_, err = r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("can't insert relay cursor: %w", err)
	}
	return nil
}

func (r *relayCursorsRepo) GetByChainID(ctx context.Context, chainID uint64) (*entity.RelayCursor, error) {
	q, args, err := sq.Select("*").
		From(r.table).
		Where(sq.Eq{"chain_id": chainID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	cursor := new(entity.RelayCursor)
	err = r.db.GetContext(ctx, cursor, q, args...)
	if err != nil {
		return nil, err
	}
	return cursor, nil
}
