package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/omni/intent-gmp/db"
	"github.com/omni/intent-gmp/entity"
)

type outboxRepo basePostgresRepo

func NewOutboxRepo(table string, db *db.DB) entity.OutboxRepo {
	return (*outboxRepo)(newBasePostgresRepo(table, db))
}

func (r *outboxRepo) Insert(ctx context.Context, entry *entity.OutboxEntry) error {
	// The nonce subquery and the unique (chain_id, nonce) index together give a
	// monotonically increasing per-ledger counter without a separate sequence row.
	q, args, err := sq.Insert(r.table).
		Columns("chain_id", "nonce", "dst_chain_id", "dst_endpoint", "sender", "payload").
		Values(
			entry.ChainID,
			sq.Expr(fmt.Sprintf("(SELECT COALESCE(MAX(nonce), 0) + 1 FROM %s WHERE chain_id = ?)", r.table), entry.ChainID),
			entry.DstChainID,
			entry.DstEndpoint,
			entry.Sender,
			entry.Payload,
		).
		Suffix("RETURNING nonce").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	err = r.db.GetContext(ctx, &entry.Nonce, q, args...)
	if err != nil {
		return fmt.Errorf("can't insert outbox entry: %w", err)
	}
	return nil
}

func (r *outboxRepo) ListFrom(ctx context.Context, chainID, fromNonce uint64, limit int) ([]*entity.OutboxEntry, error) {
	q, args, err := sq.Select("*").
		From(r.table).
		Where(sq.Eq{"chain_id": chainID}).
		Where(sq.GtOrEq{"nonce": fromNonce}).
		OrderBy("nonce ASC").
		Limit(uint64(limit)).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	var entries []*entity.OutboxEntry
	err = r.db.SelectContext(ctx, &entries, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't select outbox entries: %w", err)
	}
	return entries, nil
}
