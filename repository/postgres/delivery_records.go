package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/omni/intent-gmp/db"
	"github.com/omni/intent-gmp/entity"
	"github.com/omni/intent-gmp/gmp"
)

type deliveryRecordsRepo basePostgresRepo

func NewDeliveryRecordsRepo(table string, db *db.DB) entity.DeliveryRecordsRepo {
	return (*deliveryRecordsRepo)(newBasePostgresRepo(table, db))
}

func (r *deliveryRecordsRepo) MarkDelivered(ctx context.Context, rec *entity.DeliveryRecord) (bool, error) {
	q, args, err := sq.Insert(r.table).
		Columns("chain_id", "intent_id", "msg_type", "src_chain_id").
		Values(rec.ChainID, rec.IntentID, rec.MsgType, rec.SrcChainID).
		Suffix("ON CONFLICT (chain_id, intent_id, msg_type) DO NOTHING").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("can't build query: %w", err)
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("can't insert delivery record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("can't get affected rows: %w", err)
	}
	return n > 0, nil
}

func (r *deliveryRecordsRepo) IsDelivered(ctx context.Context, chainID uint64, intentID gmp.IntentID, msgType uint8) (bool, error) {
	q, args, err := sq.Select("1").
		From(r.table).
		Where(sq.Eq{"chain_id": chainID, "intent_id": intentID, "msg_type": msgType}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("can't build query: %w", err)
	}
	var one int
	err = r.db.GetContext(ctx, &one, q, args...)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("can't get delivery record: %w", err)
	}
	return true, nil
}

func (r *deliveryRecordsRepo) GetByIntentID(ctx context.Context, intentID gmp.IntentID) ([]*entity.DeliveryRecord, error) {
	q, args, err := sq.Select("*").
		From(r.table).
		Where(sq.Eq{"intent_id": intentID}).
		OrderBy("msg_type ASC").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	var recs []*entity.DeliveryRecord
	err = r.db.SelectContext(ctx, &recs, q, args...)
	if err != nil {
		return nil, fmt.Errorf("can't select delivery records: %w", err)
	}
	return recs, nil
}
