package repository

import (
	"github.com/omni/intent-gmp/db"
	"github.com/omni/intent-gmp/entity"
	"github.com/omni/intent-gmp/repository/postgres"
)

type Repo struct {
	Outbox          entity.OutboxRepo
	DeliveryRecords entity.DeliveryRecordsRepo
	Requirements    entity.RequirementsRepo
	Escrows         entity.EscrowsRepo
	IntentStates    entity.IntentStatesRepo
	RelayCursors    entity.RelayCursorsRepo
}

func NewRepo(db *db.DB) *Repo {
	return &Repo{
		Outbox:          postgres.NewOutboxRepo("outbox_entries", db),
		DeliveryRecords: postgres.NewDeliveryRecordsRepo("delivery_records", db),
		Requirements:    postgres.NewRequirementsRepo("requirements", db),
		Escrows:         postgres.NewEscrowsRepo("escrows", db),
		IntentStates:    postgres.NewIntentStatesRepo("intent_states", db),
		RelayCursors:    postgres.NewRelayCursorsRepo("relay_cursors", db),
	}
}
