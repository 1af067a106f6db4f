package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Store is the relational store as the services see it: every query plus a
// way to run several of them atomically.
type Store interface {
	Querier
	ExecTx(ctx context.Context, fq func(q Querier) error) error
}

type SQLStore struct {
	*Queries
	DB *sql.DB
}

func NewStore(db *sql.DB) *SQLStore {
	return &SQLStore{
		DB:      db,
		Queries: New(db),
	}
}

func (s *SQLStore) ExecTx(ctx context.Context, fq func(q Querier) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	q := New(tx)
	err = fq(q)

	if err != nil {
		if txErr := tx.Rollback(); txErr != nil {
			return fmt.Errorf("tx err: %v, encountered rollback error: %v", err, txErr)
		}
		return err
	}

	return tx.Commit()
}
