// Package db is the pgvector-backed alternative to the in-memory flat
// store, for deployments that already run Postgres. It relaxes two of the
// flat store's contracts: ranking order comes from pgvector's `<->`
// operator (plain L2, no insertion-order tie-break) and persistence is
// row durability instead of companion files.
//
// Replacement builds go through a staging table: NewStaging gives a
// store writing to a side table, and Persist swaps it in atomically.
// Readers see the old corpus until the swap and the new one after; a
// failed build leaves the live table untouched.
package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"

	"document-chat/internal/config"
	"document-chat/internal/models"
)

type Document struct {
	bun.BaseModel `bun:"table:documents,alias:d"`
	ID            int64     `bun:"id,pk,autoincrement"`
	Content       string    `bun:"content,notnull"`
	Source        string    `bun:"source,notnull"`
	SequenceIndex int       `bun:"sequence_index,notnull"`
	Embedding     []float32 `bun:"embedding,notnull,type:vector(768)"`
}

// Connect opens a bun handle over the pgdriver connector.
func Connect(cfg *config.DatabaseConfig) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(cfg.DSN+"?sslmode=disable"),
		pgdriver.WithPassword(cfg.Password),
	))
	db := bun.NewDB(sqldb, pgdialect.New())
	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db
}

const (
	liveTable    = "documents"
	stagingTable = "documents_staging"
)

func Init(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().Model((*Document)(nil)).IfNotExists().Exec(ctx)
	return err
}

// Store adapts one documents table to the pipeline's store interface.
type Store struct {
	db        *bun.DB
	dimension int
	table     string
}

func NewStore(db *bun.DB, dimension int) *Store {
	return &Store{db: db, dimension: dimension, table: liveTable}
}

// NewStaging creates an empty side table and returns a store writing to
// it. The live table stays untouched until Persist promotes the staged
// build; leftovers from an earlier failed build are dropped first.
func (s *Store) NewStaging(ctx context.Context) (*Store, error) {
	if _, err := s.db.NewDropTable().
		Model((*Document)(nil)).
		ModelTableExpr("?", bun.Ident(stagingTable)).
		IfExists().
		Exec(ctx); err != nil {
		return nil, err
	}
	if _, err := s.db.NewCreateTable().
		Model((*Document)(nil)).
		ModelTableExpr("?", bun.Ident(stagingTable)).
		Exec(ctx); err != nil {
		return nil, err
	}
	return &Store{db: s.db, dimension: s.dimension, table: stagingTable}, nil
}

// promote swaps the staged table in for the live one in a single
// transaction, then rebinds this store to the live table.
func (s *Store) promote(ctx context.Context) error {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDropTable().
			Model((*Document)(nil)).
			ModelTableExpr("?", bun.Ident(liveTable)).
			IfExists().
			Exec(ctx); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "ALTER TABLE ? RENAME TO ?",
			bun.Ident(stagingTable), bun.Ident(liveTable))
		return err
	})
	if err != nil {
		return fmt.Errorf("db: promote staged table: %w", err)
	}
	s.table = liveTable
	return nil
}

func (s *Store) Add(ctx context.Context, vectors [][]float32, meta []models.ChunkMeta) error {
	if len(vectors) != len(meta) {
		return fmt.Errorf("db: %d vectors but %d metadata records", len(vectors), len(meta))
	}
	if len(vectors) == 0 {
		return nil
	}
	docs := make([]Document, len(vectors))
	for i := range vectors {
		docs[i] = Document{
			Content:       meta[i].Text,
			Source:        meta[i].Source,
			SequenceIndex: meta[i].SequenceIndex,
			Embedding:     vectors[i],
		}
	}
	_, err := s.db.NewInsert().
		Model(&docs).
		ModelTableExpr("?", bun.Ident(s.table)).
		Exec(ctx)
	return err
}

func (s *Store) Search(ctx context.Context, query []float32, k int) ([]models.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	var rows []struct {
		Document
		Distance float32 `bun:"distance"`
	}
	err := s.db.NewSelect().
		Model((*Document)(nil)).
		ModelTableExpr("? AS d", bun.Ident(s.table)).
		ColumnExpr("d.*").
		ColumnExpr("d.embedding <-> ? AS distance", query).
		OrderExpr("d.embedding <-> ?", query).
		Limit(k).
		Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}

	results := make([]models.SearchResult, len(rows))
	for i, row := range rows {
		results[i] = models.SearchResult{
			Meta: models.ChunkMeta{
				Text:          row.Content,
				Source:        row.Source,
				SequenceIndex: row.SequenceIndex,
			},
			Distance: row.Distance,
			Position: i,
		}
	}
	return results, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	return s.db.NewSelect().
		Model((*Document)(nil)).
		ModelTableExpr("? AS d", bun.Ident(s.table)).
		Count(ctx)
}

func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.NewDelete().
		Model((*Document)(nil)).
		ModelTableExpr("?", bun.Ident(s.table)).
		Where("1 = 1").
		Exec(ctx)
	return err
}

// Persist promotes a staged build; on the live table rows are already
// durable and there is nothing to do.
func (s *Store) Persist(ctx context.Context) error {
	if s.table == stagingTable {
		return s.promote(ctx)
	}
	return nil
}

func (s *Store) Stats(ctx context.Context) (models.StoreStats, error) {
	count, err := s.Count(ctx)
	if err != nil {
		return models.StoreStats{}, err
	}
	var sources []string
	err = s.db.NewSelect().
		Model((*Document)(nil)).
		ModelTableExpr("? AS d", bun.Ident(s.table)).
		ColumnExpr("DISTINCT source").
		OrderExpr("source").
		Scan(ctx, &sources)
	if err != nil {
		return models.StoreStats{}, err
	}
	return models.StoreStats{
		TotalVectors: count,
		Dimension:    s.dimension,
		TotalChunks:  count,
		Sources:      sources,
	}, nil
}
