package registry

import (
	"context"
	"fmt"

	"github.com/2beens/bulletinboard/internal/telemetry/tracing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const CreateTableSQL = `
CREATE TABLE IF NOT EXISTS public.bulletin_page
(
    page_id    VARCHAR PRIMARY KEY,
    image_url  VARCHAR     NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

var _ Store = (*PostgresStore)(nil)

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		db: db,
	}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, CreateTableSQL); err != nil {
		return fmt.Errorf("create bulletin_page table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context) (_ Registry, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "registry.postgres.load")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := s.db.Query(ctx, `SELECT page_id, image_url FROM bulletin_page;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	raw := map[string]string{}
	for rows.Next() {
		var pageID, imageURL string
		if err := rows.Scan(&pageID, &imageURL); err != nil {
			return nil, fmt.Errorf("rows scan: %w", err)
		}
		raw[pageID] = imageURL
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return fromRaw(raw, "postgres:bulletin_page"), nil
}

// Save replaces the table content in a single transaction
func (s *PostgresStore) Save(ctx context.Context, reg Registry) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "registry.postgres.save")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM bulletin_page;`); err != nil {
			return fmt.Errorf("clear bulletin pages: %w", err)
		}
		for _, page := range Pages {
			url, ok := reg[page]
			if !ok {
				continue
			}
			if _, err := tx.Exec(
				ctx,
				`INSERT INTO bulletin_page (page_id, image_url, updated_at) VALUES ($1, $2, now());`,
				string(page), url,
			); err != nil {
				return fmt.Errorf("insert page %s: %w", page, err)
			}
		}
		return nil
	})
}
