package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mdhs/ehr/internal/platform/db"
)

type owner struct {
	table  string
	column string
}

// owners maps a scope to the table holding its display ids. The first counter
// row of a year is seeded from the highest suffix already stored there.
var owners = map[Scope]owner{
	ScopePatient: {table: "patient", column: "patient_id"},
	ScopeUser:    {table: "users", column: "user_id"},
}

// PGGenerator keeps one counter row per (scope, year) in display_id_counter.
// The upsert takes a row lock that is held until the caller's transaction
// ends, so concurrent allocations for the same scope are serialized.
type PGGenerator struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPGGenerator(pool *pgxpool.Pool, now func() time.Time) *PGGenerator {
	if now == nil {
		now = time.Now
	}
	return &PGGenerator{pool: pool, now: now}
}

func (g *PGGenerator) Next(ctx context.Context, scope Scope) (string, error) {
	o, ok := owners[scope]
	if !ok {
		return "", fmt.Errorf("unknown sequence scope %q", scope)
	}
	year := g.now().Year()
	pattern := fmt.Sprintf("%s-%d-", scope.Prefix(), year)

	query := fmt.Sprintf(`
		INSERT INTO display_id_counter (scope, year, last_value)
		VALUES ($1::text, $2::int, COALESCE((
			SELECT MAX(CAST(substr(%[2]s, length($3::text) + 1) AS INTEGER))
			FROM %[1]s
			WHERE %[2]s LIKE $3::text || '%%' AND substr(%[2]s, length($3::text) + 1) ~ '^[0-9]+$'
		), 0) + 1)
		ON CONFLICT (scope, year)
		DO UPDATE SET last_value = display_id_counter.last_value + 1
		RETURNING last_value`, o.table, o.column)

	var n int
	if err := db.Conn(ctx, g.pool).QueryRow(ctx, query, string(scope), year, pattern).Scan(&n); err != nil {
		return "", fmt.Errorf("increment %s counter: %w", scope, err)
	}
	return Format(scope, year, n), nil
}
