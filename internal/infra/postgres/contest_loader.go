package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"contest-service/internal/domain"
)

// ContestLoader loads contest JSONB from Postgres. Contest content is
// owned by an external authoring flow; the engine only reads it.
type ContestLoader struct {
	pool *pgxpool.Pool
}

func NewContestLoader(pool *pgxpool.Pool) *ContestLoader {
	return &ContestLoader{pool: pool}
}

func (l *ContestLoader) LoadContest(ctx context.Context, contestID string) (domain.Contest, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM contests WHERE id=$1`, contestID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Contest{}, domain.ErrContestNotFound
	}
	if err != nil {
		return domain.Contest{}, fmt.Errorf("load contest: %w", err)
	}
	var contest domain.Contest
	if err := json.Unmarshal(raw, &contest); err != nil {
		return domain.Contest{}, fmt.Errorf("unmarshal contest: %w", err)
	}
	return contest, nil
}

func (l *ContestLoader) ListContests(ctx context.Context) ([]domain.Contest, error) {
	rows, err := l.pool.Query(ctx, `SELECT data FROM contests ORDER BY data->>'slug'`)
	if err != nil {
		return nil, fmt.Errorf("list contests: %w", err)
	}
	defer rows.Close()

	var contests []domain.Contest
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan contest: %w", err)
		}
		var contest domain.Contest
		if err := json.Unmarshal(raw, &contest); err != nil {
			return nil, fmt.Errorf("unmarshal contest: %w", err)
		}
		contests = append(contests, contest)
	}
	return contests, rows.Err()
}
