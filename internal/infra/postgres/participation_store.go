package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"contest-service/internal/app"
	"contest-service/internal/domain"
)

type participationRow struct {
	bun.BaseModel `bun:"table:participations,alias:p"`

	ID           string          `bun:"id,pk"`
	ContestID    string          `bun:"contest_id,notnull"`
	UserID       string          `bun:"user_id,notnull"`
	Status       string          `bun:"status,notnull"`
	StartedAt    time.Time       `bun:"started_at,notnull"`
	SubmittedAt  *time.Time      `bun:"submitted_at"`
	Score        int             `bun:"score,notnull"`
	TotalPoints  int             `bun:"total_points,notnull"`
	Responses    json.RawMessage `bun:"responses,type:jsonb"`
	PrizeAwarded bool            `bun:"prize_awarded,notnull"`
	CreatedAt    time.Time       `bun:"created_at,notnull"`
}

// ParticipationStore is the Postgres implementation of
// app.ParticipationRepository. WithContestLock opens a transaction holding
// a per-contest advisory lock; repository calls made inside the callback
// run on that transaction.
type ParticipationStore struct {
	db *bun.DB
}

func NewParticipationStore(db *bun.DB) *ParticipationStore {
	return &ParticipationStore{db: db}
}

type txKey struct{}

func (s *ParticipationStore) conn(ctx context.Context) bun.IDB {
	if tx, ok := ctx.Value(txKey{}).(bun.Tx); ok {
		return tx
	}
	return s.db
}

// WithContestLock serializes fn against every other locked section for the
// same contest, across all instances sharing the database.
func (s *ParticipationStore) WithContestLock(ctx context.Context, contestID string, fn func(ctx context.Context) error) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext(?))`, contestID); err != nil {
			return fmt.Errorf("acquire contest lock: %w", err)
		}
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func (s *ParticipationStore) Create(ctx context.Context, p domain.Participation) error {
	row, err := toRow(p)
	if err != nil {
		return err
	}
	if _, err := s.conn(ctx).NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("insert participation: %w", err)
	}
	return nil
}

func (s *ParticipationStore) Update(ctx context.Context, p domain.Participation) error {
	row, err := toRow(p)
	if err != nil {
		return err
	}
	res, err := s.conn(ctx).NewUpdate().Model(&row).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("update participation: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return domain.ErrParticipationNotFound
	}
	return nil
}

func (s *ParticipationStore) FindByUserAndContest(ctx context.Context, userID, contestID string) (domain.Participation, error) {
	var row participationRow
	err := s.conn(ctx).NewSelect().Model(&row).
		Where("user_id = ?", userID).
		Where("contest_id = ?", contestID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Participation{}, domain.ErrParticipationNotFound
	}
	if err != nil {
		return domain.Participation{}, fmt.Errorf("find participation: %w", err)
	}
	return fromRow(row)
}

func (s *ParticipationStore) CountByContest(ctx context.Context, contestID string) (int, error) {
	count, err := s.conn(ctx).NewSelect().Model((*participationRow)(nil)).
		Where("contest_id = ?", contestID).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count participations: %w", err)
	}
	return count, nil
}

func (s *ParticipationStore) ListByContest(ctx context.Context, contestID string, status domain.ParticipationStatus) ([]domain.Participation, error) {
	var rows []participationRow
	query := s.conn(ctx).NewSelect().Model(&rows).
		Where("contest_id = ?", contestID)
	if status != "" {
		query = query.Where("status = ?", string(status))
	}
	if err := query.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list participations: %w", err)
	}
	return fromRows(rows)
}

func (s *ParticipationStore) ListByUser(ctx context.Context, userID string, filter app.UserParticipationFilter) ([]domain.Participation, error) {
	var rows []participationRow
	query := s.conn(ctx).NewSelect().Model(&rows).
		Where("user_id = ?", userID)
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.PrizeAwarded {
		query = query.Where("prize_awarded = TRUE")
	}
	if err := query.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list user participations: %w", err)
	}
	return fromRows(rows)
}

func toRow(p domain.Participation) (participationRow, error) {
	var responses json.RawMessage
	if p.Responses != nil {
		data, err := json.Marshal(p.Responses)
		if err != nil {
			return participationRow{}, fmt.Errorf("marshal responses: %w", err)
		}
		responses = data
	}
	return participationRow{
		ID:           p.ID,
		ContestID:    p.ContestID,
		UserID:       p.UserID,
		Status:       string(p.Status),
		StartedAt:    p.StartedAt,
		SubmittedAt:  p.SubmittedAt,
		Score:        p.Score,
		TotalPoints:  p.TotalPoints,
		Responses:    responses,
		PrizeAwarded: p.PrizeAwarded,
		CreatedAt:    p.CreatedAt,
	}, nil
}

func fromRow(row participationRow) (domain.Participation, error) {
	var responses []domain.Response
	if len(row.Responses) > 0 {
		if err := json.Unmarshal(row.Responses, &responses); err != nil {
			return domain.Participation{}, fmt.Errorf("unmarshal responses: %w", err)
		}
	}
	return domain.Participation{
		ID:           row.ID,
		ContestID:    row.ContestID,
		UserID:       row.UserID,
		Status:       domain.ParticipationStatus(row.Status),
		StartedAt:    row.StartedAt,
		SubmittedAt:  row.SubmittedAt,
		Score:        row.Score,
		TotalPoints:  row.TotalPoints,
		Responses:    responses,
		PrizeAwarded: row.PrizeAwarded,
		CreatedAt:    row.CreatedAt,
	}, nil
}

func fromRows(rows []participationRow) ([]domain.Participation, error) {
	out := make([]domain.Participation, 0, len(rows))
	for _, row := range rows {
		p, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
