// Package history stores a signed-in user's past estimates and daily goals.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jdiaz1993/quickcalories/app/models"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// MaxList caps a single history page.
const MaxList = 50

var (
	ErrNotFound  = errors.New("history: estimate not found")
	ErrInvalidID = errors.New("history: invalid estimate id")
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

var estimateColumns = []string{
	"id", "meal", "portion", "details", "calories", "protein_g", "carbs_g", "fat_g",
	"confidence", "notes", "source", "created_at",
}

// Filter narrows List. Zero times are open bounds; From is inclusive, To exclusive.
type Filter struct {
	From  time.Time
	To    time.Time
	Limit int
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert saves rec and returns it with the generated id and timestamp.
func (s *Store) Insert(ctx context.Context, rec models.EstimateRecord) (models.EstimateRecord, error) {
	if rec.Source == "" {
		rec.Source = models.SourceText
	}
	query, args, err := psql.
		Insert("estimates").
		Columns("user_id", "meal", "portion", "details", "calories", "protein_g", "carbs_g", "fat_g",
			"confidence", "notes", "source").
		Values(rec.UserID, rec.Meal, rec.Portion, rec.Details, rec.Calories, rec.ProteinG, rec.CarbsG, rec.FatG,
			nullIfEmpty(string(rec.Confidence)), nullIfEmpty(rec.Notes), rec.Source).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return models.EstimateRecord{}, err
	}
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&rec.ID, &rec.CreatedAt); err != nil {
		return models.EstimateRecord{}, fmt.Errorf("history: insert: %w", err)
	}
	return rec, nil
}

// List returns the user's estimates newest first.
func (s *Store) List(ctx context.Context, userID string, f Filter) ([]models.EstimateRecord, error) {
	limit := f.Limit
	if limit <= 0 || limit > MaxList {
		limit = MaxList
	}
	q := psql.
		Select(estimateColumns...).
		From("estimates").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at DESC").
		Limit(uint64(limit))
	if !f.From.IsZero() {
		q = q.Where(squirrel.GtOrEq{"created_at": f.From})
	}
	if !f.To.IsZero() {
		q = q.Where(squirrel.Lt{"created_at": f.To})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	out := make([]models.EstimateRecord, 0)
	for rows.Next() {
		var (
			rec               models.EstimateRecord
			details           sql.NullString
			confidence, notes sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Meal, &rec.Portion, &details, &rec.Calories, &rec.ProteinG,
			&rec.CarbsG, &rec.FatG, &confidence, &notes, &rec.Source, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		if details.Valid {
			d := details.String
			rec.Details = &d
		}
		rec.UserID = userID
		rec.Confidence = models.Confidence(confidence.String)
		rec.Notes = notes.String
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Delete removes one estimate owned by userID.
func (s *Store) Delete(ctx context.Context, userID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrInvalidID
	}
	query, args, err := psql.
		Delete("estimates").
		Where(squirrel.Eq{"id": id, "user_id": userID}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("history: delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAll clears the user's history and returns how many rows went.
func (s *Store) DeleteAll(ctx context.Context, userID string) (int64, error) {
	query, args, err := psql.
		Delete("estimates").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("history: delete all: %w", err)
	}
	return res.RowsAffected()
}

// DayTotals sums the user's macros in [from, to).
func (s *Store) DayTotals(ctx context.Context, userID string, from, to time.Time) (models.Macros, int, error) {
	query, args, err := psql.
		Select("COALESCE(SUM(calories),0)", "COALESCE(SUM(protein_g),0)", "COALESCE(SUM(carbs_g),0)",
			"COALESCE(SUM(fat_g),0)", "COUNT(*)").
		From("estimates").
		Where(squirrel.Eq{"user_id": userID}).
		Where(squirrel.GtOrEq{"created_at": from}).
		Where(squirrel.Lt{"created_at": to}).
		ToSql()
	if err != nil {
		return models.Macros{}, 0, err
	}
	var (
		m     models.Macros
		count int
	)
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&m.Calories, &m.ProteinG, &m.CarbsG, &m.FatG, &count); err != nil {
		return models.Macros{}, 0, fmt.Errorf("history: totals: %w", err)
	}
	return m, count, nil
}

func (s *Store) GetGoal(ctx context.Context, userID string) (models.Goal, bool, error) {
	query, args, err := psql.
		Select("calories", "protein_g", "carbs_g", "fat_g", "updated_at").
		From("goals").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return models.Goal{}, false, err
	}
	g := models.Goal{UserID: userID}
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&g.Calories, &g.ProteinG, &g.CarbsG, &g.FatG, &g.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Goal{}, false, nil
	}
	if err != nil {
		return models.Goal{}, false, fmt.Errorf("history: goal: %w", err)
	}
	return g, true, nil
}

func (s *Store) PutGoal(ctx context.Context, g models.Goal) (models.Goal, error) {
	query, args, err := psql.
		Insert("goals").
		Columns("user_id", "calories", "protein_g", "carbs_g", "fat_g", "updated_at").
		Values(g.UserID, g.Calories, g.ProteinG, g.CarbsG, g.FatG, squirrel.Expr("now()")).
		Suffix(`ON CONFLICT (user_id) DO UPDATE SET
			calories = EXCLUDED.calories,
			protein_g = EXCLUDED.protein_g,
			carbs_g = EXCLUDED.carbs_g,
			fat_g = EXCLUDED.fat_g,
			updated_at = now()
		RETURNING updated_at`).
		ToSql()
	if err != nil {
		return models.Goal{}, err
	}
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&g.UpdatedAt); err != nil {
		return models.Goal{}, fmt.Errorf("history: put goal: %w", err)
	}
	return g, nil
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
