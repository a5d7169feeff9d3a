package entitlement

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jdiaz1993/quickcalories/app/models"

	"github.com/Masterminds/squirrel"
)

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// PostgresStore keeps profiles, subscriptions and processed webhook ids.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetSubscription(ctx context.Context, userID string) (models.Subscription, bool, error) {
	query, args, err := psql.
		Select("user_id", "status", "provider", "price_id", "stripe_customer_id",
			"stripe_subscription_id", "current_period_end", "source_updated_at", "updated_at").
		From("subscriptions").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return models.Subscription{}, false, err
	}

	var (
		sub                        models.Subscription
		priceID, customerID, subID sql.NullString
		periodEnd                  sql.NullTime
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&sub.UserID, &sub.Status, &sub.Provider, &priceID, &customerID,
		&subID, &periodEnd, &sub.SourceUpdatedAt, &sub.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Subscription{}, false, nil
	}
	if err != nil {
		return models.Subscription{}, false, err
	}
	sub.PriceID = priceID.String
	sub.StripeCustomerID = customerID.String
	sub.StripeSubscriptionID = subID.String
	if periodEnd.Valid {
		t := periodEnd.Time
		sub.CurrentPeriodEnd = &t
	}
	return sub, true, nil
}

// UpsertSubscription inserts or replaces the user's row. A row whose
// source_updated_at is newer than sub's is left alone. Empty Stripe ids keep
// the stored values so a RevenueCat write does not erase them.
func (s *PostgresStore) UpsertSubscription(ctx context.Context, sub models.Subscription) (bool, error) {
	var periodEnd sql.NullTime
	if sub.CurrentPeriodEnd != nil {
		periodEnd = sql.NullTime{Time: *sub.CurrentPeriodEnd, Valid: true}
	}

	query, args, err := psql.
		Insert("subscriptions").
		Columns("user_id", "status", "provider", "price_id", "stripe_customer_id",
			"stripe_subscription_id", "current_period_end", "source_updated_at", "updated_at").
		Values(sub.UserID, sub.Status, sub.Provider, nullIfEmpty(sub.PriceID),
			nullIfEmpty(sub.StripeCustomerID), nullIfEmpty(sub.StripeSubscriptionID),
			periodEnd, sub.SourceUpdatedAt, squirrel.Expr("now()")).
		Suffix(`ON CONFLICT (user_id) DO UPDATE SET
			status = EXCLUDED.status,
			provider = EXCLUDED.provider,
			price_id = COALESCE(EXCLUDED.price_id, subscriptions.price_id),
			stripe_customer_id = COALESCE(EXCLUDED.stripe_customer_id, subscriptions.stripe_customer_id),
			stripe_subscription_id = COALESCE(EXCLUDED.stripe_subscription_id, subscriptions.stripe_subscription_id),
			current_period_end = EXCLUDED.current_period_end,
			source_updated_at = EXCLUDED.source_updated_at,
			updated_at = now()
		WHERE subscriptions.source_updated_at <= EXCLUDED.source_updated_at`).
		ToSql()
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *PostgresStore) UserIDByCustomer(ctx context.Context, customerID string) (string, error) {
	query, args, err := psql.
		Select("user_id").
		From("profiles").
		Where(squirrel.Eq{"stripe_customer_id": customerID}).
		Limit(1).
		ToSql()
	if err != nil {
		return "", err
	}
	var userID string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return userID, err
}

func (s *PostgresStore) LinkCustomer(ctx context.Context, userID, customerID string) error {
	query, args, err := psql.
		Insert("profiles").
		Columns("user_id", "stripe_customer_id", "last_seen_at").
		Values(userID, customerID, squirrel.Expr("now()")).
		Suffix("ON CONFLICT (user_id) DO UPDATE SET stripe_customer_id = EXCLUDED.stripe_customer_id").
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// CustomerIDByUser returns the stored Stripe customer for userID, or "".
func (s *PostgresStore) CustomerIDByUser(ctx context.Context, userID string) (string, error) {
	query, args, err := psql.
		Select("stripe_customer_id").
		From("profiles").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return "", err
	}
	var customerID sql.NullString
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&customerID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return customerID.String, err
}

// UpsertProfile records a sign-in. Existing billing links are preserved.
func (s *PostgresStore) UpsertProfile(ctx context.Context, userID, email string) error {
	query, args, err := psql.
		Insert("profiles").
		Columns("user_id", "email", "last_seen_at").
		Values(userID, nullIfEmpty(email), squirrel.Expr("now()")).
		Suffix("ON CONFLICT (user_id) DO UPDATE SET email = COALESCE(EXCLUDED.email, profiles.email), last_seen_at = now()").
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (models.Profile, bool, error) {
	query, args, err := psql.
		Select("user_id", "email", "stripe_customer_id", "last_seen_at").
		From("profiles").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return models.Profile{}, false, err
	}
	var (
		p                 models.Profile
		email, customerID sql.NullString
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&p.UserID, &email, &customerID, &p.LastSeenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, false, nil
	}
	if err != nil {
		return models.Profile{}, false, err
	}
	p.Email = email.String
	p.StripeCustomerID = customerID.String
	return p, true, nil
}

func (s *PostgresStore) EventProcessed(ctx context.Context, eventID string) (bool, error) {
	query, args, err := psql.
		Select("1").
		From("webhook_events").
		Where(squirrel.Eq{"event_id": eventID}).
		Prefix("SELECT EXISTS (").
		Suffix(")").
		ToSql()
	if err != nil {
		return false, err
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *PostgresStore) RecordEvent(ctx context.Context, eventID, eventType string) error {
	query, args, err := psql.
		Insert("webhook_events").
		Columns("event_id", "event_type", "processed_at").
		Values(eventID, eventType, squirrel.Expr("now()")).
		Suffix("ON CONFLICT (event_id) DO NOTHING").
		ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// PruneEvents removes processed event ids older than before.
func (s *PostgresStore) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	query, args, err := psql.
		Delete("webhook_events").
		Where(squirrel.Lt{"processed_at": before}).
		ToSql()
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
