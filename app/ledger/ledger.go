// Package ledger bounds free estimate calls per device per calendar day.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrStore wraps failures of the backing counter store.
var ErrStore = errors.New("ledger: store failure")

// Record is the usage bucket of one device.
type Record struct {
	Date  string // YYYY-MM-DD in the ledger's timezone
	Count int
}

// Store persists usage records. Implementations expire records at expireAt.
type Store interface {
	Get(ctx context.Context, deviceID string) (Record, bool, error)
	Put(ctx context.Context, deviceID string, rec Record, expireAt time.Time) error
	Increment(ctx context.Context, deviceID string, expireAt time.Time) (int, error)
}

// Ledger counts estimate calls per device for the current day.
// The read-then-write in TryConsume is not atomic across requests, so
// concurrent calls for one device can overshoot the limit slightly.
type Ledger struct {
	store Store
	loc   *time.Location
	now   func() time.Time
}

func New(store Store, loc *time.Location) *Ledger {
	if loc == nil {
		loc = time.Local
	}
	return &Ledger{store: store, loc: loc, now: time.Now}
}

// WithClock replaces the time source.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// DayKey formats t as a calendar day in loc.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// NextMidnight is the start of the day after t in loc.
func NextMidnight(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
}

// Today is the current day key.
func (l *Ledger) Today() string {
	return DayKey(l.now(), l.loc)
}

// TryConsume records one call for deviceID and reports whether it is within limit.
// A denied call leaves the record untouched.
func (l *Ledger) TryConsume(ctx context.Context, deviceID string, limit int) (bool, error) {
	now := l.now()
	today := DayKey(now, l.loc)
	expireAt := NextMidnight(now, l.loc)

	rec, ok, err := l.store.Get(ctx, deviceID)
	if err != nil {
		return false, fmt.Errorf("%w: get %q: %v", ErrStore, deviceID, err)
	}
	if !ok || rec.Date != today {
		if err := l.store.Put(ctx, deviceID, Record{Date: today, Count: 1}, expireAt); err != nil {
			return false, fmt.Errorf("%w: put %q: %v", ErrStore, deviceID, err)
		}
		return true, nil
	}
	if rec.Count >= limit {
		return false, nil
	}
	if _, err := l.store.Increment(ctx, deviceID, expireAt); err != nil {
		return false, fmt.Errorf("%w: increment %q: %v", ErrStore, deviceID, err)
	}
	return true, nil
}

// Used returns today's count for deviceID without consuming.
func (l *Ledger) Used(ctx context.Context, deviceID string) (int, error) {
	rec, ok, err := l.store.Get(ctx, deviceID)
	if err != nil {
		return 0, fmt.Errorf("%w: get %q: %v", ErrStore, deviceID, err)
	}
	if !ok || rec.Date != l.Today() {
		return 0, nil
	}
	return rec.Count, nil
}

// Remaining returns how many calls deviceID has left today.
func (l *Ledger) Remaining(ctx context.Context, deviceID string, limit int) (int, error) {
	used, err := l.Used(ctx, deviceID)
	if err != nil {
		return 0, err
	}
	if used >= limit {
		return 0, nil
	}
	return limit - used, nil
}

// NormalizeDeviceID trims the caller supplied id and truncates it to max bytes
// without splitting a rune. An empty id stays empty and shares one bucket.
func NormalizeDeviceID(raw string, max int) string {
	id := strings.TrimSpace(raw)
	if max <= 0 || len(id) <= max {
		return id
	}
	id = id[:max]
	for !utf8.ValidString(id) {
		id = id[:len(id)-1]
	}
	return id
}
