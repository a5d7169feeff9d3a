package app

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// processed webhook ids are kept long enough to cover Stripe's retry window
const webhookEventRetention = 30 * 24 * time.Hour

// Scheduler registers the periodic housekeeping jobs. The caller starts and
// stops the returned cron.
func (rt *Runtime) Scheduler() (*cron.Cron, error) {
	loc, err := rt.Config.Location()
	if err != nil {
		return nil, err
	}
	c := cron.New(cron.WithLocation(loc))

	if rt.Memory != nil {
		_, err := c.AddFunc(rt.Config.Usage.PruneSchedule, rt.pruneUsage)
		if err != nil {
			return nil, err
		}
	}
	if rt.Billing != nil {
		_, err := c.AddFunc("@daily", rt.pruneWebhookEvents)
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

// pruneUsage drops in-memory buckets from previous days.
func (rt *Runtime) pruneUsage() {
	n := rt.Memory.Prune(rt.Ledger.Today())
	log.WithFields(log.Fields{"pruned": n, "remaining": rt.Memory.Len()}).Info("pruned stale usage buckets")
}

func (rt *Runtime) pruneWebhookEvents() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := rt.Billing.PruneEvents(ctx, time.Now().Add(-webhookEventRetention))
	if err != nil {
		log.WithError(err).Warn("webhook event prune failed")
		return
	}
	log.WithField("pruned", n).Info("pruned processed webhook events")
}
