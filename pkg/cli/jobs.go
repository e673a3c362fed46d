package cli

import (
	"context"

	"github.com/robfig/cron/v3"
)

// scheduleJobs registers the background jobs of the serve command. The
// returned scheduler is not started.
func (rt *runtime) scheduleJobs(ctx context.Context) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	if schedule := rt.cfg.Server.TokenCleanupSchedule; schedule != "" {
		if _, err := c.AddFunc(schedule, func() { rt.cleanupTokens(ctx) }); err != nil {
			return nil, err
		}
		rt.logger.WithField("schedule", schedule).Info("Token cleanup scheduled")
	}
	return c, nil
}

func (rt *runtime) cleanupTokens(ctx context.Context) {
	n, err := rt.tokens.CleanupExpiredTokens(ctx)
	if err != nil {
		rt.logger.WithError(err).Error("Expired token cleanup failed")
		return
	}
	rt.logger.WithField("deleted", n).Info("Expired tokens cleaned up")
}
