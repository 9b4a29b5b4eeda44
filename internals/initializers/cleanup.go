package initializers

import (
	"context"
	"time"

	"github.com/mental-health-navigator/high-tea/internals/logging"
)

// Purger removes expired rows and reports how many it dropped.
type Purger interface {
	Purge(ctx context.Context) (challenges int64, revoked int64, err error)
}

// PurgeFunc adapts a function to Purger.
type PurgeFunc func(ctx context.Context) (int64, int64, error)

func (f PurgeFunc) Purge(ctx context.Context) (int64, int64, error) { return f(ctx) }

// StartJanitor runs p every interval until ctx is done. Expired challenges and
// blacklist entries are hard-deleted so the tables do not grow.
func StartJanitor(ctx context.Context, interval time.Duration, p Purger, log logging.Logger) {
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				RunJanitor(ctx, p, log)
			}
		}
	}()
}

// RunJanitor performs one purge pass.
func RunJanitor(ctx context.Context, p Purger, log logging.Logger) {
	challenges, revoked, err := p.Purge(ctx)
	if err != nil {
		log.Error(ctx, "Janitor: purge failed", "err", err)
		return
	}
	if challenges > 0 || revoked > 0 {
		log.Info(ctx, "Janitor: Cleaned expired rows", "otp_challenges", challenges, "blacklisted_tokens", revoked)
		return
	}
	log.Debug(ctx, "Janitor: No expired rows found")
}
