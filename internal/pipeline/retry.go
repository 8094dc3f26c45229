package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"mediarepo/internal/logging"
	"mediarepo/internal/services"
)

// RetryPolicy bounds stage attempts.
type RetryPolicy struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

func (p RetryPolicy) backoff(ctx context.Context) backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	if p.Initial > 0 {
		policy.InitialInterval = p.Initial
	}
	if p.Max > 0 {
		policy.MaxInterval = p.Max
	}
	policy.MaxElapsedTime = 0
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(policy, uint64(attempts-1)), ctx)
}

// retry runs op until it succeeds, fails permanently, or the attempt budget
// is spent. It returns the number of attempts made.
func (r *Runner) retry(ctx context.Context, stageName string, op func() error) (int, error) {
	attempts := 0
	err := backoff.RetryNotify(func() error {
		attempts++
		err := op()
		if err == nil {
			return nil
		}
		if errors.Is(err, services.ErrNoAudio) || errors.Is(err, errNotApplicable) || !services.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, r.policy.backoff(ctx), func(err error, wait time.Duration) {
		r.logger.Debug("stage attempt failed; backing off",
			logging.String(logging.FieldStage, stageName),
			logging.Int("attempt", attempts),
			logging.Duration("wait", wait),
			logging.Error(err),
		)
	})
	return attempts, err
}
