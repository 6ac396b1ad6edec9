package graph

import "time"

// run executes fn up to p.MaxAttempts times with a fixed delay between
// attempts. It reports the number of attempts made so the caller can tell
// a single-shot failure from an exhausted retry budget.
func (p *RetryPolicy) run(view *View, fn func() error) (attempts int, err error) {
	maxAttempts := 1
	var delay time.Duration
	if p != nil {
		if p.MaxAttempts > 0 {
			maxAttempts = p.MaxAttempts
		}
		delay = p.Delay
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return attempt, nil
		}

		if attempt == maxAttempts {
			if p != nil && p.OnRetryFailed != nil {
				p.OnRetryFailed(lastErr, view)
			}
			if p != nil && p.ContinueOnFailed {
				return attempt, nil
			}
			return attempt, lastErr
		}

		if delay > 0 {
			time.Sleep(delay)
		}
	}

	return maxAttempts, lastErr
}
