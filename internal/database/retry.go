package database

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// retryBaseDelay is the wait after the first failed attempt. It doubles
// after every further failure.
var retryBaseDelay = time.Second

// connectRetry calls connect until it succeeds, ctx ends, or attempts run
// out. Postgres and Redis often come up after the server in compose setups.
func connectRetry(ctx context.Context, name string, attempts int, log zerolog.Logger, connect func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	delay := retryBaseDelay
	var err error
	for i := 1; i <= attempts; i++ {
		if err = connect(ctx); err == nil {
			return nil
		}
		if i == attempts {
			break
		}

		log.Warn().Err(err).
			Str("target", name).
			Int("attempt", i).
			Dur("retry_in", delay).
			Msg("Connection failed, retrying")

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return fmt.Errorf("%s: %w", name, ctx.Err())
		case <-t.C:
		}
		delay *= 2
	}
	return fmt.Errorf("%s: giving up after %d attempts: %w", name, attempts, err)
}
