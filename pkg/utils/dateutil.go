package utils

import (
	"time"

	"github.com/gorhill/cronexpr"
	"k8s.io/utils/clock"
)

// NextCronDuration returns the time left from now until the next activation
// of the cron expression after the given time. In case it fails to parse the
// cron expression it returns an error.
func NextCronDuration(cronString string, after time.Time, clock clock.PassiveClock) (time.Duration, error) {
	expr, err := cronexpr.Parse(cronString)
	if err != nil {
		return time.Duration(0), err
	}
	return timeToExpiration(expr.Next(after), clock), nil
}

// ValidateCron returns an error if cronString is not a valid cron expression.
func ValidateCron(cronString string) error {
	_, err := cronexpr.Parse(cronString)
	return err
}

// DurationExceeded check if duration is now meaning zero
func DurationExceeded(duration time.Duration) bool {
	return duration.Nanoseconds() <= 0
}

// timeToExpiration return the duration between now and expiration
func timeToExpiration(expiresAt time.Time, clock clock.PassiveClock) time.Duration {
	return expiresAt.Sub(clock.Now())
}
