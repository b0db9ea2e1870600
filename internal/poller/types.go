package poller

import (
	"fmt"
	"time"
)

// StaleDataWarning reports that the last good snapshot is past retention.
// It is informational; polling continues.
type StaleDataWarning struct {
	Age   time.Duration
	Limit time.Duration
}

func (w *StaleDataWarning) Error() string {
	return fmt.Sprintf("stale ticker data: last good snapshot is %s old (retention %s)", w.Age.Round(time.Second), w.Limit)
}

// Stats summarizes poll health.
type Stats struct {
	LastSuccess         time.Time `json:"lastSuccess"`
	LastAttempt         time.Time `json:"lastAttempt"`
	LastError           string    `json:"lastError,omitempty"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	WindowPolls         int       `json:"windowPolls"`    // Polls within the retention window
	WindowFailures      int       `json:"windowFailures"` // Failed polls within the retention window
	Instruments         int       `json:"instruments"`    // Size of the last good snapshot
	Running             bool      `json:"running"`
}
