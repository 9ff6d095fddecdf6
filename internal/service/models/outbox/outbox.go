package outbox

import (
	"math"
	"time"

	"github.com/corray333/backend-labs/ordercqrs/internal/service/models/message"
)

// Message is an integration message that failed to reach the broker and
// waits for redelivery.
type Message struct {
	ID          int64
	Message     message.Message
	RetryCount  int
	MaxRetries  int
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	NextRetryAt time.Time
}

// Backoff returns the delay before attempt number retry: 30s, 60s, 120s and so on
// for a 30s base.
func Backoff(base time.Duration, retry int) time.Duration {
	return time.Duration(math.Pow(2, float64(retry-1))) * base
}
