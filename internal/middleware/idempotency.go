package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyHeader = "Idempotency-Key"

	// Decisions go stale fast: the offer deadline itself is 30 minutes, so a
	// replay window of an hour comfortably covers client retries.
	idempotencyTTL = time.Hour

	idempotencyPrefix = "agent:idempotency:"
)

// cachedDecision stores the response of an already-applied decision request.
type cachedDecision struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body"`
}

// responseRecorder wraps gin.ResponseWriter to capture the response body.
type responseRecorder struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency replays the recorded response when a decision request arrives
// again with the same Idempotency-Key, so a retried POST cannot re-drive the
// state machine. Requests without a key pass through: the authority's own
// guards already make duplicated decisions no-ops.
func Idempotency(redisClient *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		key := c.GetHeader(idempotencyHeader)
		if key == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		cacheKey := idempotencyPrefix + key

		if cached, err := getCachedDecision(ctx, redisClient, cacheKey); err == nil && cached != nil {
			c.Data(cached.StatusCode, "application/json", cached.Body)
			c.Abort()
			return
		}

		rec := &responseRecorder{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = rec

		c.Next()

		if status := c.Writer.Status(); status >= 200 && status < 500 {
			_ = setCachedDecision(ctx, redisClient, cacheKey, &cachedDecision{
				StatusCode: status,
				Body:       rec.body.Bytes(),
			})
		}
	}
}

func getCachedDecision(ctx context.Context, client *redis.Client, key string) (*cachedDecision, error) {
	data, err := client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var cached cachedDecision
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	return &cached, nil
}

func setCachedDecision(ctx context.Context, client *redis.Client, key string, decision *cachedDecision) error {
	data, err := json.Marshal(decision)
	if err != nil {
		return err
	}
	return client.Set(ctx, key, data, idempotencyTTL).Err()
}
