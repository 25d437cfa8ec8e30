package redis

import (
	"context"
	"strconv"
	"time"
)

// RateLimiter counts hits per key in fixed windows. Each window gets its own
// Redis key, so a counter whose TTL was never set cannot block a client past
// the end of its window.
type RateLimiter struct {
	client RedisClient
	now    func() time.Time
}

func NewRateLimiter(client RedisClient) *RateLimiter {
	return &RateLimiter{client: client, now: time.Now}
}

// Allow records one hit for key and reports whether it is within limit for
// the current window.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if window <= 0 {
		window = time.Minute
	}
	bucket := r.now().UnixNano() / int64(window)
	windowKey := key + ":" + strconv.FormatInt(bucket, 10)

	count, err := r.client.Incr(ctx, windowKey)
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := r.client.Expire(ctx, windowKey, 2*window); err != nil {
			return count <= int64(limit), err
		}
	}
	return count <= int64(limit), nil
}

// ClientRouteKey scopes a limit to one client on one route.
func ClientRouteKey(clientID, route string) string {
	return "storefront:ratelimit:" + clientID + ":" + route
}
