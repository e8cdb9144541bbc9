package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Priya8975/bulk-mail-dispatcher/internal/domain"
	"github.com/redis/go-redis/v9"
)

// DeadThreshold is the number of consecutive failures after which an endpoint
// leaves rotation.
const DeadThreshold = 3

// HealthTracker keeps one health record per endpoint in a Redis hash.
//
// Transitions: active → dead after DeadThreshold consecutive failures. A
// success resets the failure streak of a live endpoint. Dead is sticky: only
// Revive (an operator action) or re-adding the endpoint brings it back.
//
// Every update runs as a Lua script so concurrent job loops sending through
// the same endpoint never lose each other's writes.
type HealthTracker struct {
	redisClient *redis.Client
	logger      *slog.Logger
	threshold   int
}

// Lua script for recording a failed send.
// 1. Bump the consecutive failure counter
// 2. Store the error text and check time
// 3. Flip to dead once the counter reaches the threshold
var recordFailureScript = redis.NewScript(`
local key = KEYS[1]
local threshold = tonumber(ARGV[1])
local err_text = ARGV[2]
local now = ARGV[3]

local failures = redis.call('HINCRBY', key, 'consecutive_failures', 1)
redis.call('HSET', key, 'last_error', err_text, 'last_checked_at', now)

local status = redis.call('HGET', key, 'status')
if failures >= threshold then
    status = 'dead'
elseif not status then
    status = 'active'
end
redis.call('HSET', key, 'status', status)

if redis.call('HEXISTS', key, 'success_count') == 0 then
    redis.call('HSET', key, 'success_count', 0)
end

return {failures, status}
`)

// Lua script for recording a successful send. A dead endpoint keeps its
// status and streak so the operator can still see why it was retired.
var recordSuccessScript = redis.NewScript(`
local key = KEYS[1]
local now = ARGV[1]

local status = redis.call('HGET', key, 'status')
redis.call('HINCRBY', key, 'success_count', 1)
redis.call('HSET', key, 'last_checked_at', now)

if status == 'dead' then
    return status
end

redis.call('HSET', key, 'status', 'active', 'consecutive_failures', 0)
return 'active'
`)

func NewHealthTracker(redisClient *redis.Client, logger *slog.Logger) *HealthTracker {
	return &HealthTracker{
		redisClient: redisClient,
		logger:      logger,
		threshold:   DeadThreshold,
	}
}

func healthKey(endpointID string) string {
	return fmt.Sprintf("endpoint_health:%s", endpointID)
}

// Initialize writes a fresh active record for a newly added endpoint.
func (h *HealthTracker) Initialize(ctx context.Context, endpointID string) error {
	key := healthKey(endpointID)

	pipe := h.redisClient.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		"status", string(domain.HealthActive),
		"consecutive_failures", 0,
		"success_count", 0,
	)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("initializing health for %s: %w", endpointID, err)
	}
	return nil
}

// RecordSuccess counts a delivered message against the endpoint.
func (h *HealthTracker) RecordSuccess(ctx context.Context, endpointID string) error {
	now := time.Now().Unix()

	status, err := recordSuccessScript.Run(ctx, h.redisClient, []string{healthKey(endpointID)}, now).Text()
	if err != nil {
		return fmt.Errorf("recording success for %s: %w", endpointID, err)
	}

	if domain.HealthStatus(status) == domain.HealthDead {
		h.logger.Debug("success recorded on dead endpoint",
			"endpoint_id", endpointID,
		)
	}
	return nil
}

// RecordFailure counts a failed send and returns the resulting status.
func (h *HealthTracker) RecordFailure(ctx context.Context, endpointID, errText string) (domain.HealthStatus, error) {
	now := time.Now().Unix()

	res, err := recordFailureScript.Run(ctx, h.redisClient, []string{healthKey(endpointID)},
		h.threshold, errText, now,
	).Slice()
	if err != nil {
		return domain.HealthUnknown, fmt.Errorf("recording failure for %s: %w", endpointID, err)
	}
	if len(res) != 2 {
		return domain.HealthUnknown, fmt.Errorf("recording failure for %s: unexpected script reply %v", endpointID, res)
	}

	failures, _ := res[0].(int64)
	status, _ := res[1].(string)

	if failures == int64(h.threshold) {
		h.logger.Warn("endpoint marked dead",
			"endpoint_id", endpointID,
			"failures", failures,
			"threshold", h.threshold,
			"last_error", errText,
		)
	}

	return domain.HealthStatus(status), nil
}

// Revive resets a dead endpoint to active. Cumulative successes are kept.
func (h *HealthTracker) Revive(ctx context.Context, endpointID string) error {
	key := healthKey(endpointID)

	pipe := h.redisClient.TxPipeline()
	pipe.HSet(ctx, key,
		"status", string(domain.HealthActive),
		"consecutive_failures", 0,
	)
	pipe.HDel(ctx, key, "last_error")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("reviving %s: %w", endpointID, err)
	}

	h.logger.Info("endpoint revived", "endpoint_id", endpointID)
	return nil
}

// Delete drops the record together with its endpoint.
func (h *HealthTracker) Delete(ctx context.Context, endpointID string) error {
	if err := h.redisClient.Del(ctx, healthKey(endpointID)).Err(); err != nil {
		return fmt.Errorf("deleting health for %s: %w", endpointID, err)
	}
	return nil
}

// Get returns the health of one endpoint. A missing record reads as unknown.
func (h *HealthTracker) Get(ctx context.Context, endpointID string) (domain.EndpointHealth, error) {
	data, err := h.redisClient.HGetAll(ctx, healthKey(endpointID)).Result()
	if err != nil {
		return domain.EndpointHealth{Status: domain.HealthUnknown}, fmt.Errorf("reading health for %s: %w", endpointID, err)
	}
	return parseHealth(data), nil
}

// GetMany reads several records in one round trip.
func (h *HealthTracker) GetMany(ctx context.Context, endpointIDs []string) (map[string]domain.EndpointHealth, error) {
	result := make(map[string]domain.EndpointHealth, len(endpointIDs))
	if len(endpointIDs) == 0 {
		return result, nil
	}

	pipe := h.redisClient.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(endpointIDs))
	for i, id := range endpointIDs {
		cmds[i] = pipe.HGetAll(ctx, healthKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("reading endpoint health: %w", err)
	}

	for i, id := range endpointIDs {
		result[id] = parseHealth(cmds[i].Val())
	}
	return result, nil
}

func parseHealth(data map[string]string) domain.EndpointHealth {
	if len(data) == 0 {
		return domain.EndpointHealth{Status: domain.HealthUnknown}
	}

	status := domain.HealthStatus(data["status"])
	if status == "" {
		status = domain.HealthUnknown
	}
	failures, _ := strconv.Atoi(data["consecutive_failures"])
	successes, _ := strconv.Atoi(data["success_count"])

	health := domain.EndpointHealth{
		Status:              status,
		ConsecutiveFailures: failures,
		SuccessCount:        successes,
		LastError:           data["last_error"],
	}

	if ts, ok := data["last_checked_at"]; ok && ts != "" {
		sec, _ := strconv.ParseInt(ts, 10, 64)
		if sec > 0 {
			checked := time.Unix(sec, 0).UTC()
			health.LastCheckedAt = &checked
		}
	}

	return health
}
