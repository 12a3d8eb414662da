// Package admission counts in-flight requests per model in Redis so slot
// capacity holds across gateway replicas.
package admission

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// acquireScript charges one slot if capacity allows, atomically.
// KEYS[1] = in-flight counter key
// ARGV[1] = slot capacity
// Returns: 1 if admitted, 0 if saturated
const acquireScript = `
local count = redis.call("INCR", KEYS[1])
redis.call("EXPIRE", KEYS[1], 3600)
if count > tonumber(ARGV[1]) then
	redis.call("DECR", KEYS[1])
	return 0
end
return 1
`

// releaseScript returns one slot, never dropping below zero. A counter can
// undershoot when it expired mid-request; clamping keeps the next window
// honest.
const releaseScript = `
local count = redis.call("DECR", KEYS[1])
if count < 0 then
	redis.call("SET", KEYS[1], 0, "EX", 3600)
	return 0
end
return count
`

type scripter interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// SlotCounter implements core.Admitter over a shared Redis counter per model.
type SlotCounter struct {
	redis scripter
}

func NewSlotCounter(client scripter) *SlotCounter {
	return &SlotCounter{redis: client}
}

func key(modelID string) string {
	return "llmgate:inflight:" + modelID
}

// Acquire charges one in-flight slot for the model. Returns false when the
// backend is already running at capacity.
func (c *SlotCounter) Acquire(ctx context.Context, modelID string, capacity int) (bool, error) {
	admitted, err := c.redis.Eval(ctx, acquireScript, []string{key(modelID)}, capacity).Int64()
	if err != nil {
		return false, fmt.Errorf("acquire slot for model %s: %w", modelID, err)
	}
	return admitted == 1, nil
}

// Release returns an in-flight slot.
func (c *SlotCounter) Release(ctx context.Context, modelID string) error {
	if err := c.redis.Eval(ctx, releaseScript, []string{key(modelID)}).Err(); err != nil {
		return fmt.Errorf("release slot for model %s: %w", modelID, err)
	}
	return nil
}
