package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"nft-rental-escrow/internal/domain"
	"nft-rental-escrow/internal/logger"
)

// submitScript inserts a task atomically: 0 if the slot exists, -1 if the
// queue is full, 1 when created.
var submitScript = redis.NewScript(`
	local triggers = KEYS[1]
	local tasks = KEYS[2]
	local slot = ARGV[1]
	local trigger = tonumber(ARGV[2])
	local payload = ARGV[3]
	local capacity = tonumber(ARGV[4])

	if redis.call('HEXISTS', tasks, slot) == 1 then
		return 0
	end
	if redis.call('HLEN', tasks) >= capacity then
		return -1
	end
	redis.call('HSETNX', tasks, slot, payload)
	redis.call('ZADD', triggers, trigger, slot)
	return 1
`)

type RedisQueue struct {
	rdb      redis.UniversalClient
	name     string
	capacity int
}

var _ Queue = (*RedisQueue)(nil)

func NewRedisQueue(rdb redis.UniversalClient, name string, capacity int) *RedisQueue {
	return &RedisQueue{rdb: rdb, name: name, capacity: capacity}
}

func (q *RedisQueue) Name() string { return q.name }

func (q *RedisQueue) key(suffix string) string {
	return fmt.Sprintf("taskqueue:{%s}:%s", q.name, suffix)
}

func (q *RedisQueue) Submit(ctx context.Context, task *domain.ScheduledTask) (bool, error) {
	if task.Queue == "" {
		task.Queue = q.name
	}
	if task.CreatedOn.IsZero() {
		task.CreatedOn = time.Now().UTC()
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return false, errors.Wrap(err, "encode task")
	}

	logger.ExternalServiceCall("taskqueue", "Submit", "queue", q.name, "slot", task.SlotID)
	res, err := submitScript.Run(ctx, q.rdb,
		[]string{q.key("triggers"), q.key("tasks")},
		task.SlotID, task.TriggerAt.Unix(), payload, q.capacity).Int()
	logger.ExternalServiceResult("taskqueue", "Submit", err, "queue", q.name, "slot", task.SlotID, "result", res)
	if err != nil {
		return false, errors.Wrap(err, "submit task")
	}
	switch res {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, ErrQueueFull
	}
}

func (q *RedisQueue) Get(ctx context.Context, slotID string) (*domain.ScheduledTask, error) {
	raw, err := q.rdb.HGet(ctx, q.key("tasks"), slotID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get task")
	}
	var task domain.ScheduledTask
	if err := json.Unmarshal([]byte(raw), &task); err != nil {
		return nil, errors.Wrapf(err, "decode task %s", slotID)
	}
	return &task, nil
}

func (q *RedisQueue) Due(ctx context.Context, now time.Time, limit int) ([]domain.ScheduledTask, error) {
	slots, err := q.rdb.ZRangeByScore(ctx, q.key("triggers"), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, errors.Wrap(err, "list due tasks")
	}
	if len(slots) == 0 {
		return nil, nil
	}

	raws, err := q.rdb.HMGet(ctx, q.key("tasks"), slots...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "load due tasks")
	}
	tasks := make([]domain.ScheduledTask, 0, len(raws))
	for i, raw := range raws {
		s, ok := raw.(string)
		if !ok {
			// Trigger without payload: completed concurrently.
			continue
		}
		var task domain.ScheduledTask
		if err := json.Unmarshal([]byte(s), &task); err != nil {
			logger.Warn("Skipping undecodable task", "queue", q.name, "slot", slots[i], "error", err)
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (q *RedisQueue) Complete(ctx context.Context, slotID string, cranker domain.Address, reward uint64) error {
	var removed *redis.IntCmd
	_, err := q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, q.key("triggers"), slotID)
		removed = pipe.HDel(ctx, q.key("tasks"), slotID)
		pipe.HIncrBy(ctx, q.key("rewards"), cranker.String(), int64(reward))
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "complete task")
	}
	if removed.Val() == 0 {
		// Someone else completed it first; take the reward back.
		if err := q.rdb.HIncrBy(ctx, q.key("rewards"), cranker.String(), -int64(reward)).Err(); err != nil {
			return errors.Wrap(err, "revert reward")
		}
		return ErrTaskNotFound
	}
	return nil
}

func (q *RedisQueue) RecordFailure(ctx context.Context, slotID string, cause error) error {
	tasksKey := q.key("tasks")
	err := q.rdb.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, tasksKey, slotID).Result()
		if errors.Is(err, redis.Nil) {
			return ErrTaskNotFound
		}
		if err != nil {
			return err
		}
		var task domain.ScheduledTask
		if err := json.Unmarshal([]byte(raw), &task); err != nil {
			return errors.Wrapf(err, "decode task %s", slotID)
		}
		task.Attempts++
		if cause != nil {
			task.LastError = cause.Error()
		}
		updated, err := json.Marshal(&task)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, tasksKey, slotID, updated)
			return nil
		})
		return err
	}, tasksKey)
	if errors.Is(err, ErrTaskNotFound) {
		return err
	}
	return errors.Wrap(err, "record task failure")
}

func (q *RedisQueue) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	slots, err := q.rdb.ZRangeByScore(ctx, q.key("triggers"), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, errors.Wrap(err, "list stale tasks")
	}
	if len(slots) == 0 {
		return 0, nil
	}

	members := make([]interface{}, len(slots))
	for i, s := range slots {
		members[i] = s
	}
	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, q.key("triggers"), members...)
		pipe.HDel(ctx, q.key("tasks"), slots...)
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "prune stale tasks")
	}
	return len(slots), nil
}

func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.rdb.HLen(ctx, q.key("tasks")).Result()
	return n, errors.Wrap(err, "queue length")
}

func (q *RedisQueue) Rewards(ctx context.Context, cranker domain.Address) (uint64, error) {
	n, err := q.rdb.HGet(ctx, q.key("rewards"), cranker.String()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "get rewards")
	}
	return uint64(n), nil
}
