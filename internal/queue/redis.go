package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"storefront/recommender/internal/domain/task"
)

const streamPrefix = "recommender:stream:"

type Queue interface {
	AddTask(ctx context.Context, task task.Task) (string, error) // Returns message ID
	ReadTasks(ctx context.Context, consumer, stream string, count int, block time.Duration) ([]redis.XMessage, error)
	AckTasks(ctx context.Context, stream string, msgIDs ...string) error
	AutoClaim(ctx context.Context, consumer, stream string, minIdleTime time.Duration, count int) ([]redis.XMessage, error)
	EnsureStreamsExist(ctx context.Context) error
	StreamName(taskType string) string
}

type RedisQueue struct {
	redisClient *redis.Client
	groupName   string
	taskTypes   []string
}

// NewRedisQueue creates the streams and consumer group for every task type before returning.
func NewRedisQueue(ctx context.Context, redisClient *redis.Client, group string) (*RedisQueue, error) {
	q := &RedisQueue{
		redisClient: redisClient,
		groupName:   group,
		taskTypes:   []string{task.ViewEventTaskType},
	}

	if err := q.EnsureStreamsExist(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure streams exist: %w", err)
	}

	return q, nil
}

func (q *RedisQueue) StreamName(taskType string) string {
	return streamPrefix + taskType
}

// GroupName returns the consumer group every worker joins.
func (q *RedisQueue) GroupName() string {
	return q.groupName
}

func (q *RedisQueue) createGroup(ctx context.Context, stream string) error {
	err := q.redisClient.XGroupCreateMkStream(ctx, stream, q.groupName, "0").Err()
	if err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP") {
		log.Debugf("Group %s already exists for stream %s", q.groupName, stream)
		return nil
	}
	return err
}

func (q *RedisQueue) AddTask(ctx context.Context, t task.Task) (string, error) {
	taskType := t.TaskType()
	streamName := q.StreamName(taskType)

	taskValue, err := t.TaskValue()
	if err != nil {
		return "", fmt.Errorf("failed to serialize task: %w", err)
	}

	messageID, err := q.redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: streamName,
		Values: map[string]any{
			"task_type": taskType,
			"task_data": string(taskValue),
		},
	}).Result()

	if err != nil {
		return "", fmt.Errorf("failed to add task to Redis stream %s: %w", streamName, err)
	}

	log.Debugf("Added task %s to stream %s with message ID: %s", taskType, streamName, messageID)
	return messageID, nil
}

// ReadTasks returns up to count new messages, waiting at most block. No messages is not an error.
func (q *RedisQueue) ReadTasks(ctx context.Context, consumer, stream string, count int, block time.Duration) ([]redis.XMessage, error) {
	result, err := q.redisClient.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.groupName,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    int64(count),
		Block:    block,
	}).Result()

	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from Redis stream %s: %w", stream, err)
	}

	if len(result) == 0 {
		return nil, nil
	}
	return result[0].Messages, nil
}

func (q *RedisQueue) AckTasks(ctx context.Context, stream string, msgIDs ...string) error {
	if len(msgIDs) == 0 {
		return nil
	}
	if err := q.redisClient.XAck(ctx, stream, q.groupName, msgIDs...).Err(); err != nil {
		return fmt.Errorf("failed to ack %d messages on %s: %w", len(msgIDs), stream, err)
	}
	return nil
}

// AutoClaim takes over messages another consumer left pending for longer than minIdleTime.
func (q *RedisQueue) AutoClaim(ctx context.Context, consumer, stream string, minIdleTime time.Duration, count int) ([]redis.XMessage, error) {
	result, _, err := q.redisClient.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    q.groupName,
		Consumer: consumer,
		MinIdle:  minIdleTime,
		Start:    "0-0",
		Count:    int64(count),
	}).Result()

	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to claim messages from Redis stream %s: %w", stream, err)
	}

	return result, nil
}

// EnsureStreamsExist creates all required streams and consumer groups upfront
func (q *RedisQueue) EnsureStreamsExist(ctx context.Context) error {
	for _, taskType := range q.taskTypes {
		streamName := q.StreamName(taskType)
		if err := q.createGroup(ctx, streamName); err != nil {
			return fmt.Errorf("failed to create consumer group for %s: %w", taskType, err)
		}
		log.Infof("✅ Stream %s and consumer group %s ready", streamName, q.groupName)
	}
	return nil
}
