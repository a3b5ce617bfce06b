package services

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/fuseproject/fuse/backend/internal/config"
	"github.com/fuseproject/fuse/backend/internal/models"
	"github.com/fuseproject/fuse/backend/pkg/logger"
	"github.com/hibiken/asynq"
)

const (
	TaskTypeNotification = "notification:deliver"
)

// NotificationTask carries the ids needed to render and deliver one
// membership notification.
type NotificationTask struct {
	Event         models.NotificationType `json:"event"`
	GroupKind     models.GroupKind        `json:"group_kind"`
	GroupID       uint                    `json:"group_id"`
	UserID        uint                    `json:"user_id,omitempty"`
	ApplicationID *uint                   `json:"application_id,omitempty"`
	InvitationID  *uint                   `json:"invitation_id,omitempty"`
}

// TaskProcessor handles a dequeued notification task.
type TaskProcessor func(context.Context, *NotificationTask) error

// TaskQueue hands notification tasks to a processor outside the request.
type TaskQueue interface {
	Enqueue(task *NotificationTask) error
	IsAsync() bool
	Close() error
}

var (
	globalTaskQueue TaskQueue
	taskQueueOnce   sync.Once
)

// InitTaskQueue picks the asynq queue when Redis is enabled and reachable,
// and the in-process queue otherwise.
func InitTaskQueue(cfg *config.Config) TaskQueue {
	taskQueueOnce.Do(func() {
		if cfg.Redis.Enabled {
			queue, err := NewAsyncQueue(&cfg.Redis)
			if err != nil {
				logger.Warnf("[TaskQueue] Redis unavailable, falling back to sync mode: %v", err)
				globalTaskQueue = NewSyncQueue()
			} else {
				logger.Infof("[TaskQueue] Async queue initialized with Redis at %s", cfg.Redis.Addr)
				globalTaskQueue = queue
			}
		} else {
			logger.Infof("[TaskQueue] Sync queue initialized (Redis disabled)")
			globalTaskQueue = NewSyncQueue()
		}
	})
	return globalTaskQueue
}

func GetTaskQueue() TaskQueue {
	return globalTaskQueue
}

func redisClientOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// AsyncQueue implements TaskQueue on asynq.
type AsyncQueue struct {
	client *asynq.Client
}

func NewAsyncQueue(cfg *config.RedisConfig) (*AsyncQueue, error) {
	redisOpt := redisClientOpt(cfg)
	client := asynq.NewClient(redisOpt)

	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()

	if _, err := inspector.Queues(); err != nil {
		client.Close()
		return nil, err
	}

	return &AsyncQueue{client: client}, nil
}

func (q *AsyncQueue) Enqueue(task *NotificationTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}

	info, err := q.client.Enqueue(asynq.NewTask(TaskTypeNotification, payload),
		asynq.Queue("notifications"),
		asynq.MaxRetry(5),
	)
	if err != nil {
		return err
	}

	logger.Debug().Str("task_id", info.ID).Str("event", string(task.Event)).Msg("notification enqueued")
	return nil
}

func (q *AsyncQueue) IsAsync() bool {
	return true
}

func (q *AsyncQueue) Close() error {
	return q.client.Close()
}

// SyncQueue processes each task on its own goroutine in this process.
type SyncQueue struct {
	processor TaskProcessor
	wg        sync.WaitGroup
}

func NewSyncQueue() *SyncQueue {
	return &SyncQueue{}
}

func (q *SyncQueue) SetProcessor(processor TaskProcessor) {
	q.processor = processor
}

func (q *SyncQueue) Enqueue(task *NotificationTask) error {
	if q.processor == nil {
		logger.Warnf("[SyncQueue] no processor set, dropping %s task", task.Event)
		return nil
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		if err := q.processor(context.Background(), task); err != nil {
			notificationFailures.WithLabelValues(string(task.Event)).Inc()
			logger.Warn().Err(err).Str("event", string(task.Event)).Msg("notification processing failed")
		}
	}()

	return nil
}

func (q *SyncQueue) IsAsync() bool {
	return false
}

// Close waits for tasks already handed to the queue.
func (q *SyncQueue) Close() error {
	q.wg.Wait()
	return nil
}
