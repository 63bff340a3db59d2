package services

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/deedox/platform/internal/config"
	"github.com/deedox/platform/pkg/logger"
	"github.com/hibiken/asynq"
)

const TaskTypeMail = "mail:send"

// MailQueue hands mail off so request handlers never wait on SMTP.
type MailQueue interface {
	Enqueue(ctx context.Context, m *Mail) error
	IsAsync() bool
	Close() error
}

var (
	globalMailQueue MailQueue
	mailQueueOnce   sync.Once
)

// InitMailQueue picks the Redis-backed queue when Redis is configured and
// reachable, otherwise an in-process queue.
func InitMailQueue(cfg *config.Config, mailer Mailer) MailQueue {
	mailQueueOnce.Do(func() {
		if cfg.Redis.Enabled {
			queue, err := NewAsyncMailQueue(&cfg.Redis)
			if err != nil {
				logger.Warnf("[MailQueue] Redis unavailable, falling back to sync mode: %v", err)
				globalMailQueue = NewSyncMailQueue(mailer)
			} else {
				logger.Infof("[MailQueue] Async queue initialized with Redis at %s", cfg.Redis.Addr)
				globalMailQueue = queue
			}
		} else {
			logger.Infof("[MailQueue] Sync queue initialized (Redis disabled)")
			globalMailQueue = NewSyncMailQueue(mailer)
		}
	})
	return globalMailQueue
}

func GetMailQueue() MailQueue {
	return globalMailQueue
}

type AsyncMailQueue struct {
	client *asynq.Client
}

func NewAsyncMailQueue(cfg *config.RedisConfig) (*AsyncMailQueue, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	client := asynq.NewClient(redisOpt)

	inspector := asynq.NewInspector(redisOpt)
	defer inspector.Close()

	if _, err := inspector.Queues(); err != nil {
		client.Close()
		return nil, err
	}

	return &AsyncMailQueue{client: client}, nil
}

func (q *AsyncMailQueue) Enqueue(ctx context.Context, m *Mail) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}

	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(TaskTypeMail, payload),
		asynq.Queue("mail"),
		asynq.MaxRetry(3),
	)
	if err != nil {
		return err
	}

	logger.Debug().Str("task_id", info.ID).Str("queue", info.Queue).Msg("mail enqueued")
	return nil
}

func (q *AsyncMailQueue) IsAsync() bool { return true }

func (q *AsyncMailQueue) Close() error {
	return q.client.Close()
}

// SyncMailQueue sends on a background goroutine of this process.
type SyncMailQueue struct {
	mailer Mailer
	wg     sync.WaitGroup
}

func NewSyncMailQueue(mailer Mailer) *SyncMailQueue {
	return &SyncMailQueue{mailer: mailer}
}

func (q *SyncMailQueue) Enqueue(_ context.Context, m *Mail) error {
	if q.mailer == nil {
		logger.Warnf("[MailQueue] no mailer set, mail to %s dropped", m.To)
		return nil
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		// detached from the request: the response may already be written
		if err := q.mailer.Send(context.Background(), m); err != nil {
			logger.Error().Err(err).Str("to", m.To).Msg("mail send failed")
		}
	}()
	return nil
}

func (q *SyncMailQueue) IsAsync() bool { return false }

// Close waits for in-flight sends.
func (q *SyncMailQueue) Close() error {
	q.wg.Wait()
	return nil
}
