package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"storefront/recommender/internal/domain"
	"storefront/recommender/internal/domain/task"
	"storefront/recommender/internal/metrics"
	"storefront/recommender/internal/queue"
)

// ViewRecorder applies aggregated view counts to product popularity.
type ViewRecorder interface {
	RecordProductViews(ctx context.Context, counts map[string]int) error
}

// Service publishes product view events and folds them into trending popularity.
type Service struct {
	recorder    ViewRecorder
	queue       queue.Queue
	metrics     *metrics.Metrics
	minIdleTime time.Duration
	batchSize   int
	block       time.Duration
	errBackoff  time.Duration
	now         func() time.Time
}

func NewService(recorder ViewRecorder, q queue.Queue, m *metrics.Metrics, minIdleTime int) *Service {
	return &Service{
		recorder:    recorder,
		queue:       q,
		metrics:     m,
		minIdleTime: time.Duration(minIdleTime) * time.Second,
		batchSize:   100,
		block:       2 * time.Second,
		errBackoff:  time.Second,
		now:         time.Now,
	}
}

// PublishView enqueues a view event. Failures are logged and dropped.
func (s *Service) PublishView(ctx context.Context, p domain.Product) {
	if s == nil || s.queue == nil || p.ID == "" {
		return
	}

	_, err := s.queue.AddTask(ctx, &task.ViewEventTask{
		ProductID:  p.ID,
		ShopID:     p.ShopID,
		CategoryID: p.CategoryID,
		ViewedAt:   s.now(),
	})
	if err != nil {
		log.Warnf("⚠️ Failed to enqueue view of product %s: %v", p.ID, err)
	}
}

// RunWorkers consumes view events until ctx is done.
func (s *Service) RunWorkers(ctx context.Context, numWorkers int) error {
	if s.recorder == nil {
		log.Info("View recorder not configured, popularity workers disabled")
		<-ctx.Done()
		return nil
	}

	var wg sync.WaitGroup

	s.runWorkersForStream(ctx, &wg, max(1, numWorkers), s.queue.StreamName(task.ViewEventTaskType))

	wg.Wait()
	return nil
}

func (s *Service) runWorkersForStream(ctx context.Context, wg *sync.WaitGroup, numWorkers int, streamName string) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(max(s.minIdleTime, time.Second))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				consumer := fmt.Sprintf("autoclaimer-%d", time.Now().UnixNano())
				claimed, err := s.queue.AutoClaim(ctx, consumer, streamName, s.minIdleTime, s.batchSize)
				if err != nil {
					log.Errorf("❌ Failed to auto-claim messages for %s: %v", streamName, err)
					continue
				}
				if len(claimed) > 0 {
					log.Infof("🔄 Auto-claimed %d view events", len(claimed))
					if err := s.processMessages(ctx, streamName, claimed); err != nil {
						log.Errorf("❌ Failed to process auto-claimed view events: %v", err)
					}
				}
			}
		}
	}()

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			consumer := fmt.Sprintf("popularity-worker-%d", workerID)
			log.Infof("🚀 Starting popularity worker %d as consumer %s", workerID, consumer)
			for {
				select {
				case <-ctx.Done():
					log.Infof("🛑 Popularity worker %d stopping", workerID)
					return
				default:
					if err := s.drain(ctx, consumer, streamName); err != nil && ctx.Err() == nil {
						log.Errorf("❌ %v", err)
						// Back off so an unreachable Redis does not spin the worker.
						select {
						case <-ctx.Done():
						case <-time.After(s.errBackoff):
						}
					}
				}
			}
		}(i + 1)
	}
}

// drain reads one batch of new view events and processes it.
func (s *Service) drain(ctx context.Context, consumer, streamName string) error {
	msgs, err := s.queue.ReadTasks(ctx, consumer, streamName, s.batchSize, s.block)
	if err != nil {
		return fmt.Errorf("failed to get view events from %s: %w", streamName, err)
	}
	if len(msgs) == 0 {
		return nil
	}
	return s.processMessages(ctx, streamName, msgs)
}

// processMessages aggregates views per product and records them in one write.
// Malformed messages are acknowledged and dropped. On a failed write nothing is
// acknowledged so the batch is claimed again later.
func (s *Service) processMessages(ctx context.Context, streamName string, msgs []redis.XMessage) error {
	counts := make(map[string]int)
	ids := make([]string, 0, len(msgs))
	events := 0

	for _, msg := range msgs {
		ids = append(ids, msg.ID)

		event, err := decodeViewEvent(msg)
		if err != nil {
			log.Warnf("⚠️ Dropping message %s: %v", msg.ID, err)
			continue
		}
		counts[event.ProductID]++
		events++
	}

	if len(counts) > 0 {
		if err := s.recorder.RecordProductViews(ctx, counts); err != nil {
			return fmt.Errorf("failed to record %d view events: %w", events, err)
		}
		s.metrics.AddViewEvents(events)
	}

	if err := s.queue.AckTasks(ctx, streamName, ids...); err != nil {
		return err
	}

	log.Debugf("Processed %d view events for %d products", events, len(counts))
	return nil
}

func decodeViewEvent(msg redis.XMessage) (*task.ViewEventTask, error) {
	taskType, ok := msg.Values["task_type"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid task type in message %s", msg.ID)
	}
	if taskType != task.ViewEventTaskType {
		return nil, fmt.Errorf("unknown task type: %s", taskType)
	}

	taskData, ok := msg.Values["task_data"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid task data in message %s", msg.ID)
	}

	event, err := task.UnmarshalTask[*task.ViewEventTask]([]byte(taskData))
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal view event: %w", err)
	}
	if event == nil || event.ProductID == "" {
		return nil, fmt.Errorf("view event without product id")
	}
	return event, nil
}
