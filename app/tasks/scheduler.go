package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ianmintz/pourover/app/cfg"
	"github.com/ianmintz/pourover/app/database"
	"github.com/ianmintz/pourover/app/feed"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

// Scheduler runs the background worker pool and the ticker that
// enqueues due feed polls. The HTTP job endpoints push into the same
// queue, so external cron and the internal ticker are interchangeable.
type Scheduler struct {
	feedRepo          database.FeedRepository
	entryRepo         database.EntryRepository
	processor         *feed.Processor
	publisher         *feed.Publisher
	contentExtractor  *feed.ContentExtractor
	httpClient        *http.Client
	userAgent         string
	interval          time.Duration
	reservationMaxAge time.Duration
	workerCount       int
	ctx               context.Context
	cancel            context.CancelFunc
	wg                sync.WaitGroup
	taskQueue         chan TaskInterface
}

func NewScheduler(feedRepo database.FeedRepository, entryRepo database.EntryRepository,
	processor *feed.Processor, publisher *feed.Publisher) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	c := cfg.Get()

	return &Scheduler{
		feedRepo:          feedRepo,
		entryRepo:         entryRepo,
		processor:         processor,
		publisher:         publisher,
		contentExtractor:  feed.NewContentExtractor(),
		httpClient:        &http.Client{Timeout: 30 * time.Second},
		userAgent:         c.UserAgent,
		interval:          time.Duration(c.SchedulerInterval) * time.Second,
		reservationMaxAge: time.Duration(c.ReservationMaxAge) * time.Minute,
		workerCount:       c.WorkerCount,
		ctx:               ctx,
		cancel:            cancel,
		taskQueue:         make(chan TaskInterface, 300),
	}
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueStartupTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueDueTasks()
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	close(s.taskQueue)
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	// The queue is closed once the scheduler stops; refuse instead of
	// racing the close.
	if err := s.ctx.Err(); err != nil {
		return err
	}

	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) enqueueStartupTasks() {
	if err := s.EnqueueTask(NewResubscribeTask(s.feedRepo, s.processor)); err != nil {
		slog.Warn("Failed to enqueue ResubscribeTask", "error", err)
	}
	s.enqueueDueTasks()
}

func (s *Scheduler) enqueueDueTasks() {
	if err := s.EnqueueTask(NewSweepReservationsTask(s.entryRepo, s.reservationMaxAge)); err != nil {
		slog.Warn("Failed to enqueue SweepReservationsTask", "error", err)
	}

	feeds, err := s.feedRepo.GetActiveFeeds()
	if err != nil {
		slog.Error("Failed to list feeds for scheduling", "error", err)
		return
	}

	now := time.Now().UTC()
	for i := range feeds {
		fd := &feeds[i]

		// Manual-control feeds publish on their rolling window, which
		// is usually tighter than their poll interval, so they get a
		// publish pass every tick.
		if fd.ManualControl {
			if err := s.EnqueueTask(NewPublishFeedTask(fd.ID, s.feedRepo, s.publisher)); err != nil {
				slog.Warn("Failed to enqueue PublishFeedTask", "feed_id", fd.ID, "error", err)
			}
		}

		due := fd.LastFetchedAt == nil ||
			now.Sub(*fd.LastFetchedAt) >= time.Duration(fd.UpdateInterval)*time.Minute
		if !due {
			continue
		}

		if err := s.EnqueueTask(NewPollFeedTask(fd.ID, s.feedRepo, s.processor)); err != nil {
			slog.Warn("Failed to enqueue PollFeedTask", "feed_id", fd.ID, "error", err)
			continue
		}

		if fd.ExtractContent {
			extractTask := NewExtractContentTask(fd.ID, s.feedRepo, s.entryRepo, s.contentExtractor, s.httpClient, s.userAgent)
			if err := s.EnqueueTask(extractTask); err != nil {
				slog.Warn("Failed to enqueue ExtractContentTask", "feed_id", fd.ID, "error", err)
			}
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task, ok := <-s.taskQueue:
			if !ok {
				return
			}
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(s.ctx, 5*time.Minute)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		return
	}

	slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()),
		"id", task.GetID(), "retry_count", task.GetRetryCount(), "error", err)

	if !task.CanRetry() {
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(),
			"retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		return
	}

	task.IncrementRetryCount()
	retryDelay := time.Duration(1<<uint(task.GetRetryCount()-1)) * time.Second
	if retryDelay > 30*time.Second {
		retryDelay = 30 * time.Second
	}

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "feed_id", task.GetFeedID(),
		"retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", retryDelay.String())

	// Tracked in the WaitGroup so Stop cannot close the queue while a
	// late retry is still about to enqueue.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		time.Sleep(retryDelay)
		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
		default:
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()),
					"id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
			}
		}
	}()
}
