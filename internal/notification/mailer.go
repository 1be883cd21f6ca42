package notification

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	ErrQueueFull    = errors.New("mail queue is full")
	ErrMailerClosed = errors.New("mailer is shut down")
)

type Mail struct {
	To      string
	Subject string
	Body    string
	// Kind names the notification for logs; bodies are never logged.
	Kind string
}

// Sender delivers one mail.
type Sender interface {
	Send(ctx context.Context, m Mail) error
}

type Worker struct {
	ID         int
	WorkerPool chan chan Mail
	JobChannel chan Mail
	Logger     *slog.Logger
}

func NewWorker(id int, workerPool chan chan Mail, logger *slog.Logger) *Worker {
	return &Worker{
		ID:         id,
		WorkerPool: workerPool,
		JobChannel: make(chan Mail),
		Logger:     logger,
	}
}

func (w *Worker) Start(ctx context.Context, wg *sync.WaitGroup, processFunc func(Mail)) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		for {
			w.WorkerPool <- w.JobChannel

			select {
			case m := <-w.JobChannel:
				w.Logger.Debug("worker sending mail", "worker_id", w.ID, "kind", m.Kind)
				processFunc(m)
			case <-ctx.Done():
				w.Logger.Debug("worker shutting down", "worker_id", w.ID)
				return
			}
		}
	}()
}

type MailerConfig struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
}

// Mailer queues mails and delivers them from a fixed pool of workers.
type Mailer struct {
	sender      Sender
	sendTimeout time.Duration
	logger      *slog.Logger

	jobQueue   chan Mail
	workerPool chan chan Mail
	maxWorkers int
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	dispatched chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewMailer(config MailerConfig, sender Sender, logger *slog.Logger) *Mailer {
	ctx, cancel := context.WithCancel(context.Background())

	maxWorkers := config.Workers
	if maxWorkers <= 0 {
		maxWorkers = 2
	}
	queueSize := config.QueueSize
	if queueSize <= 0 {
		queueSize = 100
	}
	timeout := config.SendTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	m := &Mailer{
		sender:      sender,
		sendTimeout: timeout,
		logger:      logger,
		maxWorkers:  maxWorkers,
		jobQueue:    make(chan Mail, queueSize),
		workerPool:  make(chan chan Mail, maxWorkers),
		ctx:         ctx,
		cancel:      cancel,
		dispatched:  make(chan struct{}),
	}

	for i := 0; i < m.maxWorkers; i++ {
		NewWorker(i, m.workerPool, m.logger).Start(m.ctx, &m.wg, m.send)
	}
	go m.dispatch()

	m.logger.Info("mailer worker pool started",
		"max_workers", m.maxWorkers,
		"queue_size", cap(m.jobQueue))
	return m
}

func (m *Mailer) dispatch() {
	defer close(m.dispatched)

	for mail := range m.jobQueue {
		select {
		case jobChannel := <-m.workerPool:
			select {
			case jobChannel <- mail:
			case <-m.ctx.Done():
				m.logger.Warn("dispatcher stopped before a worker took the mail", "kind", mail.Kind)
				return
			}
		case <-m.ctx.Done():
			m.logger.Warn("dispatcher stopped with mail queued", "kind", mail.Kind)
			return
		}
	}
}

// Enqueue hands m to the pool without blocking.
func (m *Mailer) Enqueue(mail Mail) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrMailerClosed
	}

	select {
	case m.jobQueue <- mail:
		return nil
	default:
		m.logger.Warn("mail queue full, dropping mail", "kind", mail.Kind, "queue_capacity", cap(m.jobQueue))
		return ErrQueueFull
	}
}

func (m *Mailer) send(mail Mail) {
	ctx, cancel := context.WithTimeout(context.Background(), m.sendTimeout)
	defer cancel()

	if err := m.sender.Send(ctx, mail); err != nil {
		m.logger.Error("failed to send mail", "kind", mail.Kind, "error", err)
		return
	}
	m.logger.Info("mail sent", "kind", mail.Kind)
}

// Shutdown stops intake, delivers what is already queued and waits for the
// workers. Mails still queued when ctx ends are dropped.
func (m *Mailer) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.jobQueue)
	m.mu.Unlock()

	m.logger.Info("shutting down mailer", "queued", len(m.jobQueue))

	var err error
	select {
	case <-m.dispatched:
	case <-ctx.Done():
		err = ctx.Err()
	}
	m.cancel()
	m.wg.Wait()

	m.logger.Info("mailer shutdown complete")
	return err
}

// Check reports the mailer unhealthy once it is shut down or its queue is full.
func (m *Mailer) Check(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrMailerClosed
	}
	if len(m.jobQueue) == cap(m.jobQueue) {
		return ErrQueueFull
	}
	return nil
}
