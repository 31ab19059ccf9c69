package metrics

import (
	"context"
	"sync"

	"github.com/Egham-7/adaptive-gateway/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

const (
	defaultWorkers    = 2
	defaultBufferSize = 256
)

// Recorder writes metrics from a bounded worker pool so the request path never waits on the database
type Recorder struct {
	service *Service
	tasks   chan models.MetricInput
	wg      sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

// NewRecorder starts workers goroutines reading from a queue of bufferSize
func NewRecorder(service *Service, workers, bufferSize int) *Recorder {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	r := &Recorder{
		service: service,
		tasks:   make(chan models.MetricInput, bufferSize),
	}
	for range workers {
		r.wg.Add(1)
		go r.run()
	}
	return r
}

// Submit queues a metric. When the queue is full the metric is dropped.
func (r *Recorder) Submit(input models.MetricInput) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.stopped {
		fiberlog.Warnf("[%s] Metrics recorder stopped, dropping metric", input.RequestID)
		return
	}
	select {
	case r.tasks <- input:
	default:
		fiberlog.Warnf("[%s] Metrics buffer full, dropping metric for %s", input.RequestID, input.Provider)
	}
}

// RecordMetric satisfies the same contract as Service.RecordMetric
func (r *Recorder) RecordMetric(_ context.Context, input models.MetricInput) {
	r.Submit(input)
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for input := range r.tasks {
		r.service.RecordMetric(context.Background(), input)
	}
}

// Stop rejects new submissions and waits for queued metrics to be written
func (r *Recorder) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	close(r.tasks)
	r.mu.Unlock()

	r.wg.Wait()
}
