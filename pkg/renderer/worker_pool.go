package renderer

import (
	"fmt"
	"math/rand"
	"runtime"
	"sync"

	"github.com/df07/go-path-guiding/pkg/core"
	"github.com/df07/go-path-guiding/pkg/guiding"
	"github.com/df07/go-path-guiding/pkg/integrator"
)

// PathTask represents a batch of paths for the worker pool
type PathTask struct {
	PassNumber int
	TaskID     int // For deterministic seeding
	NumPaths   int
	Seed       int64
}

// PathResult contains the result from tracing a batch of paths
type PathResult struct {
	TaskID int
	Stats  PassStats
	Error  error
}

// WorkerPool manages parallel path tracing
type WorkerPool struct {
	taskQueue   chan PathTask
	resultQueue chan PathResult
	workers     []*Worker
	numWorkers  int
	wg          sync.WaitGroup
	startOnce   sync.Once
	stopOnce    sync.Once
}

// Worker traces batches of paths with its own scratch vertex path
type Worker struct {
	ID          int
	integrator  *integrator.GuidedIntegrator
	path        guiding.VertexPath
	taskQueue   chan PathTask
	resultQueue chan PathResult
}

// NewWorkerPool creates a worker pool with the specified number of workers
func NewWorkerPool(gi *integrator.GuidedIntegrator, numWorkers int) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}

	wp := &WorkerPool{
		taskQueue:   make(chan PathTask, numWorkers*2),
		resultQueue: make(chan PathResult, numWorkers*2),
		numWorkers:  numWorkers,
	}

	for i := 0; i < numWorkers; i++ {
		worker := &Worker{
			ID:          i,
			integrator:  gi,
			taskQueue:   wp.taskQueue,
			resultQueue: wp.resultQueue,
		}
		wp.workers = append(wp.workers, worker)
	}

	return wp
}

// Start begins all workers. Calling it again has no effect.
func (wp *WorkerPool) Start() {
	wp.startOnce.Do(func() {
		for _, worker := range wp.workers {
			wp.wg.Add(1)
			go worker.run(&wp.wg)
		}
	})
}

// Stop gracefully shuts down all workers. Calling it again has no effect.
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		close(wp.taskQueue) // No more tasks
		wp.wg.Wait()        // Wait for workers to finish
		close(wp.resultQueue)
	})
}

// SubmitTask submits a path task to the worker pool
func (wp *WorkerPool) SubmitTask(task PathTask) {
	wp.taskQueue <- task
}

// GetResult retrieves a completed task result
func (wp *WorkerPool) GetResult() (PathResult, bool) {
	result, ok := <-wp.resultQueue
	return result, ok
}

// GetNumWorkers returns the number of workers in the pool
func (wp *WorkerPool) GetNumWorkers() int {
	return wp.numWorkers
}

// run is the main worker loop
func (w *Worker) run(wg *sync.WaitGroup) {
	defer wg.Done()

	for task := range w.taskQueue {
		w.resultQueue <- w.trace(task)
	}
}

// trace runs one task, turning a panic in the integrator into a task error
func (w *Worker) trace(task PathTask) (result PathResult) {
	result.TaskID = task.TaskID
	defer func() {
		if r := recover(); r != nil {
			result.Error = fmt.Errorf("worker %d: %v", w.ID, r)
		}
	}()

	// Each task gets its own generator so results do not depend on scheduling
	sampler := core.NewRandomSampler(rand.New(rand.NewSource(task.Seed)))

	result.Stats = PassStats{PassNumber: task.PassNumber}
	for i := 0; i < task.NumPaths; i++ {
		result.Stats.AddSample(w.integrator.TracePath(sampler, &w.path))
	}
	return result
}
