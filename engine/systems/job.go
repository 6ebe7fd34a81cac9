package systems

import (
	"context"
	"errors"
	"sync"

	"github.com/spaghettifunk/scenebake/engine/containers"
	"github.com/spaghettifunk/scenebake/engine/core"
)

/** @brief A unit of work run on a job system worker. */
type JobTask struct {
	Name string
	/** @brief Runs on a worker goroutine. */
	Run func(ctx context.Context) error
	/** @brief Runs on the goroutine calling Update once Run succeeded. May be nil. */
	OnComplete func()
	/** @brief Runs on the goroutine calling Update once Run failed. May be nil. */
	OnFailure func(err error)
	/** @brief Runs during Shutdown instead of OnComplete when a successful job was never delivered. May be nil. */
	OnDiscard func()
}

type jobResult struct {
	task JobTask
	err  error
}

type JobSystem struct {
	numWorkers int
	jobQueue   chan JobTask
	wg         sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	completed *containers.Queue[jobResult]

	closeMu sync.RWMutex
	closed  bool
}

var ErrNoWorkers = errors.New("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = errors.New("attempting to create worker pool with a negative channel size")
var ErrJobSystemClosed = errors.New("job system is shut down")

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan JobTask, channelSize),
		ctx:        ctx,
		cancel:     cancel,
		completed:  containers.NewQueue[jobResult](16),
	}

	js.start()

	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				err := job.Run(js.ctx)
				if err != nil {
					core.LogError("job '%s' failed: %s", job.Name, err)
				}
				js.mu.Lock()
				js.completed.Enqueue(jobResult{task: job, err: err})
				js.mu.Unlock()
			}
		}()
	}
}

/**
 * @brief Shuts the job system down. Running jobs see their context cancelled;
 * queued jobs still run. Completion callbacks not yet delivered are dropped and
 * successful jobs among them get OnDiscard so their results can be freed.
 */
func (js *JobSystem) Shutdown() error {
	js.closeMu.Lock()
	if js.closed {
		js.closeMu.Unlock()
		return nil
	}
	js.closed = true
	js.closeMu.Unlock()

	js.cancel()
	close(js.jobQueue)
	js.wg.Wait()

	js.mu.Lock()
	undelivered := js.completed.Drain()
	js.mu.Unlock()

	for _, r := range undelivered {
		if r.err == nil && r.task.OnDiscard != nil {
			r.task.OnDiscard()
		}
	}
	return nil
}

/**
 * @brief Updates the job system. Should happen once an update cycle.
 * Delivers the callbacks of every job finished since the last update.
 */
func (js *JobSystem) Update() {
	js.mu.Lock()
	finished := js.completed.Drain()
	js.mu.Unlock()

	for _, r := range finished {
		if r.err != nil {
			if r.task.OnFailure != nil {
				r.task.OnFailure(r.err)
			}
			continue
		}
		if r.task.OnComplete != nil {
			r.task.OnComplete()
		}
	}
}

/**
 * @brief Submits the provided job to be queued for execution.
 * @param jt The description of the job to be executed.
 */
func (js *JobSystem) Submit(jt JobTask) error {
	js.closeMu.RLock()
	defer js.closeMu.RUnlock()
	if js.closed {
		return ErrJobSystemClosed
	}
	js.jobQueue <- jt
	return nil
}
