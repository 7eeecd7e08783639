package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codebypatrickleung/cloudhop/internal/cloud"
	"github.com/codebypatrickleung/cloudhop/internal/events"
	"github.com/codebypatrickleung/cloudhop/internal/logger"
)

// JobStatus is the state of a discovery job.
type JobStatus string

// Job statuses.
const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCanceled  JobStatus = "canceled"
)

// DefaultJobTTL is how long a finished job stays readable.
const DefaultJobTTL = time.Hour

// Job is a snapshot of one asynchronous discovery run.
type Job struct {
	ID          string     `json:"id"`
	ProjectID   string     `json:"project_id"`
	Provider    string     `json:"provider"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	Result      *Result    `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type jobState struct {
	job    Job
	cancel context.CancelFunc
	done   chan struct{}
}

// Service runs discovery jobs in the background.
type Service struct {
	pipeline  *Pipeline
	factory   cloud.Factory
	adapters  cloud.Options
	publisher events.Publisher
	logger    *logger.Logger
	now       func() time.Time
	ttl       time.Duration

	mu   sync.Mutex
	jobs map[string]*jobState
}

// NewService creates a Service. adapterOpts is passed to every adapter the
// factory builds.
func NewService(pipeline *Pipeline, factory cloud.Factory, adapterOpts cloud.Options, publisher events.Publisher, log *logger.Logger) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		pipeline:  pipeline,
		factory:   factory,
		adapters:  adapterOpts,
		publisher: publisher,
		logger:    log.Named("discovery"),
		now:       func() time.Time { return time.Now().UTC() },
		ttl:       DefaultJobTTL,
		jobs:      make(map[string]*jobState),
	}
}

// StartDiscovery validates the credentials by building an adapter, then runs
// the pipeline in the background. The job is not cancelled with ctx, only
// inherits its values; use Cancel to stop it.
func (s *Service) StartDiscovery(ctx context.Context, projectID string, creds cloud.Credentials, opts Options) (string, error) {
	if projectID == "" {
		return "", fmt.Errorf("project id is required: %w", cloud.ErrConfiguration)
	}
	adapter, err := s.factory.New(ctx, creds, s.adapters)
	if err != nil {
		return "", err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	st := &jobState{
		job: Job{
			ID:        uuid.NewString(),
			ProjectID: projectID,
			Provider:  adapter.Provider(),
			Status:    JobPending,
			StartedAt: s.now(),
		},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.mu.Lock()
	s.pruneLocked()
	s.jobs[st.job.ID] = st
	s.mu.Unlock()

	go s.run(runCtx, st, adapter, opts)
	return st.job.ID, nil
}

func (s *Service) run(ctx context.Context, st *jobState, adapter cloud.Adapter, opts Options) {
	defer close(st.done)
	defer st.cancel()
	s.update(st, func(j *Job) { j.Status = JobRunning })

	progress := opts.Progress
	opts.Progress = func(done, total int) {
		s.update(st, func(j *Job) { j.Progress = done * 100 / total })
		if progress != nil {
			progress(done, total)
		}
	}

	res, err := s.pipeline.Run(ctx, st.job.ProjectID, adapter, opts)
	now := s.now()
	evt := events.Event{Source: events.SourceDiscovery, JobID: st.job.ID, ProjectID: st.job.ProjectID, Time: now}
	if err != nil {
		status := JobFailed
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			status = JobCanceled
			s.logger.Warningf("Discovery job %s was cancelled", st.job.ID)
		} else {
			s.logger.Errorf("Discovery job %s failed: %v", st.job.ID, err)
		}
		s.update(st, func(j *Job) {
			j.Status = status
			j.Error = err.Error()
			j.CompletedAt = &now
		})
		evt.Type, evt.Status, evt.Message = events.DiscoveryFailed, string(status), err.Error()
		ctx = context.WithoutCancel(ctx)
	} else {
		s.update(st, func(j *Job) {
			j.Status = JobCompleted
			j.Progress = 100
			j.Result = res
			j.CompletedAt = &now
		})
		evt.Type, evt.Status, evt.Progress = events.DiscoveryCompleted, string(JobCompleted), 100
		evt.Message = fmt.Sprintf("%d assets discovered", res.Total())
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Warningf("Failed to publish discovery event: %v", err)
	}
}

func (s *Service) update(st *jobState, fn func(j *Job)) {
	s.mu.Lock()
	fn(&st.job)
	s.mu.Unlock()
}

// Status returns a snapshot of the job. Jobs that finished more than the
// job TTL ago are forgotten.
func (s *Service) Status(jobID string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneLocked()
	st, ok := s.jobs[jobID]
	if !ok {
		return Job{}, fmt.Errorf("discovery job %s not found", jobID)
	}
	return st.job, nil
}

// Wait blocks until the job finishes or ctx is done, then returns its final
// snapshot.
func (s *Service) Wait(ctx context.Context, jobID string) (Job, error) {
	s.mu.Lock()
	st, ok := s.jobs[jobID]
	s.mu.Unlock()
	if !ok {
		return Job{}, fmt.Errorf("discovery job %s not found", jobID)
	}
	select {
	case <-st.done:
		return s.Status(jobID)
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

// Cancel stops a pending or running job. Cancelling a finished job is a
// no-op.
func (s *Service) Cancel(jobID string) error {
	s.mu.Lock()
	st, ok := s.jobs[jobID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("discovery job %s not found", jobID)
	}
	st.cancel()
	return nil
}

// pruneLocked drops jobs that finished before the TTL. s.mu must be held.
func (s *Service) pruneLocked() {
	cutoff := s.now().Add(-s.ttl)
	for id, st := range s.jobs {
		if c := st.job.CompletedAt; c != nil && c.Before(cutoff) {
			delete(s.jobs, id)
		}
	}
}
