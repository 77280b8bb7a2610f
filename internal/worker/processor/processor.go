package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/linkflow-ai/scriptflow/internal/domain/errs"
	"github.com/linkflow-ai/scriptflow/internal/domain/graph"
	"github.com/linkflow-ai/scriptflow/internal/domain/models"
	"github.com/linkflow-ai/scriptflow/internal/domain/params"
	"github.com/linkflow-ai/scriptflow/internal/domain/repositories"
	"github.com/linkflow-ai/scriptflow/internal/pkg/logger"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

const opRun = "processor.Run"

// Processor is the workflow execution engine. One Processor serves every
// execution handed to a worker; per-execution state lives in a run.
type Processor struct {
	executions    repositories.ExecutionStore
	inputs        repositories.ExecutionInputStore
	nodes         repositories.NodeStore
	edges         repositories.EdgeStore
	scripts       repositories.ScriptStore
	limits        Limits
	stores        map[params.Kind]params.Store
	runtime       Runtime
	cancellations *CancellationManager
	publisher     EventPublisher
	metrics       MetricsCollector

	grace      time.Duration
	backoff    time.Duration
	maxBackoff time.Duration

	// admission serializes the running-count check with the RUNNING transition.
	admission sync.Mutex
	slots     sync.Map // workspaceID -> *nodeSlots
	now       func() time.Time
}

type nodeSlots struct {
	size int64
	sem  *semaphore.Weighted
}

// New creates a new processor
func New(cfg Config) *Processor {
	if cfg.Runtime == nil {
		panic("processor: runtime is required")
	}
	p := &Processor{
		executions:    cfg.Executions,
		inputs:        cfg.Inputs,
		nodes:         cfg.Nodes,
		edges:         cfg.Edges,
		scripts:       cfg.Scripts,
		limits:        cfg.Limits,
		stores:        cfg.Stores,
		runtime:       cfg.Runtime,
		cancellations: cfg.Cancellations,
		publisher:     cfg.Publisher,
		metrics:       cfg.Metrics,
		grace:         cfg.CancelGracePeriod,
		backoff:       cfg.RetryBackoff,
		maxBackoff:    cfg.MaxRetryBackoff,
		now:           time.Now,
	}
	if p.cancellations == nil {
		p.cancellations = NewCancellationManager(nil)
	}
	if p.publisher == nil {
		p.publisher = noopPublisher{}
	}
	if p.metrics == nil {
		p.metrics = noopMetrics{}
	}
	return p
}

// Run drives one execution from PENDING to a terminal status. It is safe to
// call again for the same execution: terminal executions are left alone.
// ErrAdmissionDeferred means the execution is still PENDING and Run should
// be retried later.
func (p *Processor) Run(ctx context.Context, executionID uuid.UUID) error {
	execution, err := p.executions.FindByID(ctx, executionID)
	if errors.Is(err, repositories.ErrNotFound) {
		log.Warn().Str("execution_id", executionID.String()).Msg("Execution not found, dropping task")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load execution: %w", err)
	}

	l := logger.WithExecutionID(executionID.String())

	switch execution.Status {
	case models.ExecutionStatusPending:
	case models.ExecutionStatusRunning:
		if p.cancellations.IsActive(executionID) {
			return nil
		}
		// The worker that owned it went away mid-run.
		p.abandon(ctx, execution)
		return nil
	default:
		l.Debug().Str("status", string(execution.Status)).Msg("Execution already finished")
		return nil
	}

	snap, err := p.load(ctx, execution.WorkflowID)
	if err != nil {
		return err
	}
	if snap.Len() == 0 {
		p.reject(ctx, execution, errs.New(opRun, errs.ErrEmptyWorkflow, "workflow %s has no nodes", execution.WorkflowID))
		return nil
	}
	if err := graph.ValidateGraph(snap); err != nil {
		p.reject(ctx, execution, err)
		return nil
	}

	limits, err := p.limits.ForWorkspace(ctx, execution.WorkspaceID)
	if err != nil {
		return err
	}
	if err := p.admit(ctx, execution, limits.MaxConcurrentExecutions); err != nil {
		if errors.Is(err, repositories.ErrStaleState) {
			l.Info().Msg("Execution left PENDING before start")
			return nil
		}
		return err
	}

	l.Info().
		Str("workflow_id", execution.WorkflowID.String()).
		Int("nodes", snap.Len()).
		Msg("Execution started")
	p.metrics.ExecutionStarted()
	if err := p.publisher.ExecutionStarted(ctx, execution); err != nil {
		l.Warn().Err(err).Msg("Failed to publish execution event")
	}

	r := &run{
		p:         p,
		execution: execution,
		snap:      snap,
		state:     NewExecutionContext(execution),
		resolver:  params.NewResolver(p.stores),
		slots:     p.slotsFor(execution.WorkspaceID, limits.MaxParallelNodes),
		scripts:   make(map[uuid.UUID]*models.Script),
	}
	status, failure := r.dispatch(ctx)
	p.finish(ctx, r, status, failure)
	return nil
}

// Cancel signals a running execution owned by this process.
func (p *Processor) Cancel(ctx context.Context, executionID uuid.UUID) error {
	return p.cancellations.SignalCancel(ctx, executionID)
}

func (p *Processor) load(ctx context.Context, workflowID uuid.UUID) (*graph.Snapshot, error) {
	nodes, err := p.nodes.FindByWorkflowID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load nodes: %w", err)
	}
	edges, err := p.edges.FindByWorkflowID(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load edges: %w", err)
	}
	return graph.NewSnapshot(workflowID, nodes, edges), nil
}

func (p *Processor) admit(ctx context.Context, execution *models.Execution, limit int) error {
	p.admission.Lock()
	defer p.admission.Unlock()

	if limit > 0 {
		running, err := p.executions.CountRunning(ctx, execution.WorkspaceID)
		if err != nil {
			return fmt.Errorf("failed to count running executions: %w", err)
		}
		if running >= int64(limit) {
			p.metrics.ExecutionDeferred()
			return fmt.Errorf("%w: %d of %d running", ErrAdmissionDeferred, running, limit)
		}
	}

	now := p.now()
	execution.StartedAt = &now
	return p.executions.Transition(ctx, execution, models.ExecutionEventStart)
}

// slotsFor returns the node-slot semaphore shared by the executions of a
// workspace. A changed plan size replaces the semaphore for new executions.
func (p *Processor) slotsFor(workspaceID uuid.UUID, size int) *semaphore.Weighted {
	if size < 1 {
		size = 1
	}
	if v, ok := p.slots.Load(workspaceID); ok && v.(*nodeSlots).size == int64(size) {
		return v.(*nodeSlots).sem
	}
	s := &nodeSlots{size: int64(size), sem: semaphore.NewWeighted(int64(size))}
	if v, loaded := p.slots.LoadOrStore(workspaceID, s); loaded {
		if existing := v.(*nodeSlots); existing.size == s.size {
			return existing.sem
		}
		p.slots.Store(workspaceID, s)
	}
	return s.sem
}

// reject fails a PENDING execution whose graph cannot run.
func (p *Processor) reject(ctx context.Context, execution *models.Execution, cause error) {
	now := p.now()
	msg := cause.Error()
	execution.EndedAt = &now
	execution.ErrorMessage = &msg

	err := p.executions.Transition(ctx, execution, models.ExecutionEventFail)
	if err != nil && !errors.Is(err, repositories.ErrStaleState) {
		log.Error().Err(err).Str("execution_id", execution.ID.String()).Msg("Failed to fail execution")
		return
	}
	log.Warn().
		Str("execution_id", execution.ID.String()).
		Str("code", errs.CodeOf(cause)).
		Msg("Execution rejected")
}

func (p *Processor) abandon(ctx context.Context, execution *models.Execution) {
	now := p.now()
	msg := "execution interrupted: worker stopped while running"
	execution.EndedAt = &now
	execution.ErrorMessage = &msg

	err := p.executions.Transition(ctx, execution, models.ExecutionEventFail)
	if err != nil && !errors.Is(err, repositories.ErrStaleState) {
		log.Error().Err(err).Str("execution_id", execution.ID.String()).Msg("Failed to fail abandoned execution")
		return
	}
	log.Warn().Str("execution_id", execution.ID.String()).Msg("Abandoned execution marked as failed")
}

func (p *Processor) finish(ctx context.Context, r *run, status models.ExecutionStatus, failure *nodeOutcome) {
	// The terminal write must land even when the task context is gone.
	ctx = context.WithoutCancel(ctx)

	execution := r.execution
	now := p.now()
	execution.EndedAt = &now
	if execution.StartedAt != nil {
		d := now.Sub(*execution.StartedAt).Milliseconds()
		execution.DurationMs = &d
	}
	execution.RetryCount += int(r.retries.Load())
	execution.Results = r.state.Results()

	switch {
	case failure != nil:
		msg := failure.err.Error()
		execution.ErrorMessage = &msg
		execution.ErrorNodeID = &failure.node.ID
	case status == models.ExecutionStatusCancelled:
		msg := "cancelled"
		execution.ErrorMessage = &msg
	case status == models.ExecutionStatusFailed && r.aborted != nil:
		msg := r.aborted.Error()
		execution.ErrorMessage = &msg
	}

	l := logger.WithExecutionID(execution.ID.String())
	if err := p.executions.Transition(ctx, execution, terminalEvents[status]); err != nil {
		l.Error().Err(err).Str("status", string(status)).Msg("Failed to persist execution result")
	}

	var duration time.Duration
	if execution.StartedAt != nil {
		duration = now.Sub(*execution.StartedAt)
	}
	p.metrics.ExecutionFinished(string(status), execution.TriggerType, duration)
	if err := p.publisher.ExecutionFinished(ctx, execution); err != nil {
		l.Warn().Err(err).Msg("Failed to publish execution event")
	}

	event := l.Info()
	if status != models.ExecutionStatusCompleted {
		event = l.Warn()
	}
	event.
		Str("status", string(status)).
		Int("retry_count", execution.RetryCount).
		Dur("duration", duration).
		Msg("Execution finished")
}

var terminalEvents = map[models.ExecutionStatus]models.ExecutionEvent{
	models.ExecutionStatusCompleted: models.ExecutionEventComplete,
	models.ExecutionStatusFailed:    models.ExecutionEventFail,
	models.ExecutionStatusCancelled: models.ExecutionEventCancel,
	models.ExecutionStatusTimeout:   models.ExecutionEventTimeout,
}

// run is the state of one execution while it is dispatched.
type run struct {
	p         *Processor
	execution *models.Execution
	snap      *graph.Snapshot
	state     *ExecutionContext
	resolver  *params.Resolver
	slots     *semaphore.Weighted
	retries   atomic.Int64
	// aborted is set when the task context ended without a cancellation.
	aborted error

	scriptsMu sync.Mutex
	scripts   map[uuid.UUID]*models.Script
}

// dispatch runs every node once all of its predecessors have completed.
// A failed node stops further dispatch; a cancellation does too and gives
// in-flight nodes the grace period before interrupting them.
func (r *run) dispatch(ctx context.Context) (models.ExecutionStatus, *nodeOutcome) {
	nodeCtx, interrupt := context.WithCancel(ctx)
	defer interrupt()
	dispatchCtx, halt := context.WithCancel(ctx)
	defer halt()

	stop := make(chan struct{})
	var (
		once      sync.Once
		requested atomic.Bool
	)
	r.p.cancellations.Register(r.execution.ID, func() {
		once.Do(func() {
			requested.Store(true)
			close(stop)
			halt()
		})
	})
	defer r.p.cancellations.Unregister(r.execution.ID)

	waiting := make(map[uuid.UUID]int, r.snap.Len())
	for _, n := range r.snap.Nodes() {
		waiting[n.ID] = len(r.snap.Predecessors(n.ID))
	}
	ready := r.snap.Roots()
	done := make(chan nodeOutcome, r.snap.Len())

	var (
		inflight int
		failure  *nodeOutcome
		grace    *time.Timer
		// failed is set by a node goroutine before it frees its slot, so a
		// dispatch blocked in Acquire sees it once the slot is handed over.
		failed atomic.Bool
	)

	for {
		for failure == nil && !failed.Load() && !requested.Load() && len(ready) > 0 {
			if err := r.slots.Acquire(dispatchCtx, 1); err != nil {
				break
			}
			if failed.Load() || requested.Load() {
				r.slots.Release(1)
				break
			}
			node, _ := r.snap.Node(ready[0])
			ready = ready[1:]
			inflight++
			go func() {
				defer r.slots.Release(1)
				out := r.runNode(nodeCtx, node)
				if out.err != nil {
					failed.Store(true)
				}
				done <- out
			}()
		}
		if inflight == 0 {
			break
		}

		select {
		case out := <-done:
			inflight--
			r.state.Record(out.result)
			if out.err != nil {
				if failure == nil && !requested.Load() && !out.interrupted {
					failure = &out
				}
				continue
			}
			r.state.Complete(out.node.ID, out.output)
			for _, next := range r.snap.Successors(out.node.ID) {
				waiting[next]--
				if waiting[next] == 0 {
					ready = append(ready, next)
				}
			}
		case <-stop:
			stop = nil
			log.Info().
				Str("execution_id", r.execution.ID.String()).
				Int("in_flight", inflight).
				Msg("Cancellation received, draining")
			grace = time.AfterFunc(r.p.grace, interrupt)
		}
	}
	if grace != nil {
		grace.Stop()
	}

	r.skipRemaining()

	switch {
	case failure != nil:
		if failure.timedOut {
			return models.ExecutionStatusTimeout, failure
		}
		return models.ExecutionStatusFailed, failure
	case requested.Load():
		return models.ExecutionStatusCancelled, nil
	case ctx.Err() != nil:
		r.aborted = fmt.Errorf("execution aborted: %w", ctx.Err())
		return models.ExecutionStatusFailed, nil
	}
	return models.ExecutionStatusCompleted, nil
}

func (r *run) skipRemaining() {
	recorded := r.state.Results()
	for _, n := range r.snap.Nodes() {
		if _, ok := recorded[n.ID.String()]; ok {
			continue
		}
		r.state.Record(models.NodeResult{NodeID: n.ID, NodeName: n.Name, Status: models.NodeStatusSkipped})
	}
}

// runNode resolves the node's inputs, records them once and runs the script
// up to max_retries+1 times with those same inputs.
func (r *run) runNode(ctx context.Context, node *models.Node) nodeOutcome {
	out := nodeOutcome{
		node:   node,
		result: models.NodeResult{NodeID: node.ID, NodeName: node.Name},
	}
	l := logger.WithNodeID(r.execution.ID.String(), node.ID.String())

	script, err := r.script(ctx, node)
	if err != nil {
		return out.fail(err)
	}

	var (
		res     *params.Resolution
		lastErr error
	)
	for attempt := 1; attempt <= node.MaxRetries+1; attempt++ {
		if attempt > 1 {
			r.retried(ctx)
			if err := r.p.wait(ctx, attempt-1); err != nil {
				out.interrupted = true
				return out.fail(err)
			}
		}
		if err := ctx.Err(); err != nil {
			out.interrupted = true
			return out.fail(err)
		}
		out.result.Attempts = attempt

		if res == nil {
			res, err = r.resolver.Resolve(ctx, node, r.state.Snapshot())
			if err != nil {
				if !errs.IsRetryable(err) {
					return out.fail(err)
				}
				lastErr = err
				out.timedOut = false
				l.Warn().Err(err).Int("attempt", attempt).Msg("Input resolution failed")
				continue
			}
			if err := recordInput(ctx, r.p.inputs, BuildInput(r.execution, node, res)); err != nil {
				return out.fail(err)
			}
		}

		if err := r.p.publisher.NodeStarted(ctx, r.execution, node, attempt); err != nil {
			l.Warn().Err(err).Msg("Failed to publish node event")
		}

		output, err := r.attempt(ctx, node, script, res.Values)
		if err == nil {
			out.output = output
			out.result.Status = models.NodeStatusCompleted
			out.result.Output = output
			r.publishNode(ctx, out.result)
			return out
		}
		if ctx.Err() != nil {
			out.interrupted = true
			return r.failed(ctx, out, err)
		}

		lastErr = err
		out.timedOut = errors.Is(err, errs.ErrNodeTimeout)
		l.Warn().Err(err).Int("attempt", attempt).Int("max_retries", node.MaxRetries).Msg("Node attempt failed")
	}

	return r.failed(ctx, out, lastErr)
}

func (r *run) failed(ctx context.Context, out nodeOutcome, err error) nodeOutcome {
	out = out.fail(err)
	r.publishNode(ctx, out.result)
	return out
}

func (r *run) publishNode(ctx context.Context, result models.NodeResult) {
	if err := r.p.publisher.NodeFinished(ctx, r.execution, result); err != nil {
		log.Warn().Err(err).Str("execution_id", r.execution.ID.String()).Msg("Failed to publish node event")
	}
}

// attempt runs the script once under the node deadline. The deadline holds
// even if the runtime ignores its context.
func (r *run) attempt(ctx context.Context, node *models.Node, script *models.Script, values map[string]interface{}) (map[string]interface{}, error) {
	actx, cancel := context.WithTimeout(ctx, node.Timeout())
	defer cancel()

	type result struct {
		output map[string]interface{}
		err    error
	}
	ch := make(chan result, 1)
	inputs, _ := models.CloneValue(values).(map[string]interface{})
	start := time.Now()
	go func() {
		output, err := r.p.runtime.Run(actx, script, inputs)
		ch <- result{output, err}
	}()

	var res result
	select {
	case res = <-ch:
	case <-actx.Done():
		res = result{err: actx.Err()}
	}
	duration := time.Since(start)

	if res.err == nil && actx.Err() == nil {
		r.p.metrics.NodeAttempt(models.NodeStatusCompleted, duration)
		return res.output, nil
	}
	if ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
		r.p.metrics.NodeAttempt(models.NodeStatusTimeout, duration)
		return nil, errs.New(opRun, errs.ErrNodeTimeout, "node %q exceeded %s", node.Name, node.Timeout())
	}
	r.p.metrics.NodeAttempt(models.NodeStatusFailed, duration)
	if res.err == nil {
		res.err = actx.Err()
	}
	return nil, &errs.Error{
		Op:      opRun,
		Code:    errs.CodeNodeExecutionFailed,
		Message: fmt.Sprintf("node %q: %v", node.Name, res.err),
		Err:     errs.ErrNodeExecutionFailed,
	}
}

func (r *run) script(ctx context.Context, node *models.Node) (*models.Script, error) {
	ref := node.ScriptRef()

	r.scriptsMu.Lock()
	defer r.scriptsMu.Unlock()
	if s, ok := r.scripts[ref.ID]; ok {
		return s, nil
	}

	s, err := r.p.scripts.FindByID(ctx, ref.ID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, errs.New(opRun, errs.ErrInvalidReference, "node %q references missing script %s", node.Name, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load script: %w", err)
	}
	r.scripts[ref.ID] = s
	return s, nil
}

func (r *run) retried(ctx context.Context) {
	r.retries.Add(1)
	if err := r.p.executions.IncrementRetryCount(ctx, r.execution.ID); err != nil {
		log.Error().Err(err).Str("execution_id", r.execution.ID.String()).Msg("Failed to increment retry count")
	}
}

// wait sleeps the exponential backoff before retry n (1-based).
func (p *Processor) wait(ctx context.Context, n int) error {
	d := p.backoff
	for i := 1; i < n && d > 0; i++ {
		d *= 2
		if p.maxBackoff > 0 && d >= p.maxBackoff {
			d = p.maxBackoff
			break
		}
	}
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (o nodeOutcome) fail(err error) nodeOutcome {
	o.err = err
	switch {
	case o.interrupted:
		o.result.Status = models.NodeStatusCancelled
	case o.timedOut:
		o.result.Status = models.NodeStatusTimeout
	default:
		o.result.Status = models.NodeStatusFailed
	}
	o.result.Error = err.Error()
	o.result.Code = errs.CodeOf(err)
	return o
}
