// Package fakegpu is an in-process model of an asynchronous GPU and presentation engine.
//
// Submitted work runs on a queue goroutine, presents on a presentation goroutine. Fences,
// binary semaphores and command buffers follow the usage rules of the real API, and every rule
// broken by the caller is recorded as a violation instead of crashing, so tests can assert on
// a clean protocol run.
package fakegpu

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/vkngwrapper/square/framesync"
)

// Kind names a type of object created by the GPU.
type Kind string

const (
	KindFence         Kind = "fence"
	KindSemaphore     Kind = "semaphore"
	KindCommandBuffer Kind = "command-buffer"
	KindTarget        Kind = "target"
)

type Options struct {
	// Latency is the time the queue spends on each submission.
	Latency time.Duration
	// PresentLatency is the time an image stays on screen before it can be acquired again.
	PresentLatency time.Duration
}

// Execution is a submission as the queue ran it.
type Execution struct {
	Sequence int
	Commands []Command
}

type submission struct {
	framesync.Submission
	sequence int
}

type presentation struct {
	surface    *Surface
	image      int
	wait       *Semaphore
	generation int
}

// GPU implements framesync.Device.
type GPU struct {
	opts   Options
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	submissions   chan submission
	presentations chan presentation

	mu          sync.Mutex
	idle        *sync.Cond
	outstanding int
	closed      bool
	sequence    int
	violations  []string
	events      []string
	executions  []Execution
	live        map[Kind]int
	created     map[Kind]int
	failures    map[Kind]map[int]error
	submitErr   error
}

// New starts the queue and presentation goroutines. Close stops them.
func New(opts Options) *GPU {
	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)

	g := &GPU{
		opts:          opts,
		ctx:           ctx,
		cancel:        cancel,
		group:         group,
		submissions:   make(chan submission, 256),
		presentations: make(chan presentation, 256),
		live:          map[Kind]int{},
		created:       map[Kind]int{},
		failures:      map[Kind]map[int]error{},
	}
	g.idle = sync.NewCond(&g.mu)

	group.Go(g.runQueue)
	group.Go(g.runPresentation)
	return g
}

// Close stops the workers. Work still queued is dropped.
func (g *GPU) Close() error {
	g.mu.Lock()
	g.closed = true
	g.idle.Broadcast()
	g.mu.Unlock()

	g.cancel()
	return g.group.Wait()
}

// FailCreation makes the n-th creation (counting from 1) of kind fail with err.
func (g *GPU) FailCreation(kind Kind, n int, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failures[kind] == nil {
		g.failures[kind] = map[int]error{}
	}
	g.failures[kind][g.created[kind]+n] = err
}

// FailNextSubmit makes the next Submit call fail with err.
func (g *GPU) FailNextSubmit(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submitErr = err
}

// Violations lists every broken usage rule seen so far.
func (g *GPU) Violations() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.violations...)
}

// Events is the ordered log of waits, recreations, acquires, presents and destructions.
func (g *GPU) Events() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.events...)
}

// Executions lists the command streams the queue has executed, in submission order.
func (g *GPU) Executions() []Execution {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Execution(nil), g.executions...)
}

// Live reports how many objects of kind exist.
func (g *GPU) Live(kind Kind) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.live[kind]
}

// Busy reports whether any submission or presentation has not completed.
func (g *GPU) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.outstanding > 0
}

func (g *GPU) violation(format string, args ...interface{}) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.violations = append(g.violations, fmt.Sprintf(format, args...))
}

func (g *GPU) event(format string, args ...interface{}) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = append(g.events, fmt.Sprintf(format, args...))
}

func (g *GPU) create(kind Kind) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.created[kind]++
	if err, ok := g.failures[kind][g.created[kind]]; ok {
		return err
	}
	g.live[kind]++
	return nil
}

func (g *GPU) destroyed(kind Kind, name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.live[kind]--
	g.events = append(g.events, "destroy "+name)
}

func (g *GPU) begin() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.outstanding++
}

func (g *GPU) done() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.outstanding--
	if g.outstanding == 0 {
		g.idle.Broadcast()
	}
}

func (g *GPU) CreateFence(signaled bool) (framesync.Fence, error) {
	if err := g.create(KindFence); err != nil {
		return nil, err
	}
	return newFence(g, signaled), nil
}

func (g *GPU) CreateSemaphore() (framesync.Semaphore, error) {
	if err := g.create(KindSemaphore); err != nil {
		return nil, err
	}
	return newSemaphore(g), nil
}

func (g *GPU) AllocateCommandBuffer() (framesync.CommandBuffer, error) {
	if err := g.create(KindCommandBuffer); err != nil {
		return nil, err
	}
	return &CommandBuffer{gpu: g}, nil
}

// Submit checks the submission against the usage rules and queues it.
func (g *GPU) Submit(s framesync.Submission) error {
	g.mu.Lock()
	err := g.submitErr
	g.submitErr = nil
	g.mu.Unlock()
	if err != nil {
		return err
	}

	commands, ok := s.Commands.(*CommandBuffer)
	if !ok {
		return errors.Newf("foreign command buffer %T", s.Commands)
	}
	wait, ok := s.WaitSemaphore.(*Semaphore)
	if !ok {
		return errors.Newf("foreign wait semaphore %T", s.WaitSemaphore)
	}
	signal, ok := s.SignalSemaphore.(*Semaphore)
	if !ok {
		return errors.Newf("foreign signal semaphore %T", s.SignalSemaphore)
	}
	fence, ok := s.Fence.(*Fence)
	if !ok {
		return errors.Newf("foreign fence %T", s.Fence)
	}

	if err := commands.submit(); err != nil {
		return err
	}
	if fence.Signaled() {
		g.violation("submitted with a signaled fence")
	}
	fence.use()
	wait.use()
	signal.use()

	g.mu.Lock()
	g.sequence++
	sequence := g.sequence
	g.outstanding++
	g.mu.Unlock()

	g.submissions <- submission{Submission: s, sequence: sequence}
	return nil
}

// WaitIdle blocks until every submission and presentation has completed.
func (g *GPU) WaitIdle() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for g.outstanding > 0 && !g.closed {
		g.idle.Wait()
	}
	if g.outstanding > 0 {
		return errors.New("device lost")
	}
	g.events = append(g.events, "idle")
	return nil
}

func (g *GPU) runQueue() error {
	for {
		select {
		case <-g.ctx.Done():
			return nil
		case s := <-g.submissions:
			wait := s.WaitSemaphore.(*Semaphore)
			if !wait.consume(g.ctx) {
				return nil
			}
			if !sleep(g.ctx, g.opts.Latency) {
				return nil
			}

			commands := s.Commands.(*CommandBuffer)
			recorded := commands.execute()

			g.mu.Lock()
			g.executions = append(g.executions, Execution{Sequence: s.sequence, Commands: recorded})
			g.mu.Unlock()

			s.SignalSemaphore.(*Semaphore).signal()
			s.Fence.(*Fence).Signal()
			g.done()
		}
	}
}

func (g *GPU) runPresentation() error {
	for {
		select {
		case <-g.ctx.Done():
			return nil
		case p := <-g.presentations:
			if !p.wait.consume(g.ctx) {
				return nil
			}
			if !sleep(g.ctx, g.opts.PresentLatency) {
				return nil
			}
			p.surface.release(p.image, p.generation)
			g.done()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
