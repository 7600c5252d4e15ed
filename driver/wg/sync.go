// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package wg

import (
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/wgpu/hal"

	"github.com/gviegas/rhi/driver"
)

// convErr maps HAL errors to driver errors.
func convErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, hal.ErrDeviceLost):
		return fmt.Errorf("%w: %w", driver.ErrFatal, err)
	case errors.Is(err, hal.ErrDeviceOutOfMemory):
		return fmt.Errorf("%w: %w", driver.ErrNoDeviceMemory, err)
	case errors.Is(err, hal.ErrSurfaceLost), errors.Is(err, hal.ErrSurfaceOutdated):
		return fmt.Errorf("%w: %w", driver.ErrSwapchain, err)
	case errors.Is(err, hal.ErrZeroArea):
		return fmt.Errorf("%w: %w", driver.ErrWindow, err)
	case errors.Is(err, hal.ErrTimeout):
		return fmt.Errorf("%w: %w", driver.ErrTimeout, err)
	}
	return err
}

// queue implements driver.Queue.
// The HAL exposes a single queue, which executes
// submissions in order.
type queue struct {
	g *GPU
	q hal.Queue
}

// Type returns driver.QGraphics.
func (q *queue) Type() driver.QueueType { return driver.QGraphics }

// Family returns zero.
func (q *queue) Family() int { return 0 }

// completed returns whether the submission identified by
// index has finished executing.
func (q *queue) completed(index uint64) bool { return q.q.PollCompleted() >= index }

// Submit submits command buffers for execution.
func (q *queue) Submit(s *driver.Submit) error {
	_, err := q.submit(s)
	return err
}

func (q *queue) submit(s *driver.Submit) (uint64, error) {
	cbs := make([]hal.CommandBuffer, len(s.Cmds))
	for i, c := range s.Cmds {
		cb := c.(*cmdBuffer)
		if cb.pool.q != q {
			panic("wg: command buffer submitted to the wrong queue")
		}
		if cb.m.State() != driver.CmdExecutable {
			panic("wg: Submit: command buffer not executable (state " + cb.m.State().String() + ")")
		}
		cbs[i] = cb.cb
	}
	for _, w := range s.Wait {
		if !w.Sem.(*semaphore).signaled {
			panic("wg: Submit: wait on unsignaled semaphore")
		}
	}
	var f *fence
	if s.Fence != nil {
		f = s.Fence.(*fence)
		if f.state != fenceUnsignaled {
			panic("wg: Submit: fence must be reset before submission")
		}
	}
	idx, err := q.q.Submit(cbs)
	if err != nil {
		return 0, convErr(err)
	}
	for _, c := range s.Cmds {
		cb := c.(*cmdBuffer)
		cb.m.Submit()
		cb.sub = idx
	}
	for _, w := range s.Wait {
		w.Sem.(*semaphore).signaled = false
	}
	for _, sem := range s.Signal {
		sem.(*semaphore).signaled = true
	}
	if f != nil {
		f.state = fencePending
		f.sub = idx
	}
	return idx, nil
}

// Present presents a swapchain image.
func (q *queue) Present(sc driver.Swapchain, index int, wait []driver.Semaphore) error {
	for _, s := range wait {
		sem := s.(*semaphore)
		if !sem.signaled {
			panic("wg: Present: wait on unsignaled semaphore")
		}
		sem.signaled = false
	}
	return sc.(*swapchain).present(q, index)
}

// ImmediateSubmit submits cb and waits for completion.
func (q *queue) ImmediateSubmit(cb []driver.CmdBuffer) error {
	idx, err := q.submit(&driver.Submit{Cmds: cb})
	if err != nil {
		return err
	}
	for !q.completed(idx) {
		time.Sleep(pollInterval)
	}
	return nil
}

// WaitIdle blocks until the queue is idle.
func (q *queue) WaitIdle() error { return convErr(q.g.dev.WaitIdle()) }

// semaphore implements driver.Semaphore.
// Since there is a single queue, semaphores only need to
// track whether a signal operation is outstanding.
type semaphore struct {
	signaled bool
}

// NewSemaphore creates a new semaphore.
func (g *GPU) NewSemaphore() (driver.Semaphore, error) { return &semaphore{}, nil }

// Destroy destroys the semaphore.
func (s *semaphore) Destroy() {}

const (
	fenceUnsignaled = iota
	fencePending
	fenceSignaled
)

// fence implements driver.Fence.
// A pending fence becomes signaled when the queue
// completes the submission that it was given to.
type fence struct {
	q     *queue
	state int
	sub   uint64
}

// NewFence creates a new fence.
func (g *GPU) NewFence(signaled bool) (driver.Fence, error) {
	f := &fence{q: g.q}
	if signaled {
		f.state = fenceSignaled
	}
	return f, nil
}

// Signaled returns whether the fence is signaled.
func (f *fence) Signaled() (bool, error) {
	if f.state == fencePending && f.q.completed(f.sub) {
		f.state = fenceSignaled
	}
	return f.state == fenceSignaled, nil
}

// Destroy destroys the fence.
func (f *fence) Destroy() {
	if f == nil {
		return
	}
	*f = fence{}
}

// WaitFences waits for the given fences.
func (g *GPU) WaitFences(f []driver.Fence, all bool, timeout time.Duration) error {
	if len(f) == 0 {
		return nil
	}
	deadline := time.Now().Add(timeout)
	for {
		n := 0
		for _, x := range f {
			if ok, _ := x.Signaled(); ok {
				n++
			}
		}
		if n == len(f) || (!all && n > 0) {
			return nil
		}
		if !time.Now().Before(deadline) {
			return driver.ErrTimeout
		}
		time.Sleep(pollInterval)
	}
}

// ResetFences sets the fences to the unsignaled state.
func (g *GPU) ResetFences(f []driver.Fence) error {
	for _, x := range f {
		x := x.(*fence)
		if x.state == fencePending && !x.q.completed(x.sub) {
			return errors.New("wg: cannot reset fence in use by a pending submission")
		}
		x.state = fenceUnsignaled
	}
	return nil
}
