// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package vk

import (
	"errors"
	"math"
	"slices"
	"sync"
	"time"

	vk "github.com/goki/vulkan"

	"github.com/gviegas/rhi/driver"
)

// submission tracks the completion of a queue submission.
type submission struct {
	f    vk.Fence
	done bool
}

// queue implements driver.Queue.
type queue struct {
	g   *GPU
	q   vk.Queue
	typ driver.QueueType
	fam int

	// mu serializes access to q and to the fields below.
	mu       sync.Mutex
	inflight []*submission
	fences   []vk.Fence
}

// Type returns the queue's type.
func (q *queue) Type() driver.QueueType { return q.typ }

// Family returns the queue's family index.
func (q *queue) Family() int { return q.fam }

// poll checks whether s completed.
// The caller must hold q.mu.
func (q *queue) poll(s *submission) bool {
	if s.done {
		return true
	}
	if vk.GetFenceStatus(q.g.dev, s.f) != vk.Success {
		return false
	}
	s.done = true
	return true
}

// completed returns whether s has finished executing.
func (q *queue) completed(s *submission) bool {
	if s == nil {
		return true
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.poll(s)
}

// recycle returns the fences of completed submissions to
// the free list.
// The caller must hold q.mu.
func (q *queue) recycle() {
	n := 0
	for _, s := range q.inflight {
		if q.poll(s) {
			if vk.ResetFences(q.g.dev, 1, []vk.Fence{s.f}) == vk.Success {
				q.fences = append(q.fences, s.f)
			} else {
				vk.DestroyFence(q.g.dev, s.f, nil)
			}
			s.f = vk.NullFence
			continue
		}
		q.inflight[n] = s
		n++
	}
	clear(q.inflight[n:])
	q.inflight = q.inflight[:n]
}

// newSubmission creates a submission with an unsignaled
// fence.
// The caller must hold q.mu.
func (q *queue) newSubmission() (*submission, error) {
	q.recycle()
	if n := len(q.fences); n > 0 {
		f := q.fences[n-1]
		q.fences = q.fences[:n-1]
		return &submission{f: f}, nil
	}
	info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	var f vk.Fence
	if err := checkResult(vk.CreateFence(q.g.dev, &info, nil, &f)); err != nil {
		return nil, err
	}
	return &submission{f: f}, nil
}

// Submit submits command buffers for execution.
func (q *queue) Submit(s *driver.Submit) error {
	_, err := q.submit(s)
	return err
}

func (q *queue) submit(s *driver.Submit) (*submission, error) {
	cbs := make([]vk.CommandBuffer, len(s.Cmds))
	for i, c := range s.Cmds {
		cb := c.(*cmdBuffer)
		if cb.pool.q != q {
			panic("vk: command buffer submitted to the wrong queue")
		}
		if cb.m.State() != driver.CmdExecutable {
			panic("vk: Submit: command buffer not executable (state " + cb.m.State().String() + ")")
		}
		cbs[i] = cb.cb
	}
	wait := make([]vk.Semaphore, len(s.Wait))
	stages := make([]vk.PipelineStageFlags, len(s.Wait))
	for i, w := range s.Wait {
		sem := w.Sem.(*semaphore)
		if !sem.signaled {
			panic("vk: Submit: wait on unsignaled semaphore")
		}
		wait[i] = sem.sem
		stg := w.Stage
		if stg == driver.SNone {
			stg = driver.SAll
		}
		stages[i] = convSync(stg, false)
	}
	signal := make([]vk.Semaphore, len(s.Signal))
	for i, x := range s.Signal {
		signal[i] = x.(*semaphore).sem
	}
	var f *fence
	if s.Fence != nil {
		f = s.Fence.(*fence)
		if f.state != fenceUnsignaled {
			panic("vk: Submit: fence must be reset before submission")
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	sub, err := q.newSubmission()
	if err != nil {
		return nil, err
	}
	info := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(wait)),
		PWaitSemaphores:      wait,
		PWaitDstStageMask:    stages,
		CommandBufferCount:   uint32(len(cbs)),
		PCommandBuffers:      cbs,
		SignalSemaphoreCount: uint32(len(signal)),
		PSignalSemaphores:    signal,
	}
	if err := checkResult(queueSubmit(q.q, 1, []vk.SubmitInfo{info}, sub.f)); err != nil {
		q.fences = append(q.fences, sub.f)
		return nil, err
	}
	// The work is queued from here on, whether or not the
	// fence can be signaled.
	q.inflight = append(q.inflight, sub)
	for _, c := range s.Cmds {
		cb := c.(*cmdBuffer)
		cb.m.Submit()
		cb.sub = sub
	}
	for _, w := range s.Wait {
		w.Sem.(*semaphore).signaled = false
	}
	for _, x := range s.Signal {
		x.(*semaphore).signaled = true
	}
	// A submission with no batches signals its fence once
	// every previous submission completes.
	if f != nil {
		if err := checkResult(queueSubmit(q.q, 0, nil, f.f)); err != nil {
			return sub, err
		}
		f.state = fencePending
	}
	return sub, nil
}

// queueSubmit is vk.QueueSubmit.
// Tests replace it to make submission fail.
var queueSubmit = vk.QueueSubmit

// Present presents a swapchain image.
func (q *queue) Present(sc driver.Swapchain, index int, wait []driver.Semaphore) error {
	sems := make([]vk.Semaphore, len(wait))
	for i, s := range wait {
		sem := s.(*semaphore)
		if !sem.signaled {
			panic("vk: Present: wait on unsignaled semaphore")
		}
		sems[i] = sem.sem
	}
	err := sc.(*swapchain).present(q, index, sems)
	for _, s := range wait {
		s.(*semaphore).signaled = false
	}
	return err
}

// ImmediateSubmit submits cb and waits for completion.
func (q *queue) ImmediateSubmit(cb []driver.CmdBuffer) error {
	sub, err := q.submit(&driver.Submit{Cmds: cb})
	if err != nil {
		return err
	}
	// Take sub out of the in-flight list so its fence is
	// not recycled while waited on.
	q.mu.Lock()
	q.inflight = slices.DeleteFunc(q.inflight, func(s *submission) bool { return s == sub })
	q.mu.Unlock()
	err = checkResult(vk.WaitForFences(q.g.dev, 1, []vk.Fence{sub.f}, vk.True, math.MaxUint64))
	q.mu.Lock()
	q.inflight = append(q.inflight, sub)
	if err == nil {
		sub.done = true
		q.recycle()
	}
	q.mu.Unlock()
	return err
}

// WaitIdle blocks until the queue is idle.
func (q *queue) WaitIdle() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return checkResult(vk.QueueWaitIdle(q.q))
}

// destroy destroys the queue's fences.
// The device must be idle.
func (q *queue) destroy() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, s := range q.inflight {
		vk.DestroyFence(q.g.dev, s.f, nil)
	}
	for _, f := range q.fences {
		vk.DestroyFence(q.g.dev, f, nil)
	}
	q.inflight = nil
	q.fences = nil
}

// semaphore implements driver.Semaphore.
// signaled records whether a signal operation is
// outstanding, so waits on semaphores that will never be
// signaled can be caught.
type semaphore struct {
	g        *GPU
	sem      vk.Semaphore
	signaled bool
}

// NewSemaphore creates a new semaphore.
func (g *GPU) NewSemaphore() (driver.Semaphore, error) {
	info := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	var sem vk.Semaphore
	if err := checkResult(vk.CreateSemaphore(g.dev, &info, nil, &sem)); err != nil {
		return nil, err
	}
	return &semaphore{g: g, sem: sem}, nil
}

// Destroy destroys the semaphore.
func (s *semaphore) Destroy() {
	if s == nil {
		return
	}
	if s.g != nil {
		vk.DestroySemaphore(s.g.dev, s.sem, nil)
	}
	*s = semaphore{}
}

const (
	fenceUnsignaled = iota
	fencePending
	fenceSignaled
)

// fence implements driver.Fence.
type fence struct {
	g     *GPU
	f     vk.Fence
	state int
}

// NewFence creates a new fence.
func (g *GPU) NewFence(signaled bool) (driver.Fence, error) {
	info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var f vk.Fence
	if err := checkResult(vk.CreateFence(g.dev, &info, nil, &f)); err != nil {
		return nil, err
	}
	x := &fence{g: g, f: f}
	if signaled {
		x.state = fenceSignaled
	}
	return x, nil
}

// Signaled returns whether the fence is signaled.
func (f *fence) Signaled() (bool, error) {
	if f.state == fencePending {
		switch res := vk.GetFenceStatus(f.g.dev, f.f); res {
		case vk.Success:
			f.state = fenceSignaled
		case vk.NotReady:
		default:
			return false, checkResult(res)
		}
	}
	return f.state == fenceSignaled, nil
}

// Destroy destroys the fence.
func (f *fence) Destroy() {
	if f == nil {
		return
	}
	if f.g != nil {
		vk.DestroyFence(f.g.dev, f.f, nil)
	}
	*f = fence{}
}

// WaitFences waits for the given fences.
func (g *GPU) WaitFences(f []driver.Fence, all bool, timeout time.Duration) error {
	if len(f) == 0 {
		return nil
	}
	fs := make([]vk.Fence, len(f))
	for i, x := range f {
		fs[i] = x.(*fence).f
	}
	waitAll := vk.Bool32(vk.False)
	if all {
		waitAll = vk.True
	}
	res := vk.WaitForFences(g.dev, uint32(len(fs)), fs, waitAll, uint64(max(timeout, 0)))
	if res == vk.Timeout {
		return driver.ErrTimeout
	}
	if err := checkResult(res); err != nil {
		return err
	}
	for _, x := range f {
		if _, err := x.Signaled(); err != nil {
			return err
		}
	}
	return nil
}

// ResetFences sets the fences to the unsignaled state.
func (g *GPU) ResetFences(f []driver.Fence) error {
	fs := make([]vk.Fence, 0, len(f))
	for _, x := range f {
		x := x.(*fence)
		if ok, err := x.Signaled(); err != nil {
			return err
		} else if !ok && x.state == fencePending {
			return errors.New("vk: cannot reset fence in use by a pending submission")
		}
		fs = append(fs, x.f)
	}
	if len(fs) == 0 {
		return nil
	}
	if err := checkResult(vk.ResetFences(g.dev, uint32(len(fs)), fs)); err != nil {
		return err
	}
	for _, x := range f {
		x.(*fence).state = fenceUnsignaled
	}
	return nil
}
