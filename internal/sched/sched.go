// Package sched provides cancellable delayed tasks that run on the
// engine's single worker.
package sched

import (
	"sync"
	"time"
)

// Task is a handle to a scheduled function
type Task interface {
	// Cancel prevents the function from running. It reports whether the
	// task was still pending.
	Cancel() bool
}

// Timers schedules functions to run after a delay
type Timers interface {
	AfterFunc(d time.Duration, f func()) Task
}

// Clock returns the current time
type Clock func() time.Time

// WorkerTimers runs elapsed tasks through post, which hands them to the worker
type WorkerTimers struct {
	post func(func())
}

// NewWorkerTimers creates timers whose callbacks are serialized through post
func NewWorkerTimers(post func(func())) *WorkerTimers {
	return &WorkerTimers{post: post}
}

// AfterFunc schedules f to be posted to the worker after d
func (w *WorkerTimers) AfterFunc(d time.Duration, f func()) Task {
	t := &workerTask{}
	t.timer = time.AfterFunc(d, func() {
		w.post(func() {
			// Cancel may have run on the worker after the timer fired
			// but before this job was dequeued.
			if t.finish() {
				f()
			}
		})
	})
	return t
}

type workerTask struct {
	mu    sync.Mutex
	timer *time.Timer
	done  bool
}

func (t *workerTask) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	t.timer.Stop()
	return true
}

func (t *workerTask) finish() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}
