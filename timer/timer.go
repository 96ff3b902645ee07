// timer/timer.go
package timer

import (
	"container/heap"
	"sync"
	"time"
)

// Clock supplies the current time. Rooms and the directory take a Clock so
// tests can move time by hand.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type TimerTask struct {
	Id       int64
	Execute  time.Time
	Interval time.Duration
	Callback func()
	index    int
}

type TimerQueue []*TimerTask

func (q TimerQueue) Len() int { return len(q) }

func (q TimerQueue) Less(i, j int) bool {
	if q[i].Execute.Equal(q[j].Execute) {
		return q[i].Id < q[j].Id
	}
	return q[i].Execute.Before(q[j].Execute)
}

func (q TimerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *TimerQueue) Push(x interface{}) {
	n := len(*q)
	task := x.(*TimerTask)
	task.index = n
	*q = append(*q, task)
}

func (q *TimerQueue) Pop() interface{} {
	old := *q
	n := len(old)
	task := old[n-1]
	task.index = -1
	*q = old[0 : n-1]
	return task
}

// TimerManager keeps a heap of deadlines shared by all rooms. Callbacks run
// outside the manager lock and are expected to do nothing but enqueue work
// onto the owning room.
type TimerManager struct {
	clock     Clock
	queue     TimerQueue
	mutex     sync.Mutex
	nextId    int64
	closeChan chan struct{}
	closeOnce sync.Once
}

func NewTimerManager(clock Clock) *TimerManager {
	if clock == nil {
		clock = SystemClock{}
	}
	manager := &TimerManager{
		clock:     clock,
		queue:     make(TimerQueue, 0),
		nextId:    1,
		closeChan: make(chan struct{}),
	}
	heap.Init(&manager.queue)
	return manager
}

// Clock returns the clock deadlines are measured against.
func (m *TimerManager) Clock() Clock {
	return m.clock
}

func (m *TimerManager) AddTimer(delay time.Duration, interval time.Duration, callback func()) int64 {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	task := &TimerTask{
		Id:       m.nextId,
		Execute:  m.clock.Now().Add(delay),
		Interval: interval,
		Callback: callback,
	}
	m.nextId++

	heap.Push(&m.queue, task)
	return task.Id
}

func (m *TimerManager) RemoveTimer(timerId int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for i, task := range m.queue {
		if task.Id == timerId {
			heap.Remove(&m.queue, i)
			break
		}
	}
}

// Len returns the number of scheduled tasks.
func (m *TimerManager) Len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.queue.Len()
}

// RunDue fires every task whose deadline has passed, in deadline order, and
// returns how many fired. Interval tasks are rescheduled.
func (m *TimerManager) RunDue() int {
	m.mutex.Lock()
	now := m.clock.Now()
	var due []*TimerTask
	for m.queue.Len() > 0 {
		task := m.queue[0]
		if task.Execute.After(now) {
			break
		}
		heap.Pop(&m.queue)
		due = append(due, task)

		if task.Interval > 0 {
			next := *task
			next.Execute = now.Add(task.Interval)
			heap.Push(&m.queue, &next)
		}
	}
	m.mutex.Unlock()

	for _, task := range due {
		task.Callback()
	}
	return len(due)
}

// Start polls the heap every resolution until Stop is called.
func (m *TimerManager) Start(resolution time.Duration) {
	go m.process(resolution)
}

func (m *TimerManager) Stop() {
	m.closeOnce.Do(func() { close(m.closeChan) })
}

func (m *TimerManager) process(resolution time.Duration) {
	ticker := time.NewTicker(resolution)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.RunDue()
		case <-m.closeChan:
			return
		}
	}
}
