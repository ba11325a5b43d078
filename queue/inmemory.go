package queue

import (
	"context"
	"sort"
	"sync"
)

type element struct {
	value    interface{}
	priority int64
	sequence uint64
}

//InMemory is an in-memory Mutex+slice based priority Queue
//elements with equal priority are returned in FIFO order
type InMemory struct {
	mutex    sync.Mutex
	slice    []element
	sequence uint64

	//notEmpty has capacity 1 and signals waiting Pop calls that an element was pushed
	notEmpty chan struct{}
	closed   chan struct{}
	once     sync.Once
}

func NewInMemory() *InMemory {
	return &InMemory{
		slice:    make([]element, 0, 30),
		notEmpty: make(chan struct{}, 1),
		closed:   make(chan struct{}),
	}
}

//Push enqueues an element. Returns ErrQueueClosed if queue is closed
func (im *InMemory) Push(value interface{}, priority int64) error {
	select {
	case <-im.closed:
		return ErrQueueClosed
	default:
	}

	im.mutex.Lock()
	im.sequence++
	e := element{value: value, priority: priority, sequence: im.sequence}
	//keep slice sorted by priority desc, then by sequence asc
	i := sort.Search(len(im.slice), func(i int) bool {
		return im.slice[i].priority < priority
	})
	im.slice = append(im.slice, element{})
	copy(im.slice[i+1:], im.slice[i:])
	im.slice[i] = e
	im.mutex.Unlock()

	select {
	case im.notEmpty <- struct{}{}:
	default:
	}

	return nil
}

//Pop dequeues an element (if exist) or waits until the next element gets enqueued and returns it.
//When the passed context expires this function exits and returns the context' error
func (im *InMemory) Pop(ctx context.Context) (interface{}, error) {
	for {
		select {
		case <-im.closed:
			return nil, ErrQueueClosed
		default:
		}

		if value, ok := im.dequeue(); ok {
			return value, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-im.closed:
			return nil, ErrQueueClosed
		case <-im.notEmpty:
		}
	}
}

//Size returns the number of enqueued elements
func (im *InMemory) Size() int64 {
	im.mutex.Lock()
	defer im.mutex.Unlock()

	return int64(len(im.slice))
}

func (im *InMemory) Close() error {
	im.once.Do(func() {
		close(im.closed)
	})
	return nil
}

func (im *InMemory) dequeue() (interface{}, bool) {
	im.mutex.Lock()
	defer im.mutex.Unlock()

	if len(im.slice) == 0 {
		return nil, false
	}

	e := im.slice[0]
	im.slice[0] = element{}
	im.slice = im.slice[1:]

	//wake up another waiter if there are more elements
	if len(im.slice) > 0 {
		select {
		case im.notEmpty <- struct{}{}:
		default:
		}
	}
	return e.value, true
}
