package queue

import (
	"context"
	"errors"
	"io"
)

var (
	ErrQueueClosed = errors.New("queue is closed")
)

//Queue is a priority queue of background jobs
type Queue interface {
	io.Closer
	Push(value interface{}, priority int64) error
	//Pop returns the element with the highest priority or waits until one is pushed
	Pop(ctx context.Context) (interface{}, error)
	Size() int64
}
