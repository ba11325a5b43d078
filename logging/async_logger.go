package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"go.uber.org/atomic"
)

//AsyncLogger writes json lines to the underlying writer in a separate goroutine
type AsyncLogger struct {
	writer             io.WriteCloser
	objects            chan interface{}
	showInGlobalLogger bool

	closed *atomic.Bool
	mutex  sync.RWMutex
	wg     sync.WaitGroup
}

//NewAsyncLogger creates AsyncLogger and runs goroutine that reads from the channel and writes to the writer
func NewAsyncLogger(writer io.WriteCloser, showInGlobalLogger bool, capacity int) *AsyncLogger {
	logger := &AsyncLogger{
		writer:             writer,
		objects:            make(chan interface{}, capacity),
		showInGlobalLogger: showInGlobalLogger,
		closed:             atomic.NewBool(false),
	}

	logger.wg.Add(1)
	go func() {
		defer logger.wg.Done()
		for object := range logger.objects {
			logger.write(object)
		}
	}()

	return logger
}

func (al *AsyncLogger) write(object interface{}) {
	bts, err := json.Marshal(object)
	if err != nil {
		Errorf("Error marshaling object to json in async logger: %v", err)
		return
	}

	if al.showInGlobalLogger {
		Info(string(bts))
	}

	buf := bytes.NewBuffer(bts)
	buf.Write([]byte("\n"))

	if _, err := al.writer.Write(buf.Bytes()); err != nil {
		Errorf("Error writing object to log file: %v", err)
	}
}

//ConsumeAny puts object to the channel
func (al *AsyncLogger) ConsumeAny(object interface{}) error {
	al.mutex.RLock()
	defer al.mutex.RUnlock()

	if al.closed.Load() {
		return fmt.Errorf("async logger is closed")
	}

	al.objects <- object
	return nil
}

//Close flushes buffered objects and closes underlying writer
func (al *AsyncLogger) Close() error {
	al.mutex.Lock()
	if !al.closed.CAS(false, true) {
		al.mutex.Unlock()
		return nil
	}
	close(al.objects)
	al.mutex.Unlock()

	al.wg.Wait()

	if err := al.writer.Close(); err != nil {
		return fmt.Errorf("Error closing writer: %v", err)
	}
	return nil
}
