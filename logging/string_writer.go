package logging

import (
	"bytes"
	"sync"
)

//StringWriter is an in-memory writer which is used in tests
type StringWriter struct {
	mutex sync.Mutex
	buf   *bytes.Buffer
}

func NewStringWriter() *StringWriter {
	return &StringWriter{buf: bytes.NewBuffer(nil)}
}

func (sw *StringWriter) Write(p []byte) (int, error) {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()
	return sw.buf.Write(p)
}

func (sw *StringWriter) String() string {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()
	return sw.buf.String()
}

func (sw *StringWriter) Close() error {
	return nil
}
