package uuid

import (
	"fmt"

	googleuuid "github.com/google/uuid"
	"go.uber.org/atomic"
)

var (
	mock    = atomic.NewBool(false)
	counter = atomic.NewInt64(0)
)

//InitMock makes New return predictable ids: mockeduuid-1, mockeduuid-2, ...
func InitMock() {
	counter.Store(0)
	mock.Store(true)
}

func DisableMock() {
	mock.Store(false)
}

func New() string {
	if mock.Load() {
		return fmt.Sprintf("mockeduuid-%d", counter.Inc())
	}

	return googleuuid.New().String()
}

//NewWithPrefix returns prefixed id e.g. src_5d1e...
func NewWithPrefix(prefix string) string {
	return prefix + "_" + New()
}
