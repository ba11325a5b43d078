package meta

import (
	"errors"
	"net"
	"strings"

	"github.com/gomodule/redigo/redis"
)

//ErrorMetrics counts redis errors by type label
type ErrorMetrics struct {
	metricFunc func(string)
}

func NewErrorMetrics(metricFunc func(string)) *ErrorMetrics {
	return &ErrorMetrics{metricFunc: metricFunc}
}

func (em *ErrorMetrics) NoticeError(err error) {
	if err != nil {
		em.metricFunc(redisErrorType(err))
	}
}

func redisErrorType(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, redis.ErrPoolExhausted):
		return "ERR_POOL_EXHAUSTED"
	case errors.Is(err, redis.ErrNil):
		return "ERR_NIL"
	case errors.As(err, &netErr) && netErr.Timeout(), strings.Contains(strings.ToLower(err.Error()), "timeout"):
		return "ERR_TIMEOUT"
	default:
		return "UNKNOWN"
	}
}
