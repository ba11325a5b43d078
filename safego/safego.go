package safego

import (
	"time"

	"go.uber.org/atomic"
)

const defaultRestartTimeout = 2 * time.Second

type RecoverHandler func(value interface{})

//GlobalRecoverHandler is called on every recovered panic. main sets it to the system error logger
var GlobalRecoverHandler RecoverHandler = func(value interface{}) {}

//Execution is a background goroutine which survives panics
type Execution struct {
	f              func()
	recoverHandler RecoverHandler
	restartTimeout *atomic.Duration
	stopped        *atomic.Bool
	panics         *atomic.Int64
}

func newExecution(f func(), restartTimeout time.Duration) *Execution {
	return &Execution{
		f:              f,
		recoverHandler: GlobalRecoverHandler,
		restartTimeout: atomic.NewDuration(restartTimeout),
		stopped:        atomic.NewBool(false),
		panics:         atomic.NewInt64(0),
	}
}

//Run runs f in a new goroutine. A panic is passed to GlobalRecoverHandler and f isn't restarted
func Run(f func()) *Execution {
	return newExecution(f, 0).start()
}

//RunWithRestart runs f in a new goroutine. After a panic f is restarted in 2 seconds until Stop is called
func RunWithRestart(f func()) *Execution {
	return newExecution(f, defaultRestartTimeout).start()
}

func (exec *Execution) start() *Execution {
	go exec.loop()
	return exec
}

func (exec *Execution) loop() {
	for !exec.stopped.Load() {
		if !exec.runOnce() {
			return
		}

		timeout := exec.restartTimeout.Load()
		if timeout <= 0 {
			return
		}
		time.Sleep(timeout)
	}
}

//runOnce returns true if f has panicked
func (exec *Execution) runOnce() (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			exec.panics.Inc()
			exec.recoverHandler(r)
			panicked = true
		}
	}()

	exec.f()
	return false
}

func (exec *Execution) WithRestartTimeout(timeout time.Duration) *Execution {
	exec.restartTimeout.Store(timeout)
	return exec
}

//Stop disables restarts. The running f isn't interrupted
func (exec *Execution) Stop() {
	exec.stopped.Store(true)
}

//Panics returns number of recovered panics
func (exec *Execution) Panics() int64 {
	return exec.panics.Load()
}
