package timestamp

import (
	"time"

	"go.uber.org/atomic"
)

var (
	// The value of freezed time that is used in all tests
	freezedTime = atomic.NewInt64(time.Date(2021, 06, 16, 23, 0, 0, 0, time.UTC).UnixNano())

	// Indicator shows that time was freezed or was not freezed
	timeFreezed = atomic.NewBool(false)
)

//Now returns current time or freezed time in tests
func Now() time.Time {
	if timeFreezed.Load() {
		return time.Unix(0, freezedTime.Load()).UTC()
	}
	return time.Now()
}

func FreezeTime() {
	timeFreezed.Store(true)
}

//FreezeTimeAt freezes time at t
func FreezeTimeAt(t time.Time) {
	freezedTime.Store(t.UnixNano())
	timeFreezed.Store(true)
}

//Advance moves freezed time forward
func Advance(d time.Duration) {
	freezedTime.Add(int64(d))
}

func UnfreezeTime() {
	timeFreezed.Store(false)
}
