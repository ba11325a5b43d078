package synchronization

import (
	"time"

	"github.com/ledgerops/warehouse/entities"
)

//priorityClass orders jobs in the queue. Manual runs go before scheduled ones
type priorityClass int64

const (
	scheduledClass priorityClass = 1
	manualClass    priorityClass = 2

	//classWeight is greater than any unix millis value so the class always dominates
	classWeight int64 = 10_000_000_000_000
)

func classOf(origin entities.Origin) priorityClass {
	if origin == entities.ScheduleOrigin {
		return scheduledClass
	}
	return manualClass
}

//jobPriority is class weight minus creation millis: within one class older jobs are popped first
func jobPriority(origin entities.Origin, createdAt time.Time) int64 {
	return int64(classOf(origin))*classWeight - createdAt.UTC().UnixMilli()
}
