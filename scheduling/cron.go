package scheduling

import (
	"fmt"
	"sync"

	"github.com/ledgerops/warehouse/timestamp"
	"github.com/robfig/cron/v3"
)

const (
	SourceEntity       = "source"
	PipelineEntity     = "pipeline"
	QualityCheckEntity = "quality_check"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

//CronScheduler calls registered funcs by standard cron expressions (e.g. */5 1,2,3 * * * or @hourly)
type CronScheduler struct {
	mutex *sync.RWMutex

	cronInstance *cron.Cron
	//entity key: EntryID
	scheduledEntries map[string]cron.EntryID
}

//NewCronScheduler return CronScheduler but not started!!
//for starting scheduling run CronScheduler.Start()
func NewCronScheduler() *CronScheduler {
	return &CronScheduler{
		mutex:            &sync.RWMutex{},
		cronInstance:     cron.New(cron.WithParser(parser)),
		scheduledEntries: map[string]cron.EntryID{},
	}
}

//Key returns scheduler key of the tenant entity
func Key(entityType, tenantID, id string) string {
	return fmt.Sprintf("%s_%s_%s", entityType, tenantID, id)
}

//Validate returns error if the expression can't be parsed
func Validate(scheduleTiming string) error {
	_, err := parser.Parse(scheduleTiming)
	return err
}

func (s *CronScheduler) Start() {
	s.cronInstance.Start()
}

//Schedule adds executeFunc to cron scheduler under the key
func (s *CronScheduler) Schedule(key, scheduleTiming string, executeFunc func()) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if entryID, exist := s.scheduledEntries[key]; exist {
		entry := s.cronInstance.Entry(entryID)
		return fmt.Errorf("[%s] is already scheduled (next run: %s | last run: %s)", key, entry.Next.Format(timestamp.Layout), entry.Prev.Format(timestamp.Layout))
	}

	entryID, err := s.cronInstance.AddFunc(scheduleTiming, executeFunc)
	if err != nil {
		return err
	}

	s.scheduledEntries[key] = entryID
	return nil
}

//Reschedule replaces the previous schedule of the key. Empty scheduleTiming only removes it
func (s *CronScheduler) Reschedule(key, scheduleTiming string, executeFunc func()) error {
	s.Remove(key)
	if scheduleTiming == "" {
		return nil
	}

	return s.Schedule(key, scheduleTiming, executeFunc)
}

//Remove deletes the key from cron scheduler
func (s *CronScheduler) Remove(key string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entryID, exist := s.scheduledEntries[key]
	if !exist {
		return
	}

	s.cronInstance.Remove(entryID)
	delete(s.scheduledEntries, key)
}

//IsScheduled returns true if the key has a cron entry
func (s *CronScheduler) IsScheduled(key string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	_, exist := s.scheduledEntries[key]
	return exist
}

func (s *CronScheduler) Close() error {
	<-s.cronInstance.Stop().Done()

	return nil
}
