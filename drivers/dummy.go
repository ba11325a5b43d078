package drivers

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ledgerops/warehouse/entities"
	"github.com/ledgerops/warehouse/errorj"
)

//DummyConfig is read from the source config. All fields are optional:
//an empty config means zero records and 100% quality
type DummyConfig struct {
	Records       int64         `mapstructure:"records"`
	FailedRecords int64         `mapstructure:"failed_records"`
	Delay         time.Duration `mapstructure:"delay"`
	//Error fails every extraction permanently
	Error string `mapstructure:"error"`
	//TransientFailures is a number of extractions in a row which fail with a retryable error
	TransientFailures int      `mapstructure:"transient_failures"`
	PassRate          *float64 `mapstructure:"pass_rate"`
	ProfileError      string   `mapstructure:"profile_error"`
}

//Dummy is a connector which doesn't do any I/O. It is bound to every connector type by default
type Dummy struct {
	mutex    sync.Mutex
	failures map[string]int
}

func NewDummy() *Dummy {
	return &Dummy{failures: map[string]int{}}
}

//Validate checks connection string format and config
func (d *Dummy) Validate(ctx context.Context, source *entities.Source) error {
	if source.ConnectionString != "" && strings.Contains(source.ConnectionString, "://") {
		u, err := url.Parse(source.ConnectionString)
		if err != nil || u.Scheme == "" {
			return errorj.ValidationError.New("malformed connection string")
		}
	}

	_, err := d.config(source)
	return err
}

func (d *Dummy) Extract(ctx context.Context, source *entities.Source, jobType entities.JobType) (Result, error) {
	config, err := d.config(source)
	if err != nil {
		return Result{}, err
	}

	if config.Delay > 0 {
		timer := time.NewTimer(config.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-timer.C:
		}
	}

	if config.Error != "" {
		return Result{}, errorj.ConnectorError.New("%s", config.Error).WithProperty(errorj.EntityID, source.ID)
	}

	if d.shouldFailTransiently(source, config.TransientFailures) {
		return Result{}, errorj.TransientConnectorError.New("source [%s] is temporarily unavailable", source.ID)
	}

	if jobType == entities.ValidationJob || jobType == entities.QualityCheckJob {
		//read-only jobs: records are checked, not loaded
		return Result{Processed: config.Records}, nil
	}

	return Result{Processed: config.Records, Failed: config.FailedRecords}, nil
}

//Profile returns configured pass_rate or 100
func (d *Dummy) Profile(ctx context.Context, source *entities.Source, rule entities.QualityRule) (float64, error) {
	config, err := d.config(source)
	if err != nil {
		return 0, err
	}

	if config.ProfileError != "" {
		return 0, errorj.ConnectorError.New("%s", config.ProfileError)
	}

	if config.PassRate == nil {
		return 100, nil
	}

	return *config.PassRate, nil
}

func (d *Dummy) shouldFailTransiently(source *entities.Source, limit int) bool {
	if limit <= 0 {
		return false
	}

	key := source.TenantID + "/" + source.ID
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.failures[key] < limit {
		d.failures[key]++
		return true
	}

	delete(d.failures, key)
	return false
}

func (d *Dummy) config(source *entities.Source) (*DummyConfig, error) {
	config := &DummyConfig{}
	if err := decodeConfig(source.Config, config); err != nil {
		return nil, errorj.ValidationError.New("malformed source config: %v", err)
	}
	if config.Records < 0 || config.FailedRecords < 0 {
		return nil, errorj.ValidationError.New("records counters can't be negative")
	}
	return config, nil
}
