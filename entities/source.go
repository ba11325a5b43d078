package entities

import (
	"strings"
	"time"

	"github.com/ledgerops/warehouse/errorj"
)

//ConnectorType is a closed set of supported source connector kinds
type ConnectorType string

const (
	RelationalConnector     ConnectorType = "relational"
	DocumentConnector       ConnectorType = "document"
	CloudWarehouseConnector ConnectorType = "cloud_warehouse"
	CustomConnector         ConnectorType = "custom"
)

//ConnectorTypes is a list of all supported connector types
var ConnectorTypes = []ConnectorType{RelationalConnector, DocumentConnector, CloudWarehouseConnector, CustomConnector}

var connectorAliases = map[string]ConnectorType{
	"postgresql": RelationalConnector,
	"postgres":   RelationalConnector,
	"mysql":      RelationalConnector,
	"sqlserver":  RelationalConnector,
	"mongodb":    DocumentConnector,
	"snowflake":  CloudWarehouseConnector,
	"bigquery":   CloudWarehouseConnector,
	"redshift":   CloudWarehouseConnector,
	"clickhouse": CloudWarehouseConnector,
}

//ConnectorTypeFromString returns normalized connector type and the engine name
//engine is the alias which was used on input (e.g. postgresql) or the type itself
func ConnectorTypeFromString(value string) (ConnectorType, string, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, ct := range ConnectorTypes {
		if string(ct) == normalized {
			return ct, normalized, nil
		}
	}

	if ct, ok := connectorAliases[normalized]; ok {
		return ct, normalized, nil
	}

	return "", "", errorj.ValidationError.New("unknown connector type: [%s]. Supported: %v", value, ConnectorTypes)
}

//SourceStatus is a current state of the source. Only the sync scheduler and executor change it
type SourceStatus string

const (
	SourceDisconnected SourceStatus = "disconnected"
	SourceSyncing      SourceStatus = "syncing"
	SourceConnected    SourceStatus = "connected"
	SourceError        SourceStatus = "error"
)

//Source is a registered external system to extract data from
type Source struct {
	ID               string                 `json:"id"`
	TenantID         string                 `json:"tenant_id"`
	Name             string                 `json:"name"`
	Type             ConnectorType          `json:"type"`
	Engine           string                 `json:"engine,omitempty"`
	ConnectionString string                 `json:"connection_string,omitempty"`
	Credentials      string                 `json:"credentials,omitempty"`
	Schedule         string                 `json:"schedule,omitempty"`
	Config           map[string]interface{} `json:"config,omitempty"`

	Status          SourceStatus `json:"status"`
	RunID           string       `json:"run_id,omitempty"`
	StatusChangedAt time.Time    `json:"status_changed_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

//Clone returns a copy which is safe to modify
func (s *Source) Clone() *Source {
	clone := *s
	clone.Config = copyMap(s.Config)
	return &clone
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}

	result := make(map[string]interface{}, len(m))
	for k, v := range m {
		result[k] = v
	}
	return result
}
