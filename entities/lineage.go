package entities

import (
	"strings"
	"time"

	"github.com/ledgerops/warehouse/errorj"
)

type LineageNodeType string

const (
	LineageSource         LineageNodeType = "source"
	LineageTransformation LineageNodeType = "transformation"
	LineageTarget         LineageNodeType = "target"
)

//LineageNodeTypeFromString returns empty type for empty value (it will be inferred)
func LineageNodeTypeFromString(value string) (LineageNodeType, error) {
	switch LineageNodeType(strings.ToLower(strings.TrimSpace(value))) {
	case "":
		return "", nil
	case LineageSource:
		return LineageSource, nil
	case LineageTransformation:
		return LineageTransformation, nil
	case LineageTarget:
		return LineageTarget, nil
	default:
		return "", errorj.ValidationError.New("unknown lineage node type: [%s]. Supported: [source, transformation, target]", value)
	}
}

//LineageEdge is an append-only fact: data flows From -> To
type LineageEdge struct {
	ID        string                 `json:"id"`
	TenantID  string                 `json:"tenant_id"`
	From      string                 `json:"from"`
	FromType  LineageNodeType        `json:"from_type"`
	To        string                 `json:"to"`
	ToType    LineageNodeType        `json:"to_type"`
	Label     string                 `json:"label,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

type LineageNode struct {
	ID    string          `json:"id"`
	Type  LineageNodeType `json:"type"`
	Name  string          `json:"name"`
	Level int             `json:"level"`
}

type LineageGraph struct {
	Nodes []LineageNode `json:"nodes"`
	Edges []LineageEdge `json:"edges"`
}
