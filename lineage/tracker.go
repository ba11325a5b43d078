package lineage

import (
	"context"
	"sort"
	"strings"

	"github.com/ledgerops/warehouse/entities"
	"github.com/ledgerops/warehouse/errorj"
	"github.com/ledgerops/warehouse/meta"
	"github.com/ledgerops/warehouse/timestamp"
	"github.com/ledgerops/warehouse/uuid"
)

const (
	pipelineLabel = "pipeline"
	loadLabel     = "load"
)

//TransformationRequest is a data flow fact: Source -> Target. Node types are inferred if empty
type TransformationRequest struct {
	Source     string                 `json:"source"`
	SourceType string                 `json:"source_type,omitempty"`
	Target     string                 `json:"target"`
	TargetType string                 `json:"target_type,omitempty"`
	Type       string                 `json:"type,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

//Tracker keeps an advisory lineage graph per tenant. It isn't transactionally consistent with executions
type Tracker struct {
	storage meta.Storage
}

func NewTracker(storage meta.Storage) *Tracker {
	return &Tracker{storage: storage}
}

//RecordTransformation appends an edge
func (t *Tracker) RecordTransformation(ctx context.Context, tenantID string, req *TransformationRequest) (*entities.LineageEdge, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, errorj.ValidationError.New("tenant id is required")
	}

	from, to := strings.TrimSpace(req.Source), strings.TrimSpace(req.Target)
	if from == "" || to == "" {
		return nil, errorj.ValidationError.New("'source' and 'target' are required")
	}
	if from == to {
		return nil, errorj.ValidationError.New("'source' and 'target' must be different nodes")
	}

	fromType, err := entities.LineageNodeTypeFromString(req.SourceType)
	if err != nil {
		return nil, err
	}
	toType, err := entities.LineageNodeTypeFromString(req.TargetType)
	if err != nil {
		return nil, err
	}

	if fromType == "" || toType == "" {
		known, err := t.knownNodes(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		if fromType == "" {
			fromType = known.infer(from)
		}
		if toType == "" {
			toType = known.infer(to)
		}
	}

	edge := &entities.LineageEdge{
		ID:        uuid.New(),
		TenantID:  tenantID,
		From:      from,
		FromType:  fromType,
		To:        to,
		ToType:    toType,
		Label:     strings.TrimSpace(req.Type),
		Metadata:  req.Metadata,
		CreatedAt: timestamp.Now().UTC(),
	}

	if err := t.storage.AppendEdge(ctx, edge); err != nil {
		return nil, errorj.StorageError.Wrap(err, "error appending lineage edge")
	}
	return edge, nil
}

//RecordPipeline appends source -> pipeline and pipeline -> destination edges if they don't exist yet
func (t *Tracker) RecordPipeline(ctx context.Context, pipeline *entities.Pipeline) error {
	edges, err := t.storage.ListEdges(ctx, pipeline.TenantID)
	if err != nil {
		return err
	}

	existing := map[[2]string]bool{}
	for _, edge := range edges {
		existing[[2]string{edge.From, edge.To}] = true
	}

	facts := []*entities.LineageEdge{{From: pipeline.SourceID, FromType: entities.LineageSource, To: pipeline.ID, ToType: entities.LineageTransformation, Label: pipelineLabel}}
	if pipeline.Destination != "" {
		facts = append(facts, &entities.LineageEdge{From: pipeline.ID, FromType: entities.LineageTransformation, To: pipeline.Destination, ToType: entities.LineageTarget, Label: loadLabel})
	}

	now := timestamp.Now().UTC()
	for _, edge := range facts {
		if existing[[2]string{edge.From, edge.To}] {
			continue
		}

		edge.ID = uuid.New()
		edge.TenantID = pipeline.TenantID
		edge.Metadata = map[string]interface{}{"pipeline_id": pipeline.ID, "steps": len(pipeline.Steps)}
		edge.CreatedAt = now
		if err := t.storage.AppendEdge(ctx, edge); err != nil {
			return err
		}
	}
	return nil
}

//Graph returns all nodes with their depth level (longest path from a root) and all edges.
//Nodes are ordered by level and id, edges by creation time
func (t *Tracker) Graph(ctx context.Context, tenantID string) (*entities.LineageGraph, error) {
	edges, err := t.storage.ListEdges(ctx, tenantID)
	if err != nil {
		return nil, errorj.StorageError.Wrap(err, "error listing lineage edges")
	}

	known, err := t.knownNodes(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	graph := build(edges)
	levels := graph.levels()

	nodes := make([]entities.LineageNode, 0, len(graph.types))
	for id, nodeType := range graph.types {
		nodes = append(nodes, entities.LineageNode{ID: id, Type: nodeType, Name: known.name(id), Level: levels[id]})
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Level != nodes[j].Level {
			return nodes[i].Level < nodes[j].Level
		}
		return nodes[i].ID < nodes[j].ID
	})

	resultEdges := make([]entities.LineageEdge, 0, len(graph.edges))
	for _, edge := range graph.edges {
		resultEdges = append(resultEdges, *edge)
	}

	return &entities.LineageGraph{Nodes: nodes, Edges: resultEdges}, nil
}

//Impact returns sorted ids of all nodes which are transitively downstream of the node
func (t *Tracker) Impact(ctx context.Context, tenantID, nodeID string) ([]string, error) {
	edges, err := t.storage.ListEdges(ctx, tenantID)
	if err != nil {
		return nil, errorj.StorageError.Wrap(err, "error listing lineage edges")
	}

	graph := build(edges)
	if _, ok := graph.types[nodeID]; !ok {
		return nil, errorj.NotFoundError.New("lineage node not found: [%s]", nodeID)
	}

	return graph.downstream(nodeID), nil
}

//knownNodes are registered sources, pipelines and their destinations of the tenant
type knownNodes struct {
	sources      map[string]string
	pipelines    map[string]string
	destinations map[string]bool
}

func (t *Tracker) knownNodes(ctx context.Context, tenantID string) (*knownNodes, error) {
	sources, err := t.storage.ListSources(ctx, tenantID)
	if err != nil {
		return nil, errorj.StorageError.Wrap(err, "error listing sources")
	}
	pipelines, err := t.storage.ListPipelines(ctx, tenantID, "")
	if err != nil {
		return nil, errorj.StorageError.Wrap(err, "error listing pipelines")
	}

	known := &knownNodes{sources: map[string]string{}, pipelines: map[string]string{}, destinations: map[string]bool{}}
	for _, source := range sources {
		known.sources[source.ID] = source.Name
	}
	for _, pipeline := range pipelines {
		known.pipelines[pipeline.ID] = pipeline.Name
		if pipeline.Destination != "" {
			known.destinations[pipeline.Destination] = true
		}
	}
	return known, nil
}

func (kn *knownNodes) infer(id string) entities.LineageNodeType {
	if _, ok := kn.sources[id]; ok {
		return entities.LineageSource
	}
	if kn.destinations[id] {
		return entities.LineageTarget
	}
	return entities.LineageTransformation
}

func (kn *knownNodes) name(id string) string {
	if name, ok := kn.sources[id]; ok && name != "" {
		return name
	}
	if name, ok := kn.pipelines[id]; ok && name != "" {
		return name
	}
	return id
}
