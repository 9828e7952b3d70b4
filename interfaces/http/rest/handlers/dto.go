package handlers

import (
	"github.com/suibari/graph-be-more-blue/domain/core/aggregates"
	"github.com/suibari/graph-be-more-blue/domain/core/entities"
	"github.com/suibari/graph-be-more-blue/domain/core/valueobjects"
)

// GraphDTO is the wire form of a graph snapshot: element lists in the
// shape graph rendering libraries consume directly.
type GraphDTO struct {
	Nodes []NodeElement `json:"nodes"`
	Edges []EdgeElement `json:"edges"`
}

// NodeElement wraps node payloads in an element envelope.
type NodeElement struct {
	Data NodeDTO `json:"data"`
}

// EdgeElement wraps edge payloads in an element envelope.
type EdgeElement struct {
	Data EdgeDTO `json:"data"`
}

// NodeDTO is the wire form of one graph node.
type NodeDTO struct {
	ID            string                        `json:"id"`
	Image         string                        `json:"img"`
	Name          string                        `json:"name"`
	Handle        string                        `json:"handle"`
	Rank          float64                       `json:"rank"`
	Introductions []entities.IntroductionRecord `json:"introductions"`
	Tags          []string                      `json:"tags"`
}

// EdgeDTO is the wire form of one directed edge.
type EdgeDTO struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

func toGraphDTO(g *aggregates.Graph) GraphDTO {
	dto := GraphDTO{
		Nodes: make([]NodeElement, 0, g.NodeCount()),
		Edges: make([]EdgeElement, 0, g.EdgeCount()),
	}
	for _, node := range g.Nodes() {
		dto.Nodes = append(dto.Nodes, NodeElement{Data: NodeDTO{
			ID:            node.ID.String(),
			Image:         node.Image,
			Name:          node.Name,
			Handle:        node.Handle.String(),
			Rank:          node.Rank,
			Introductions: node.Introductions,
			Tags:          node.Tags,
		}})
	}
	for _, edge := range g.Edges() {
		dto.Edges = append(dto.Edges, EdgeElement{Data: EdgeDTO{
			Source: edge.Source.String(),
			Target: edge.Target.String(),
		}})
	}
	return dto
}

// fromGraphDTO rebuilds the aggregate from a client-supplied snapshot.
// Malformed elements are dropped rather than rejected: the merge endpoint
// must tolerate snapshots assembled by older clients.
func fromGraphDTO(dto GraphDTO) *aggregates.Graph {
	g := aggregates.NewGraph()
	for _, element := range dto.Nodes {
		id, err := valueobjects.NewIdentity(element.Data.ID)
		if err != nil {
			continue
		}
		g.AddNode(&entities.Node{
			ID:            id,
			Image:         element.Data.Image,
			Name:          element.Data.Name,
			Handle:        valueobjects.Handle(element.Data.Handle),
			Rank:          element.Data.Rank,
			Introductions: element.Data.Introductions,
			Tags:          element.Data.Tags,
		})
	}
	for _, element := range dto.Edges {
		source, err := valueobjects.NewIdentity(element.Data.Source)
		if err != nil {
			continue
		}
		target, err := valueobjects.NewIdentity(element.Data.Target)
		if err != nil {
			continue
		}
		g.AddEdge(source, target)
	}
	return g
}
