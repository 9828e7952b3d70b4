package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suibari/graph-be-more-blue/domain/core/aggregates"
	"github.com/suibari/graph-be-more-blue/domain/core/entities"
	"github.com/suibari/graph-be-more-blue/domain/core/valueobjects"
)

func intro(author, subject string, tags ...string) entities.IntroductionRecord {
	return entities.IntroductionRecord{
		Author:  valueobjects.Identity(author),
		Subject: valueobjects.Identity(subject),
		Body:    "nice person",
		Tags:    tags,
	}
}

func baseGraph() *aggregates.Graph {
	g := aggregates.NewGraph()
	g.AddNode(&entities.Node{ID: "did:plc:a", Name: "Alice"})
	g.AddNode(&entities.Node{
		ID:            "did:plc:b",
		Name:          "Bob",
		Introductions: []entities.IntroductionRecord{intro("did:plc:a", "did:plc:b")},
	})
	g.AddEdge("did:plc:a", "did:plc:b")
	return g
}

func TestMerger_AddsNewNodesAndEdges(t *testing.T) {
	existing := baseGraph()

	incoming := aggregates.NewGraph()
	incoming.AddNode(&entities.Node{ID: "did:plc:b", Name: "Bob"})
	incoming.AddNode(&entities.Node{
		ID:            "did:plc:c",
		Name:          "Carol",
		Introductions: []entities.IntroductionRecord{intro("did:plc:b", "did:plc:c")},
	})
	incoming.AddEdge("did:plc:b", "did:plc:c")

	result := NewMerger().Merge(existing, incoming, "did:plc:b")

	require.True(t, result.Changed)
	require.NotNil(t, result.Graph)
	assert.Equal(t, 3, result.Graph.NodeCount())
	assert.True(t, result.Graph.HasEdge("did:plc:a", "did:plc:b"))
	assert.True(t, result.Graph.HasEdge("did:plc:b", "did:plc:c"))

	// Inputs stay untouched.
	assert.Equal(t, 2, existing.NodeCount())
	assert.Equal(t, 2, incoming.NodeCount())
}

func TestMerger_DeduplicatesIntroductions(t *testing.T) {
	existing := baseGraph()

	incoming := aggregates.NewGraph()
	incoming.AddNode(&entities.Node{
		ID:            "did:plc:b",
		Name:          "Bob",
		Introductions: []entities.IntroductionRecord{intro("did:plc:a", "did:plc:b")},
	})

	result := NewMerger().Merge(existing, incoming, "did:plc:b")

	assert.False(t, result.Changed)
	assert.Nil(t, result.Graph)
}

func TestMerger_NewIntroductionAppendsAndUnionsTags(t *testing.T) {
	existing := aggregates.NewGraph()
	existing.AddNode(&entities.Node{
		ID:            "did:plc:b",
		Name:          "Bob",
		Tags:          []string{"artist"},
		Introductions: []entities.IntroductionRecord{intro("did:plc:a", "did:plc:b", "artist")},
	})

	// The incoming subgraph only knows its own introduction, so its node
	// carries only that introduction's tag.
	incoming := aggregates.NewGraph()
	incoming.AddNode(&entities.Node{
		ID:   "did:plc:b",
		Name: "Bob",
		Tags: []string{"musician"},
		Introductions: []entities.IntroductionRecord{
			intro("did:plc:z", "did:plc:b", "musician"),
		},
	})

	result := NewMerger().Merge(existing, incoming, "did:plc:b")

	require.True(t, result.Changed)
	merged := result.Graph.Node("did:plc:b")
	require.NotNil(t, merged)
	assert.Len(t, merged.Introductions, 2)
	// Tags accumulated from earlier introductions survive the merge.
	assert.Equal(t, []string{"artist", "musician"}, merged.Tags)
}

func TestMerger_AttributeOverwriteAloneIsNotAChange(t *testing.T) {
	existing := baseGraph()

	incoming := aggregates.NewGraph()
	incoming.AddNode(&entities.Node{ID: "did:plc:b", Name: "Bob (updated)", Rank: 42})

	result := NewMerger().Merge(existing, incoming, "did:plc:b")

	assert.False(t, result.Changed)
	assert.Contains(t, result.Notice, "Bob")
}

func TestMerger_NoticeUsesDisplayName(t *testing.T) {
	existing := baseGraph()

	result := NewMerger().Merge(existing, aggregates.NewGraph(), "did:plc:b")

	assert.False(t, result.Changed)
	assert.Equal(t, "Bob hasn't introduced anyone new yet", result.Notice)
}

func TestMerger_NoticeFallsBackForUnknownNode(t *testing.T) {
	existing := baseGraph()

	result := NewMerger().Merge(existing, aggregates.NewGraph(), "did:plc:unknown")

	assert.False(t, result.Changed)
	assert.Equal(t, "This user hasn't introduced anyone new yet", result.Notice)
}

func TestMerger_Idempotent(t *testing.T) {
	existing := baseGraph()

	incoming := aggregates.NewGraph()
	incoming.AddNode(&entities.Node{
		ID:            "did:plc:c",
		Name:          "Carol",
		Introductions: []entities.IntroductionRecord{intro("did:plc:b", "did:plc:c")},
	})
	incoming.AddNode(&entities.Node{ID: "did:plc:b", Name: "Bob"})
	incoming.AddEdge("did:plc:b", "did:plc:c")

	first := NewMerger().Merge(existing, incoming, "did:plc:b")
	require.True(t, first.Changed)

	second := NewMerger().Merge(first.Graph, incoming, "did:plc:b")
	assert.False(t, second.Changed)
}
