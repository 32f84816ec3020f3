package graph

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/OFFIS-RIT/soapkg/pkg/common"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/community"
	"gonum.org/v1/gonum/graph/network"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/stat"
)

const (
	pageRankDamping   = 0.85
	pageRankTolerance = 1e-6
	defaultTopRanked  = 10

	communityResolution = 1.0
	communitySeed       = 1
)

// RankedEntity is an entity with its PageRank score.
type RankedEntity struct {
	ID    string            `json:"id"`
	Text  string            `json:"text"`
	Type  common.EntityType `json:"type"`
	Score float64           `json:"score"`
}

// Statistics summarises the structure of the graph.
type Statistics struct {
	Entities            int                         `json:"entities"`
	Relationships       int                         `json:"relationships"`
	Documents           int                         `json:"documents"`
	Patients            int                         `json:"patients"`
	EntityTypes         map[common.EntityType]int   `json:"entity_types"`
	RelationTypes       map[common.RelationType]int `json:"relation_types"`
	EntityCategories    map[common.SOAPCategory]int `json:"entity_categories"`
	RelationCategories  map[common.SOAPCategory]int `json:"relation_categories"`
	DegreeDistribution  map[int]int                 `json:"degree_distribution"`
	AverageDegree       float64                     `json:"average_degree"`
	Density             float64                     `json:"density"`
	ConnectedComponents int                         `json:"connected_components"`
	LargestComponent    int                         `json:"largest_component"`
	AverageClustering   float64                     `json:"average_clustering"`
	Communities         int                         `json:"communities"`
	LargestCommunity    int                         `json:"largest_community"`
	Modularity          float64                     `json:"modularity"`
	ConfidenceMean      float64                     `json:"confidence_mean"`
	ConfidenceStdDev    float64                     `json:"confidence_std_dev"`
	TopEntities         []RankedEntity              `json:"top_entities"`
	Centrality          *Centrality                 `json:"centrality,omitempty"`
}

// Centrality lists the most central entities of the undirected graph.
type Centrality struct {
	Betweenness []RankedEntity `json:"betweenness"`
	Closeness   []RankedEntity `json:"closeness"`
}

// indexedGraph is a gonum view of the builder. Node ids are positions in ids.
type indexedGraph struct {
	ids      []string
	index    map[string]int64
	directed *simple.DirectedGraph
	undir    *simple.UndirectedGraph
}

func (b *Builder) gonumView() indexedGraph {
	ids := make([]string, 0, len(b.entities))
	for id := range b.entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	g := indexedGraph{
		ids:      ids,
		index:    make(map[string]int64, len(ids)),
		directed: simple.NewDirectedGraph(),
		undir:    simple.NewUndirectedGraph(),
	}
	for i, id := range ids {
		g.index[id] = int64(i)
		g.directed.AddNode(simple.Node(i))
		g.undir.AddNode(simple.Node(i))
	}

	relIDs := make([]string, 0, len(b.relationships))
	for id := range b.relationships {
		relIDs = append(relIDs, id)
	}
	sort.Strings(relIDs)
	for _, id := range relIDs {
		r := b.relationships[id]
		from, to := simple.Node(g.index[r.SourceID]), simple.Node(g.index[r.TargetID])
		if from == to {
			continue
		}
		g.directed.SetEdge(simple.Edge{F: from, T: to})
		g.undir.SetEdge(simple.Edge{F: from, T: to})
	}
	return g
}

// Statistics computes counts, distributions and centrality over the graph.
// top limits the number of PageRank entries, zero uses ten.
func (b *Builder) Statistics(top int) Statistics {
	if top <= 0 {
		top = defaultTopRanked
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	s := Statistics{
		Entities:           len(b.entities),
		Relationships:      len(b.relationships),
		EntityTypes:        map[common.EntityType]int{},
		RelationTypes:      map[common.RelationType]int{},
		EntityCategories:   map[common.SOAPCategory]int{},
		RelationCategories: map[common.SOAPCategory]int{},
		DegreeDistribution: map[int]int{},
		TopEntities:        []RankedEntity{},
	}

	docs := map[string]struct{}{}
	patients := map[string]struct{}{}
	confidences := make([]float64, 0, len(b.entities))
	for id, e := range b.entities {
		s.EntityTypes[e.Type]++
		s.EntityCategories[e.SOAPCategory]++
		s.DegreeDistribution[len(b.out[id])+len(b.in[id])]++
		confidences = append(confidences, e.Confidence)
		for _, ref := range e.SourceRefs {
			docs[ref.DocumentID] = struct{}{}
			if ref.PatientID != "" {
				patients[ref.PatientID] = struct{}{}
			}
		}
	}
	for _, r := range b.relationships {
		s.RelationTypes[r.Type]++
		s.RelationCategories[r.SOAPCategory]++
	}
	s.Documents = len(docs)
	s.Patients = len(patients)

	if s.Entities == 0 {
		return s
	}

	s.AverageDegree = 2 * float64(s.Relationships) / float64(s.Entities)
	if s.Entities > 1 {
		s.Density = float64(s.Relationships) / float64(s.Entities*(s.Entities-1))
	}
	if len(confidences) > 1 {
		s.ConfidenceMean, s.ConfidenceStdDev = stat.MeanStdDev(confidences, nil)
	} else {
		s.ConfidenceMean = confidences[0]
	}

	g := b.gonumView()
	components := topo.ConnectedComponents(g.undir)
	s.ConnectedComponents = len(components)
	for _, c := range components {
		s.LargestComponent = max(s.LargestComponent, len(c))
	}

	s.AverageClustering = averageClustering(g.undir)

	communities := b.communities(g)
	s.Communities = len(communities)
	for _, c := range communities {
		s.LargestCommunity = max(s.LargestCommunity, len(c))
	}
	if s.Relationships > 0 {
		s.Modularity = community.Q(g.undir, communities, communityResolution)
	}

	ranks := network.PageRank(g.directed, pageRankDamping, pageRankTolerance)
	s.TopEntities = b.topRanked(g, ranks, top)

	return s
}

// topRanked turns gonum scores into the top entities by score, then id.
// Non-finite scores count as zero.
func (b *Builder) topRanked(g indexedGraph, scores map[int64]float64, top int) []RankedEntity {
	ranked := make([]RankedEntity, 0, len(scores))
	for nid, score := range scores {
		if math.IsNaN(score) || math.IsInf(score, 0) {
			score = 0
		}
		e := b.entities[g.ids[nid]]
		ranked = append(ranked, RankedEntity{ID: e.ID, Text: e.Text, Type: e.Type, Score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ID < ranked[j].ID
	})
	if len(ranked) > top {
		ranked = ranked[:top]
	}
	return ranked
}

// averageClustering is the mean local clustering coefficient. Nodes with
// fewer than two neighbours count as zero.
func averageClustering(g *simple.UndirectedGraph) float64 {
	nodes := graph.NodesOf(g.Nodes())
	if len(nodes) == 0 {
		return 0
	}

	var total float64
	for _, n := range nodes {
		neighbors := graph.NodesOf(g.From(n.ID()))
		k := len(neighbors)
		if k < 2 {
			continue
		}
		links := 0
		for i := 0; i < k; i++ {
			for j := i + 1; j < k; j++ {
				if g.HasEdgeBetween(neighbors[i].ID(), neighbors[j].ID()) {
					links++
				}
			}
		}
		total += 2 * float64(links) / float64(k*(k-1))
	}
	return total / float64(len(nodes))
}

// communities runs Louvain modularisation with a fixed seed. Members are
// sorted by node id and communities by size, then first member.
func (b *Builder) communities(g indexedGraph) [][]graph.Node {
	var out [][]graph.Node
	if len(b.relationships) == 0 {
		for _, n := range graph.NodesOf(g.undir.Nodes()) {
			out = append(out, []graph.Node{n})
		}
	} else {
		reduced := community.Modularize(g.undir, communityResolution, rand.NewPCG(communitySeed, communitySeed))
		out = reduced.Communities()
	}

	for _, c := range out {
		sort.Slice(c, func(i, j int) bool { return c[i].ID() < c[j].ID() })
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return out[i][0].ID() < out[j][0].ID()
	})
	return out
}

// Communities groups entity ids into densely connected communities,
// largest first.
func (b *Builder) Communities() [][]string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.entities) == 0 {
		return nil
	}
	g := b.gonumView()
	var out [][]string
	for _, c := range b.communities(g) {
		ids := make([]string, 0, len(c))
		for _, n := range c {
			ids = append(ids, g.ids[n.ID()])
		}
		out = append(out, ids)
	}
	return out
}

// Centrality computes betweenness and closeness centrality over the
// undirected graph and returns the top entities of each. Both need a
// shortest path search from every entity.
func (b *Builder) Centrality(top int) Centrality {
	if top <= 0 {
		top = defaultTopRanked
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	c := Centrality{Betweenness: []RankedEntity{}, Closeness: []RankedEntity{}}
	if len(b.entities) == 0 {
		return c
	}

	g := b.gonumView()
	c.Betweenness = b.topRanked(g, network.Betweenness(g.undir), top)

	closeness := make(map[int64]float64, len(g.ids))
	for i := range g.ids {
		from := simple.Node(i)
		shortest := path.DijkstraFrom(from, g.undir)
		var sum float64
		for j := range g.ids {
			if w := shortest.WeightTo(int64(j)); !math.IsInf(w, 1) {
				sum += w
			}
		}
		if sum > 0 {
			closeness[int64(i)] = 1 / sum
		} else {
			closeness[int64(i)] = 0
		}
	}
	c.Closeness = b.topRanked(g, closeness, top)
	return c
}

// ShortestPath returns the entities on a shortest path between two
// entities, ignoring edge direction. ok is false when no path exists.
func (b *Builder) ShortestPath(fromID, toID string) ([]common.Entity, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if _, ok := b.entities[fromID]; !ok {
		return nil, false
	}
	if _, ok := b.entities[toID]; !ok {
		return nil, false
	}

	g := b.gonumView()
	shortest := path.DijkstraFrom(simple.Node(g.index[fromID]), g.undir)
	nodes, weight := shortest.To(g.index[toID])
	if len(nodes) == 0 || math.IsInf(weight, 1) {
		return nil, false
	}

	out := make([]common.Entity, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, cloneEntity(b.entities[g.ids[n.ID()]]))
	}
	return out, true
}
