package engine

import (
	"log"
	"sort"

	"github.com/engramdb/engram/internal/store"
)

// pairCap bounds how many candidate pairs a single dedup sweep may
// examine, keeping one maintenance pass from degrading into a quadratic
// scan on large stores.
const pairCap = 500

// dsu is a disjoint-set over an arena of index-stable ids: each memory id
// is mapped to an index once per sweep, and unions happen on indexes.
type dsu struct {
	parent []int
	rank   []int
}

func newDSU(n int) *dsu {
	d := &dsu{parent: make([]int, n), rank: make([]int, n)}
	for i := range d.parent {
		d.parent[i] = i
	}
	return d
}

func (d *dsu) find(x int) int {
	for d.parent[x] != x {
		d.parent[x] = d.parent[d.parent[x]] // path halving
		x = d.parent[x]
	}
	return x
}

func (d *dsu) union(a, b int) {
	ra, rb := d.find(a), d.find(b)
	if ra == rb {
		return
	}
	if d.rank[ra] < d.rank[rb] {
		ra, rb = rb, ra
	}
	d.parent[rb] = ra
	if d.rank[ra] == d.rank[rb] {
		d.rank[ra]++
	}
}

// FindDuplicateClusters discovers near-duplicate clusters among non-core
// memories: ids whose embeddings score at or above threshold are unioned,
// and only components with 2+ members are returned. Clusters and their
// members come back sorted for deterministic sweeps.
func (e *Engine) FindDuplicateClusters(threshold float64) ([][]string, error) {
	vectors, err := e.DB.NonCoreVectors()
	if err != nil {
		return nil, err
	}
	if len(vectors) < 2 {
		return nil, nil
	}

	d := newDSU(len(vectors))
	pairs := 0
	for i := 0; i < len(vectors) && pairs <= pairCap; i++ {
		for j := i + 1; j < len(vectors); j++ {
			pairs++
			if pairs > pairCap {
				log.Printf("dedup: pair budget (%d) exhausted, stopping sweep early", pairCap)
				break
			}
			if store.Cosine(vectors[i].Embedding, vectors[j].Embedding) >= threshold {
				d.union(i, j)
			}
		}
	}

	components := make(map[int][]string)
	for i, v := range vectors {
		root := d.find(i)
		components[root] = append(components[root], v.MemoryID)
	}

	var clusters [][]string
	for _, members := range components {
		if len(members) < 2 {
			continue
		}
		sort.Strings(members)
		clusters = append(clusters, members)
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i][0] < clusters[j][0] })
	return clusters, nil
}

// MergeCluster resolves importances for the cluster members and hands the
// merge to the store's transactional unit. Members that vanished since
// discovery cause the whole merge to be skipped there.
func (e *Engine) MergeCluster(ids []string) (store.MergeResult, error) {
	importances := make([]float64, len(ids))
	for i, id := range ids {
		m, err := e.DB.GetMemory(id)
		if err != nil {
			return store.MergeResult{}, err
		}
		if m == nil {
			log.Printf("merge cluster: member %s no longer exists, skipping cluster", id)
			return store.MergeResult{Skipped: true}, nil
		}
		importances[i] = m.Importance
	}
	return e.DB.MergeMemoryCluster(ids, importances)
}

// RunDedupSweep discovers clusters at the configured threshold and merges
// each one. Returns clusters merged and memories deleted.
func (e *Engine) RunDedupSweep(threshold float64) (merged, deleted int, err error) {
	clusters, err := e.FindDuplicateClusters(threshold)
	if err != nil {
		return 0, 0, err
	}
	for _, cluster := range clusters {
		res, err := e.MergeCluster(cluster)
		if err != nil {
			log.Printf("dedup: merge cluster %v: %v", cluster, err)
			continue
		}
		if res.Skipped {
			continue
		}
		merged++
		deleted += res.Deleted
	}
	return merged, deleted, nil
}
