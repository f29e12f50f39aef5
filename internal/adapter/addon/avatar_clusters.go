package addon

import (
	"context"
	"sort"
	"strconv"

	"github.com/fairyhunter13/social-hunt/internal/domain"
)

// AvatarClusters groups fingerprinted avatars into clusters of visually
// identical or near-identical images. Two avatars join the same cluster
// when their sha256 digests match exactly or their dHashes are within
// the Hamming threshold. Each cluster is represented by its
// lexicographically smallest provider name and ids are assigned in
// representative order, so ids never depend on the order results
// settled.
type AvatarClusters struct {
	threshold int
}

// NewAvatarClusters builds the avatar_clusters addon with the given
// dHash Hamming threshold.
func NewAvatarClusters(threshold int) *AvatarClusters {
	return &AvatarClusters{threshold: threshold}
}

// Name implements domain.Addon.
func (a *AvatarClusters) Name() string { return "avatar_clusters" }

type clusterNode struct {
	idx    int // index into results
	sha    string
	dhash  uint64
	hasDH  bool
	parent int
}

// Run implements domain.Addon.
func (a *AvatarClusters) Run(_ context.Context, _ string, results []domain.Result) {
	var nodes []*clusterNode
	for i := range results {
		r := &results[i]
		if r.Status != domain.StatusFound || r.Profile == nil {
			continue
		}
		sha, _ := r.Profile["avatar_sha256"].(string)
		dhStr, _ := r.Profile["avatar_dhash"].(string)
		if sha == "" && dhStr == "" {
			continue
		}
		n := &clusterNode{idx: i, sha: sha, parent: len(nodes)}
		if dhStr != "" {
			if v, err := strconv.ParseUint(dhStr, 16, 64); err == nil {
				n.dhash = v
				n.hasDH = true
			}
		}
		nodes = append(nodes, n)
	}
	if len(nodes) == 0 {
		return
	}

	find := func(i int) int {
		for nodes[i].parent != i {
			nodes[i].parent = nodes[nodes[i].parent].parent
			i = nodes[i].parent
		}
		return i
	}
	union := func(i, j int) {
		ri, rj := find(i), find(j)
		if ri != rj {
			if ri > rj {
				ri, rj = rj, ri
			}
			nodes[rj].parent = ri
		}
	}

	for i := 0; i < len(nodes); i++ {
		for j := i + 1; j < len(nodes); j++ {
			if a.linked(nodes[i], nodes[j]) {
				union(i, j)
			}
		}
	}

	members := map[int][]*clusterNode{}
	for i, n := range nodes {
		members[find(i)] = append(members[find(i)], n)
	}

	// Ids are keyed to each cluster's representative, the
	// lexicographically smallest provider name; singletons get ids too.
	type cluster struct {
		root int
		rep  string
	}
	clusters := make([]cluster, 0, len(members))
	for root, group := range members {
		rep := results[group[0].idx].Provider
		for _, n := range group[1:] {
			if p := results[n.idx].Provider; p < rep {
				rep = p
			}
		}
		clusters = append(clusters, cluster{root: root, rep: rep})
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].rep < clusters[j].rep })
	ids := map[int]int{}
	for i, c := range clusters {
		ids[c.root] = i + 1
	}

	for root, group := range members {
		var providers []string
		allSameSha := true
		for _, n := range group {
			providers = append(providers, results[n.idx].Provider)
			if n.sha == "" || n.sha != group[0].sha {
				allSameSha = false
			}
		}
		sort.Strings(providers)
		method := "dhash"
		if allSameSha {
			method = "sha256"
		}
		for _, n := range group {
			p := results[n.idx].Profile
			p.SetDefault("avatar_cluster_id", ids[root])
			p.SetDefault("avatar_cluster_providers", providers)
			p.SetDefault("avatar_cluster_method", method)
		}
	}
}

func (a *AvatarClusters) linked(x, y *clusterNode) bool {
	if x.sha != "" && x.sha == y.sha {
		return true
	}
	if x.hasDH && y.hasDH && HammingDistance(x.dhash, y.dhash) <= a.threshold {
		return true
	}
	return false
}
