package dag

import "sort"

// Schedulable returns the names of nodes whose predecessors are all in
// done and which are not themselves in done, sorted. Nodes in the done
// set never reappear; a node with an unfinished predecessor is held back.
func (g *DAG) Schedulable(done map[string]bool) []string {
	var ready []string
	for name, n := range g.nodes {
		if done[name] {
			continue
		}
		if allDone(n, done) {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)
	return ready
}

func allDone(n *node, done map[string]bool) bool {
	for _, prev := range n.prevNodes {
		if !done[prev.name] {
			return false
		}
	}
	return true
}
