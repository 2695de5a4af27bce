// Package planner compiles workflow and plan-skeleton documents into
// executable plans (spec §4.E) and computes per-node readiness for the
// engine runner (spec §4.G step b).
package planner

import "sort"

// stableTopologicalOrder runs Kahn's algorithm over node ids and their
// dependency edges, re-sorting the ready set by original document index
// after every dequeue and enqueue so that, among nodes with no
// remaining blocking dependency, the earliest-declared node always
// runs first. A plain alphabetical or insertion-order tie-break would
// make the compiled order depend on Go's map iteration, which is not
// reproducible; re-sorting by document position after every step keeps
// the result identical across runs for the same document.
func stableTopologicalOrder(ids []string, edges map[string][]string, indexByID map[string]int) ([]string, []string, error) {
	indegree := make(map[string]int, len(ids))
	reverse := make(map[string][]string, len(ids))
	for _, id := range ids {
		indegree[id] = len(edges[id])
	}
	for _, id := range ids {
		for _, dep := range edges[id] {
			reverse[dep] = append(reverse[dep], id)
		}
	}

	byIndex := func(a, b string) bool { return indexByID[a] < indexByID[b] }

	var ready []string
	for _, id := range ids {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return byIndex(ready[i], ready[j]) })

	order := make([]string, 0, len(ids))
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, child := range reverse[next] {
			indegree[child]--
			if indegree[child] == 0 {
				ready = append(ready, child)
			}
		}
		sort.Slice(ready, func(i, j int) bool { return byIndex(ready[i], ready[j]) })
	}

	if len(order) != len(ids) {
		var cyclic []string
		for _, id := range ids {
			if indegree[id] > 0 {
				cyclic = append(cyclic, id)
			}
		}
		sort.Slice(cyclic, func(i, j int) bool { return byIndex(cyclic[i], cyclic[j]) })
		return order, cyclic, nil
	}
	return order, nil, nil
}
