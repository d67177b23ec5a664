package config

import "sort"

// detectCycle returns the nodes participating in a connection cycle, or nil
// if the graph is acyclic. Edges point from a node to its upstream nodes.
func detectCycle(nodes []Node, connections []Connection) []string {
	graph := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		graph[n.ID] = nil
	}
	for _, c := range connections {
		from, _, to, _ := c.Endpoints()
		if _, ok := graph[from]; !ok {
			continue
		}
		if _, ok := graph[to]; !ok {
			continue
		}
		graph[to] = append(graph[to], from)
	}

	visiting := make(map[string]bool, len(graph))
	visited := make(map[string]bool, len(graph))
	var stack []string

	var cycle []string
	var dfs func(string) bool
	dfs = func(node string) bool {
		visiting[node] = true
		stack = append(stack, node)

		for _, dep := range graph[node] {
			if visited[dep] {
				continue
			}
			if visiting[dep] {
				idx := indexOf(stack, dep)
				if idx >= 0 {
					cycle = append([]string{}, stack[idx:]...)
					cycle = append(cycle, dep)
				}
				return true
			}
			if dfs(dep) {
				return true
			}
		}

		visiting[node] = false
		visited[node] = true
		stack = stack[:len(stack)-1]
		return false
	}

	ids := make([]string, 0, len(graph))
	for id := range graph {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if visited[id] {
			continue
		}
		if dfs(id) {
			break
		}
	}

	return cycle
}

func indexOf(slice []string, target string) int {
	for i, v := range slice {
		if v == target {
			return i
		}
	}
	return -1
}
