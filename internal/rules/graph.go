package rules

import (
	"fmt"
	"sort"

	"github.com/dhiraj-eng07/Airtable-Connected-Dynamic-Form-Builder/internal/models"
)

// DependencyNode records both directions of a question's visibility edges.
// "X depends on Y" means X's rule references Y's answer.
type DependencyNode struct {
	DependsOn    []string `json:"dependsOn"`
	DependedOnBy []string `json:"dependedOnBy"`
}

// CycleReport lists every elementary cycle found in a form's rule graph so
// form authors get actionable errors, not just a boolean.
type CycleReport struct {
	HasCycles bool       `json:"hasCycles"`
	Cycles    [][]string `json:"cycles"`
}

// BuildDependencyGraph builds the visibility dependency graph over a form's
// questions. For every question with a rule, an edge runs from each
// referenced question to the dependent question.
func BuildDependencyGraph(questions []models.Question) (map[string]*DependencyNode, error) {
	graph := make(map[string]*DependencyNode, len(questions))
	for _, q := range questions {
		graph[q.Key] = &DependencyNode{}
	}

	for _, q := range questions {
		rule, err := q.Rule()
		if err != nil {
			return nil, fmt.Errorf("question %q has a malformed rule: %w", q.Key, err)
		}
		if rule == nil {
			continue
		}

		seen := make(map[string]struct{})
		for _, cond := range rule.Conditions {
			if _, dup := seen[cond.QuestionKey]; dup {
				continue
			}
			seen[cond.QuestionKey] = struct{}{}

			dep, ok := graph[cond.QuestionKey]
			if !ok {
				// Unknown references are a validation error, not a graph edge.
				continue
			}
			dep.DependedOnBy = append(dep.DependedOnBy, q.Key)
			graph[q.Key].DependsOn = append(graph[q.Key].DependsOn, cond.QuestionKey)
		}
	}

	return graph, nil
}

// DetectCycles runs a depth-first traversal over the dependedOnBy edges and
// reports every elementary cycle. The graph is laid out as an arena of nodes
// addressed by index so the traversal never chases map references.
func DetectCycles(questions []models.Question) (CycleReport, error) {
	graph, err := BuildDependencyGraph(questions)
	if err != nil {
		return CycleReport{}, err
	}

	keys := make([]string, 0, len(graph))
	for key := range graph {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	index := make(map[string]int, len(keys))
	for i, key := range keys {
		index[key] = i
	}

	adjacency := make([][]int, len(keys))
	for i, key := range keys {
		targets := graph[key].DependedOnBy
		adjacency[i] = make([]int, 0, len(targets))
		for _, target := range targets {
			adjacency[i] = append(adjacency[i], index[target])
		}
		sort.Ints(adjacency[i])
	}

	const (
		unvisited = iota
		onStack
		done
	)

	state := make([]int8, len(keys))
	path := make([]int, 0, len(keys))
	var cycles [][]string

	var visit func(node int)
	visit = func(node int) {
		state[node] = onStack
		path = append(path, node)

		for _, next := range adjacency[node] {
			switch state[next] {
			case onStack:
				// Back edge: the cycle runs from next's position on the
				// active path through the current node and back.
				start := 0
				for i, n := range path {
					if n == next {
						start = i
						break
					}
				}
				cycle := make([]string, 0, len(path)-start+1)
				for _, n := range path[start:] {
					cycle = append(cycle, keys[n])
				}
				cycle = append(cycle, keys[next])
				cycles = append(cycles, cycle)
			case unvisited:
				visit(next)
			}
		}

		path = path[:len(path)-1]
		state[node] = done
	}

	for i := range keys {
		if state[i] == unvisited {
			visit(i)
		}
	}

	return CycleReport{HasCycles: len(cycles) > 0, Cycles: cycles}, nil
}
