package graph

import (
	"fmt"
	"sort"
	"sync"
)

// ExecutionResult is one Flow's outcome from a Controller run.
type ExecutionResult struct {
	GraphName string
	NodeName  string
	Context   map[string]any
}

// controllerTask pairs a Flow with the arguments its Execute call needs,
// keeping ExecuteSequential/ExecuteParallel index-aligned across the
// flows/startNodes/overlays slices.
type controllerTask struct {
	flow     *Flow
	start    string
	overlay  map[string]any
	priority int
}

func buildTasks(flows []*Flow, startNodes []string, overlays []map[string]any) ([]controllerTask, error) {
	if len(startNodes) != len(flows) {
		return nil, fmt.Errorf("graph: controller needs one start node per flow, got %d flows and %d start nodes", len(flows), len(startNodes))
	}

	tasks := make([]controllerTask, len(flows))
	for i, f := range flows {
		var overlay map[string]any
		if i < len(overlays) {
			overlay = overlays[i]
		}
		tasks[i] = controllerTask{flow: f, start: startNodes[i], overlay: overlay, priority: f.nodePriority(startNodes[i])}
	}
	return tasks, nil
}

// nodePriority looks up the start node's declared Priority, used only to
// order Controller.ExecuteParallel's concurrency-limited groups; it has
// no bearing on successor execution within the Flow itself.
func (f *Flow) nodePriority(name string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if n, ok := f.nodes[name]; ok {
		return n.Priority
	}
	return 0
}

func runTask(t controllerTask) (ExecutionResult, error) {
	ctx, err := t.flow.Execute(t.start, nil, t.overlay)
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("graph %q: %w", t.flow.name, err)
	}
	return ExecutionResult{GraphName: t.flow.name, NodeName: t.start, Context: ctx}, nil
}

// ExecuteSequential runs each flow's start node to completion, one after
// another, stopping at (and returning) the first error.
func ExecuteSequential(flows []*Flow, startNodes []string, overlays []map[string]any) ([]ExecutionResult, error) {
	tasks, err := buildTasks(flows, startNodes, overlays)
	if err != nil {
		return nil, err
	}

	results := make([]ExecutionResult, 0, len(tasks))
	for _, t := range tasks {
		res, err := runTask(t)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// ExecuteParallel runs every flow's start node concurrently. When
// concurrencyLimit is positive, the task list (ordered by descending
// start-node Priority) is chunked into groups of that size, and a group
// begins only once the prior group has fully settled. A
// concurrencyLimit of zero or less runs every task in one unbounded
// group. The first error encountered anywhere aborts the run; groups not
// yet started are skipped, and results already collected are returned
// alongside the error.
func ExecuteParallel(flows []*Flow, startNodes []string, concurrencyLimit int, overlays []map[string]any) ([]ExecutionResult, error) {
	tasks, err := buildTasks(flows, startNodes, overlays)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].priority > tasks[j].priority })

	groupSize := concurrencyLimit
	if groupSize <= 0 {
		groupSize = len(tasks)
	}
	if groupSize == 0 {
		return nil, nil
	}

	var results []ExecutionResult
	for start := 0; start < len(tasks); start += groupSize {
		end := start + groupSize
		if end > len(tasks) {
			end = len(tasks)
		}
		group := tasks[start:end]

		groupResults, err := runGroup(group)
		results = append(results, groupResults...)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

func runGroup(group []controllerTask) ([]ExecutionResult, error) {
	var wg sync.WaitGroup
	results := make([]ExecutionResult, len(group))
	errs := make([]error, len(group))

	for i, t := range group {
		wg.Add(1)
		go func(i int, t controllerTask) {
			defer wg.Done()
			res, err := runTask(t)
			results[i] = res
			errs[i] = err
		}(i, t)
	}
	wg.Wait()

	settled := make([]ExecutionResult, 0, len(group))
	for i, err := range errs {
		if err != nil {
			return settled, err
		}
		settled = append(settled, results[i])
	}
	return settled, nil
}
