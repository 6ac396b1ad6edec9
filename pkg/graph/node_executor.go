package graph

import "github.com/smilemakc/flowgraph/internal/application/observer"

// executeNode runs exactly one node through its state machine:
// Pending -> Waiting -> Running [-> Retrying]* -> Completed | Skipped | Failed.
//
// The when-gate and condition gate are evaluated before nodeStarted is
// emitted: a node skipped by its condition must emit neither nodeStarted
// nor nodeCompleted, so the gates cannot run after the start event.
func (f *Flow) executeNode(name string, ctx *Context, callBag *CallBag, triggeredByEvent bool) error {
	f.mu.RLock()
	node, ok := f.nodes[name]
	f.mu.RUnlock()
	if !ok {
		return &NodeNotFoundError{Name: name}
	}

	if node.When != nil && !triggeredByEvent {
		if err := f.em.waitForEvents(name, node.When); err != nil {
			return err
		}
	}

	if node.Condition != nil {
		gateView := newView(ctx, name, nil)
		if !node.Condition(gateView) {
			return nil
		}
	}

	nodeName := name
	f.log.Debug("node started", "node", name, "triggered_by_event", triggeredByEvent)
	f.publish(observer.EventTypeNodeStarted, &nodeName, nil, nil, nil, "running", nil, nil, ctx.Snapshot())

	if node.Params != nil {
		if callBag == nil {
			err := &ParamValidationError{Node: name, Message: "a params schema is declared but no call bag was supplied"}
			f.emitNodeError(name, err, ctx)
			return err
		}
		parsed, perr := node.Params.Parse(callBag.Params)
		if perr != nil {
			err := &ParamValidationError{Node: name, Message: perr.Error()}
			f.emitNodeError(name, err, ctx)
			return err
		}
		callBag.Params = parsed
	}

	view := newView(ctx, name, f)

	attempts, err := node.Retry.run(view, func() error {
		if node.Execute == nil {
			// A pure routing node: no body, only successor selection.
			return nil
		}
		if execErr := node.Execute(view, callBag); execErr != nil {
			return &ExecuteError{Node: name, Err: execErr}
		}
		return nil
	})
	if err != nil {
		var finalErr error
		if node.Retry != nil && node.Retry.MaxAttempts > 1 {
			finalErr = &RetryExhaustedError{Node: name, Attempts: attempts, LastErr: err}
		} else {
			finalErr = err
		}
		f.emitNodeError(name, finalErr, ctx)
		return finalErr
	}

	if verr := ctx.validate(); verr != nil {
		cerr := &ContextValidationError{Node: name, Message: verr.Error()}
		f.emitNodeError(name, cerr, ctx)
		return cerr
	}

	f.log.Debug("node completed", "node", name)
	f.publish(observer.EventTypeNodeCompleted, &nodeName, nil, nil, nil, "completed", nil, nil, ctx.Snapshot())

	if triggeredByEvent {
		return nil
	}

	for _, entry := range node.Next.resolve(view) {
		if entry.Condition != nil && !entry.Condition(view) {
			continue
		}
		f.mu.RLock()
		_, exists := f.nodes[entry.Node]
		f.mu.RUnlock()
		if !exists {
			// A dangling successor reference is skipped, not fatal; only a
			// missing start node fails the execution.
			f.log.Warn("successor not in registry, skipping", "node", name, "successor", entry.Node)
			continue
		}
		if err := f.executeNode(entry.Node, ctx, nil, false); err != nil {
			return err
		}
	}

	return nil
}

func (f *Flow) emitNodeError(name string, err error, ctx *Context) {
	nodeName := name
	f.log.Warn("node failed", "node", name, "error", err)
	f.publish(observer.EventTypeNodeError, &nodeName, nil, nil, nil, "failed", err, nil, ctx.Snapshot())
}
