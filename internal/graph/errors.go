package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDuplicateID = errors.New("duplicate task id")
	ErrCyclicGraph = errors.New("graph contains a cycle")
	ErrUnknownNode = errors.New("unknown node id")
	ErrCancelled   = errors.New("analysis cancelled")
)

// GraphError wraps graph construction and query failures. Kind is one of the
// sentinel errors above.
type GraphError struct {
	Kind   error
	NodeID string
	Offset int64
	Msg    string
	Err    error
}

func (e *GraphError) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.NodeID != "" {
		fmt.Fprintf(&b, " (node %q)", e.NodeID)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *GraphError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func unknownNode(id string) error {
	return &GraphError{Kind: ErrUnknownNode, NodeID: id, Offset: -1}
}

func cycleError(cycle Cycle) error {
	msg := "cycle"
	if len(cycle.Nodes) > 0 {
		msg = "cycle through " + strings.Join(cycle.Nodes, ", ")
	}
	var first string
	if len(cycle.Nodes) > 0 {
		first = cycle.Nodes[0]
	}
	return &GraphError{Kind: ErrCyclicGraph, NodeID: first, Offset: -1, Msg: msg}
}

// checkCancel is called at every traversal step. It never blocks.
func checkCancel(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return &GraphError{Kind: ErrCancelled, Offset: -1, Err: ctx.Err()}
	default:
		return nil
	}
}
