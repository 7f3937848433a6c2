package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrGraphStructure is matched by every *GraphStructureError.
	ErrGraphStructure = errors.New("graph structure error")

	// ErrMissingEntryNode is returned by Run when START is absent.
	ErrMissingEntryNode = errors.New("graph has no START node")

	// ErrUnknownNode is returned when the current node id stops resolving mid-run.
	ErrUnknownNode = errors.New("unknown node")

	// ErrNotFound is returned by snapshot stores for missing documents.
	ErrNotFound = errors.New("graph document not found")

	// ErrInvalidExpression is returned for conditional edges whose expression does not compile.
	ErrInvalidExpression = errors.New("invalid edge expression")
)

// GraphStructureError reports a reference to a node that does not exist.
type GraphStructureError struct {
	// Op is the operation that found the problem, e.g. "add edge" or "compile".
	Op string
	// From is the node owning the reference, when known.
	From string
	// Ref is the missing node id.
	Ref string
}

func (e *GraphStructureError) Error() string {
	if e.From != "" && e.From != e.Ref {
		return fmt.Sprintf("%s: node %q references missing node %q", e.Op, e.From, e.Ref)
	}
	return fmt.Sprintf("%s: node %q does not exist", e.Op, e.Ref)
}

func (e *GraphStructureError) Unwrap() error {
	return ErrGraphStructure
}

// NodeError is returned by Run when a node fails under FailureHalt.
type NodeError struct {
	NodeID   string
	Kind     Kind
	Attempts int
	Err      error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %q (%s) failed after %d attempt(s): %v", e.NodeID, e.Kind, e.Attempts, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}
