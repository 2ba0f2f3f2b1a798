package events

import (
	"time"
)

// Event is the base interface for all events. RunID ties together the events
// emitted by one façade call.
type Event interface {
	EventType() string
	Topic() string
	RunID() string
}

// Topic constants
const (
	TopicLoad     = "load"
	TopicAnalysis = "analysis"
)

// Event type constants
const (
	EventTypeLoadProgress      = "load.progress"
	EventTypeGraphBuilt        = "load.graph_built"
	EventTypeAnalysisCompleted = "analysis.completed"
)

// LoadProgressEvent is published periodically while records stream in.
type LoadProgressEvent struct {
	Run       string
	Source    string
	Records   int
	Timestamp time.Time
}

func (e LoadProgressEvent) EventType() string { return EventTypeLoadProgress }
func (e LoadProgressEvent) Topic() string     { return TopicLoad }
func (e LoadProgressEvent) RunID() string     { return e.Run }

// GraphBuiltEvent is published once a source has been turned into a graph.
type GraphBuiltEvent struct {
	Run         string
	Source      string
	Nodes       int
	Edges       int
	Diagnostics int
	Elapsed     time.Duration
	Timestamp   time.Time
}

func (e GraphBuiltEvent) EventType() string { return EventTypeGraphBuilt }
func (e GraphBuiltEvent) Topic() string     { return TopicLoad }
func (e GraphBuiltEvent) RunID() string     { return e.Run }

// AnalysisCompletedEvent is published when a query finishes, successfully or not.
type AnalysisCompletedEvent struct {
	Run       string
	Operation string // "cycles", "critical_path", "trace", "order", "diff"
	Source    string
	Elapsed   time.Duration
	Err       error
	Timestamp time.Time
}

func (e AnalysisCompletedEvent) EventType() string { return EventTypeAnalysisCompleted }
func (e AnalysisCompletedEvent) Topic() string     { return TopicAnalysis }
func (e AnalysisCompletedEvent) RunID() string     { return e.Run }
