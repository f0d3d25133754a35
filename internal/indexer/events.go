// Package indexer is the capture-time path: it takes a batch of typed capture
// events, runs the contradiction check against semantic neighbors, and commits
// each surviving event as a record plus its vectors in one step.
package indexer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/josephgoksu/recall/internal/store"
)

// Event is a closed set of capture variants. Each variant knows how to
// project itself onto the ingestion contract; there is no generic map payload
// with a type tag dispatched at insert time.
type Event interface {
	// Entry derives the stored record fields for this event.
	Entry() store.Entry

	isEvent()
}

// KnowledgeEvent is a captured insight: a gotcha, pattern or decision learned
// while working on a topic.
type KnowledgeEvent struct {
	Topic     string            `json:"topic"`
	Subtype   string            `json:"subtype"` // gotcha, pattern, decision, ...
	Content   string            `json:"content"`
	Timestamp string            `json:"timestamp,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (e KnowledgeEvent) isEvent() {}

func (e KnowledgeEvent) Entry() store.Entry {
	return store.Entry{
		Source:    "captures",
		Title:     fmt.Sprintf("[%s] %s", e.Subtype, firstLine(e.Content)),
		Content:   e.Content,
		Topic:     e.Topic,
		Type:      e.Subtype,
		Timestamp: e.Timestamp,
		Metadata:  e.Metadata,
	}
}

// TaskEvent records a completed unit of work: the problem, how it was solved,
// and anything discovered along the way.
type TaskEvent struct {
	Topic       string   `json:"topic"`
	Name        string   `json:"name"`
	Problem     string   `json:"problem"`
	Solution    string   `json:"solution"`
	Code        string   `json:"code,omitempty"`
	Discoveries []string `json:"discoveries,omitempty"`
	Timestamp   string   `json:"timestamp,omitempty"`
}

func (e TaskEvent) isEvent() {}

func (e TaskEvent) Entry() store.Entry {
	var b strings.Builder
	b.WriteString("Problem: " + e.Problem)
	b.WriteString("\n\nSolution: " + e.Solution)
	if e.Code != "" {
		b.WriteString("\n\nCode:\n" + e.Code)
	}
	if len(e.Discoveries) > 0 {
		b.WriteString("\n\nDiscoveries:\n- " + strings.Join(e.Discoveries, "\n- "))
	}
	return store.Entry{
		Source:    "tasks",
		Title:     e.Name,
		Content:   b.String(),
		Topic:     e.Topic,
		Type:      "task",
		Timestamp: e.Timestamp,
	}
}

// NoteEvent is free-form text jotted down by the user.
type NoteEvent struct {
	Topic     string `json:"topic"`
	Title     string `json:"title,omitempty"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

func (e NoteEvent) isEvent() {}

func (e NoteEvent) Entry() store.Entry {
	title := e.Title
	if title == "" {
		title = firstLine(e.Content)
	}
	return store.Entry{
		Source:    "notes",
		Title:     title,
		Content:   e.Content,
		Topic:     e.Topic,
		Type:      "note",
		Timestamp: e.Timestamp,
	}
}

// TeachingEvent is an explicit correction or instruction from the user,
// captured so it outlives the session it was given in.
type TeachingEvent struct {
	Topic     string `json:"topic"`
	Content   string `json:"content"`
	Context   string `json:"context,omitempty"` // what prompted the teaching
	Timestamp string `json:"timestamp,omitempty"`
}

func (e TeachingEvent) isEvent() {}

func (e TeachingEvent) Entry() store.Entry {
	content := e.Content
	if e.Context != "" {
		content += "\n\nContext: " + e.Context
	}
	return store.Entry{
		Source:    "teachings",
		Title:     firstLine(e.Content),
		Content:   content,
		Topic:     e.Topic,
		Type:      "teaching",
		Timestamp: e.Timestamp,
	}
}

// ObservationEvent is behavior noticed about the environment or codebase,
// recorded without the user asking for it.
type ObservationEvent struct {
	Topic     string `json:"topic"`
	Subtype   string `json:"subtype,omitempty"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

func (e ObservationEvent) isEvent() {}

func (e ObservationEvent) Entry() store.Entry {
	typ := e.Subtype
	if typ == "" {
		typ = "observation"
	}
	return store.Entry{
		Source:    "observations",
		Title:     firstLine(e.Content),
		Content:   e.Content,
		Topic:     e.Topic,
		Type:      typ,
		Timestamp: e.Timestamp,
	}
}

const maxTitleLen = 80

func firstLine(content string) string {
	line := content
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	if len(line) > maxTitleLen {
		line = line[:maxTitleLen] + "..."
	}
	return line
}

type eventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// DecodeEvent parses one capture log line into its typed variant. Unknown
// event types are an error so a log format drift surfaces instead of silently
// dropping captures.
func DecodeEvent(line []byte) (Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}

	var ev Event
	var err error
	switch env.Type {
	case "knowledge":
		var e KnowledgeEvent
		err = json.Unmarshal(env.Data, &e)
		ev = e
	case "task":
		var e TaskEvent
		err = json.Unmarshal(env.Data, &e)
		ev = e
	case "note":
		var e NoteEvent
		err = json.Unmarshal(env.Data, &e)
		ev = e
	case "teaching":
		var e TeachingEvent
		err = json.Unmarshal(env.Data, &e)
		ev = e
	case "observation":
		var e ObservationEvent
		err = json.Unmarshal(env.Data, &e)
		ev = e
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s event: %w", env.Type, err)
	}
	return ev, nil
}

// DecodeEvents parses a JSONL capture log body, skipping blank lines.
func DecodeEvents(data []byte) ([]Event, error) {
	var events []Event
	for i, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		ev, err := DecodeEvent([]byte(line))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		events = append(events, ev)
	}
	return events, nil
}
