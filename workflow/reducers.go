package workflow

import (
	"log/slog"
	"time"
)

// Delta is a partial update to WorkflowState. Each delta kind has its own
// reducer; Apply dispatches to it. Applying a delta is pure and
// deterministic: the same state and delta always produce the same result.
type Delta interface {
	// Kind identifies the reducer that merges this delta.
	Kind() DeltaKind
}

// DeltaKind names a reducer.
type DeltaKind string

const (
	DeltaKindResearch   DeltaKind = "research"
	DeltaKindSection    DeltaKind = "section"
	DeltaKindConnection DeltaKind = "connection"
	DeltaKindEvaluation DeltaKind = "evaluation"
	DeltaKindInterrupt  DeltaKind = "interrupt"
	DeltaKindError      DeltaKind = "error"
)

// ResearchDelta carries partial updates to one topic's research record.
type ResearchDelta struct {
	// Topic is the research record to update. Required.
	Topic string

	// SearchQueries to append (union by value, first-seen order kept).
	SearchQueries []string

	// ExtractedURLs to append (union by value, first-seen order kept).
	ExtractedURLs []string

	// Entities to merge by case-normalized name plus type.
	Entities []Entity

	// Insights to append.
	Insights []Insight

	// Complete marks the topic finished. Once set it is never unset.
	Complete bool

	// Error records why the topic was force-completed.
	Error string
}

// Kind implements Delta.
func (d ResearchDelta) Kind() DeltaKind { return DeltaKindResearch }

// SectionDelta replaces a section record, subject to the optimistic
// concurrency rule: the delta's Version must be at least the stored version
// or the delta is dropped as a stale concurrent write.
type SectionDelta struct {
	Section Section
}

// Kind implements Delta.
func (d SectionDelta) Kind() DeltaKind { return DeltaKindSection }

// ConnectionDelta merges connection pairs by id, preferring higher confidence.
type ConnectionDelta struct {
	Pairs []ConnectionPair
}

// Kind implements Delta.
func (d ConnectionDelta) Kind() DeltaKind { return DeltaKindConnection }

// EvaluationDelta records evaluation results, merged like connection pairs.
type EvaluationDelta struct {
	Results []EvaluationResult
}

// Kind implements Delta.
func (d EvaluationDelta) Kind() DeltaKind { return DeltaKindEvaluation }

// InterruptDelta sets or clears the active interrupt.
type InterruptDelta struct {
	// Interrupt is the suspension point to record. Nil with Clear set
	// removes the active interrupt.
	Interrupt *InterruptState

	// Clear removes the active interrupt.
	Clear bool
}

// Kind implements Delta.
func (d InterruptDelta) Kind() DeltaKind { return DeltaKindInterrupt }

// ErrorDelta appends a contained component failure to the error log.
type ErrorDelta struct {
	Component string
	Message   string
}

// Kind implements Delta.
func (d ErrorDelta) Kind() DeltaKind { return DeltaKindError }

// Apply merges a delta into the state and returns the new state. The input
// state is never modified. Reducers are fail-soft: a malformed delta is
// logged and dropped rather than corrupting the document, because losing one
// delta is preferable to poisoning the whole workflow.
func Apply(st *WorkflowState, delta Delta, logger *slog.Logger) *WorkflowState {
	if logger == nil {
		logger = slog.Default()
	}

	out := st.Clone()

	switch d := delta.(type) {
	case ResearchDelta:
		reduceResearch(out, d, logger)
	case SectionDelta:
		reduceSection(out, d, logger)
	case ConnectionDelta:
		reduceConnections(out, d)
	case EvaluationDelta:
		reduceEvaluations(out, d)
	case InterruptDelta:
		reduceInterrupt(out, d, logger)
	case ErrorDelta:
		out.Errors = append(out.Errors, WorkflowError{
			Component:  d.Component,
			Message:    d.Message,
			OccurredAt: time.Now().UTC(),
		})
	default:
		logger.Warn("Dropping delta of unknown kind", "kind", delta.Kind())
		return out
	}

	out.Step++
	out.UpdatedAt = time.Now().UTC()
	return out
}

// reduceResearch merges a research delta into the topic record. Re-applying
// the same delta is a no-op for queries, URLs, and entities, which makes
// retried tool calls safe.
func reduceResearch(st *WorkflowState, d ResearchDelta, logger *slog.Logger) {
	if d.Topic == "" {
		logger.Warn("Dropping research delta without topic")
		return
	}

	rec := st.Research[d.Topic]
	if rec == nil {
		rec = &TopicResearch{Topic: d.Topic}
		st.Research[d.Topic] = rec
	}

	rec.SearchQueries = appendUnique(rec.SearchQueries, d.SearchQueries)
	rec.ExtractedURLs = appendUnique(rec.ExtractedURLs, d.ExtractedURLs)
	rec.Entities = mergeEntities(rec.Entities, d.Entities)
	rec.Insights = appendUniqueInsights(rec.Insights, d.Insights)

	if d.Complete {
		rec.Complete = true
	}
	if d.Error != "" {
		rec.Error = d.Error
	}
}

// reduceSection applies the optimistic concurrency rule for sections: the
// delta with the higher intended version wins, and the stored version becomes
// max(existing, incoming)+1 when content changed.
func reduceSection(st *WorkflowState, d SectionDelta, logger *slog.Logger) {
	incoming := d.Section
	if incoming.ID == "" {
		logger.Warn("Dropping section delta without id")
		return
	}
	if incoming.Status != "" && !incoming.Status.IsValid() {
		logger.Warn("Dropping section delta with invalid status",
			"section", incoming.ID, "status", incoming.Status)
		return
	}

	existing := st.Sections[incoming.ID]
	if existing == nil {
		sec := incoming.Clone()
		if sec.Version == 0 {
			sec.Version = 1
		}
		sec.LastUpdated = time.Now().UTC()
		st.Sections[sec.ID] = sec
		return
	}

	if incoming.Version < existing.Version {
		logger.Debug("Dropping stale concurrent section write",
			"section", incoming.ID,
			"incoming_version", incoming.Version,
			"stored_version", existing.Version)
		return
	}

	merged := incoming.Clone()
	if merged.Content != existing.Content {
		merged.Version = maxInt(existing.Version, incoming.Version) + 1
	} else {
		merged.Version = maxInt(existing.Version, incoming.Version)
	}
	merged.LastUpdated = time.Now().UTC()
	st.Sections[merged.ID] = merged
}

// reduceConnections merges pairs by id. An incoming record replaces the
// stored one only if its confidence is at least as high; either way the
// provenance lists are unioned so no source is discarded.
func reduceConnections(st *WorkflowState, d ConnectionDelta) {
	for _, pair := range d.Pairs {
		if pair.ID == "" {
			continue
		}
		existing := st.Connections[pair.ID]
		if existing == nil {
			p := pair
			p.Sources = appendUnique(nil, pair.Sources)
			st.Connections[pair.ID] = &p
			continue
		}
		if pair.Confidence >= existing.Confidence {
			merged := pair
			merged.Sources = appendUnique(existing.Sources, pair.Sources)
			st.Connections[pair.ID] = &merged
		} else {
			existing.Sources = appendUnique(existing.Sources, pair.Sources)
		}
	}
}

// reduceEvaluations merges results by section id with the same
// higher-confidence rule as connection pairs.
func reduceEvaluations(st *WorkflowState, d EvaluationDelta) {
	for _, res := range d.Results {
		if res.SectionID == "" {
			continue
		}
		existing := st.Evaluations[res.SectionID]
		if existing == nil {
			r := res
			r.Sources = appendUnique(nil, res.Sources)
			st.Evaluations[res.SectionID] = &r
			continue
		}
		if res.Score >= existing.Score {
			merged := res
			merged.Sources = appendUnique(existing.Sources, res.Sources)
			st.Evaluations[res.SectionID] = &merged
		} else {
			existing.Sources = appendUnique(existing.Sources, res.Sources)
		}
	}
}

func reduceInterrupt(st *WorkflowState, d InterruptDelta, logger *slog.Logger) {
	if d.Clear {
		st.Interrupt = nil
		return
	}
	if d.Interrupt == nil {
		logger.Warn("Dropping interrupt delta with neither interrupt nor clear")
		return
	}
	ic := *d.Interrupt
	st.Interrupt = &ic
}

// mergeEntities merges by entity key. A later record with Searched=true
// overwrites an earlier Searched=false record for the same key; attribute
// maps are shallow-merged with the later write winning per field.
func mergeEntities(existing, incoming []Entity) []Entity {
	if len(incoming) == 0 {
		return existing
	}

	index := make(map[string]int, len(existing))
	out := append([]Entity(nil), existing...)
	for i, e := range out {
		index[e.Key()] = i
	}

	for _, in := range incoming {
		if in.Name == "" {
			continue
		}
		i, ok := index[in.Key()]
		if !ok {
			e := in
			e.Attributes = copyAttrs(nil, in.Attributes)
			index[e.Key()] = len(out)
			out = append(out, e)
			continue
		}

		cur := out[i]
		merged := cur
		merged.Attributes = copyAttrs(cur.Attributes, in.Attributes)
		if in.Searched {
			merged.Searched = true
			merged.Name = in.Name
			merged.Type = in.Type
		}
		out[i] = merged
	}
	return out
}

func copyAttrs(base, overlay map[string]string) map[string]string {
	if base == nil && overlay == nil {
		return nil
	}
	out := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

// appendUnique unions values into the list preserving first-seen order.
// Re-adding an existing value is a no-op.
func appendUnique(existing, incoming []string) []string {
	if len(incoming) == 0 {
		return existing
	}
	seen := make(map[string]bool, len(existing))
	out := append([]string(nil), existing...)
	for _, v := range existing {
		seen[v] = true
	}
	for _, v := range incoming {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func appendUniqueInsights(existing, incoming []Insight) []Insight {
	if len(incoming) == 0 {
		return existing
	}
	seen := make(map[string]bool, len(existing))
	out := append([]Insight(nil), existing...)
	for _, ins := range existing {
		seen[ins.Text] = true
	}
	for _, ins := range incoming {
		if ins.Text == "" || seen[ins.Text] {
			continue
		}
		seen[ins.Text] = true
		out = append(out, ins)
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
