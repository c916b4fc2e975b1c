package domain

import (
	"encoding/json"
	"time"
)

// Entity represents a catalog record (a metric, business domain or objective)
// identified by its natural id within a collection. Fields is the dynamic
// property bag validated against the collection's Schema; Meta carries the
// semantic version and the full audit history.
type Entity struct {
	ID         string          `json:"id"`
	Collection string          `json:"collection"`
	Fields     map[string]any  `json:"fields"`
	Meta       VersionMetadata `json:"version_meta"`
}

// VersionMetadata tracks the semantic version of an entity together with its
// immutable change history. ChangeHistory is append-only: Version always
// equals the version of the last entry, and LastUpdated/LastUpdatedBy always
// mirror that entry's timestamp and actor.
type VersionMetadata struct {
	Version       string        `json:"version"`
	CreatedAt     time.Time     `json:"created_at"`
	CreatedBy     string        `json:"created_by"`
	LastUpdated   time.Time     `json:"last_updated"`
	LastUpdatedBy string        `json:"last_updated_by"`
	ChangeHistory []ChangeEntry `json:"change_history"`
}

// ChangeEntry is one immutable audit record describing a single state
// transition. Seq is a monotonically increasing number scoped to the entity;
// it breaks ties between entries whose wall-clock timestamps collide and lets
// history ordering be verified independently of clock skew.
type ChangeEntry struct {
	Seq            int64     `json:"seq"`
	Version        string    `json:"version"`
	Timestamp      time.Time `json:"timestamp"`
	ChangedBy      string    `json:"changed_by"`
	ChangeType     Severity  `json:"change_type"`
	ChangesSummary string    `json:"changes_summary"`
	FieldsChanged  []string  `json:"fields_changed"`
}

// CreationFieldsSentinel is the fields_changed value for the synthetic
// history entry written when an entity is created.
const CreationFieldsSentinel = "*"

// WithFields returns a copy of the entity with the given fields merged over
// the current ones. The receiver is not mutated.
func (e Entity) WithFields(fields map[string]any) Entity {
	merged := CloneFields(e.Fields)
	for k, v := range fields {
		merged[k] = CloneValue(v)
	}
	e.Fields = merged
	return e
}

// Clone returns a deep copy of the entity, including its change history.
func (e Entity) Clone() Entity {
	e.Fields = CloneFields(e.Fields)
	e.Meta = e.Meta.Clone()
	return e
}

// Clone returns a deep copy of the metadata block. The history slice is
// copied so appends on the clone never alias the original.
func (m VersionMetadata) Clone() VersionMetadata {
	if len(m.ChangeHistory) > 0 {
		history := make([]ChangeEntry, len(m.ChangeHistory))
		copy(history, m.ChangeHistory)
		for i := range history {
			history[i].FieldsChanged = append([]string(nil), history[i].FieldsChanged...)
		}
		m.ChangeHistory = history
	}
	return m
}

// LastEntry returns the most recent history entry, if any.
func (m VersionMetadata) LastEntry() (ChangeEntry, bool) {
	if len(m.ChangeHistory) == 0 {
		return ChangeEntry{}, false
	}
	return m.ChangeHistory[len(m.ChangeHistory)-1], true
}

// NextSeq returns the sequence number the next history entry must carry.
func (m VersionMetadata) NextSeq() int64 {
	last, ok := m.LastEntry()
	if !ok {
		return 1
	}
	return last.Seq + 1
}

// CloneFields deep-copies a field map so stored state never aliases caller
// payloads.
func CloneFields(fields map[string]any) map[string]any {
	cloned := make(map[string]any, len(fields))
	for k, v := range fields {
		cloned[k] = CloneValue(v)
	}
	return cloned
}

// CloneValue deep-copies a single field value. Nested maps and slices are
// copied recursively; scalars are returned as-is.
func CloneValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return CloneFields(typed)
	case []any:
		cloned := make([]any, len(typed))
		for i, item := range typed {
			cloned[i] = CloneValue(item)
		}
		return cloned
	case []string:
		return append([]string(nil), typed...)
	default:
		return value
	}
}

// MarshalMeta encodes the metadata block for the relational backend's JSONB
// column. The file backend persists the same shape inlined in the document.
func (m VersionMetadata) MarshalMeta() (json.RawMessage, error) {
	return json.Marshal(m)
}

// UnmarshalMeta decodes a metadata block from its persisted JSONB form.
func UnmarshalMeta(raw json.RawMessage) (VersionMetadata, error) {
	var meta VersionMetadata
	err := json.Unmarshal(raw, &meta)
	return meta, err
}
