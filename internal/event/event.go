package event

import (
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

// StatusCancelled is the status value that removes a record from calendar
// output. Comparison is case-insensitive everywhere.
const StatusCancelled = "cancelled"

// Candidate is a freshly extracted event before identity and revision
// derivation.
type Candidate struct {
	SourceKey     string
	SourceName    string
	SourceEventID string
	SourceURL     string
	Title         string
	Description   string
	Time          TimeSpec
	Timezone      string
	Status        string
	EventType     string
	Subtype       string
	Categories    []string
	Jurisdiction  string
	Country       string
	Importance    *uint8
	Confidence    *float64
	Metadata      map[string]string
}

// Record is the stored form of a candidate: identity, revision tracking
// and bookkeeping timestamps on top of the candidate fields.
type Record struct {
	UID           string            `json:"uid"`
	SourceKey     string            `json:"source_key"`
	SourceName    string            `json:"source_name"`
	SourceEventID string            `json:"source_event_id,omitempty"`
	SourceURL     string            `json:"source_url,omitempty"`
	Title         string            `json:"title"`
	Description   string            `json:"description,omitempty"`
	Time          TimeSpec          `json:"time"`
	Timezone      string            `json:"timezone,omitempty"`
	Status        string            `json:"status"`
	EventType     string            `json:"event_type"`
	Subtype       string            `json:"subtype,omitempty"`
	Categories    []string          `json:"categories"`
	Jurisdiction  string            `json:"jurisdiction,omitempty"`
	Country       string            `json:"country,omitempty"`
	Importance    *uint8            `json:"importance,omitempty"`
	Confidence    *float64          `json:"confidence,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Sequence      uint32            `json:"sequence"`
	RevisionHash  string            `json:"revision_hash"`
	CreatedAt     time.Time         `json:"created_at"`
	LastModified  time.Time         `json:"last_modified"`
	LastSeenAt    time.Time         `json:"last_seen_at"`
}

func (r *Record) YearBucket() (int, bool) {
	return r.Time.YearBucket()
}

func (r *Record) IsFutureRelativeTo(today civil.Date) bool {
	return r.Time.IsFutureRelativeTo(today)
}

func (r *Record) IsCancelled() bool {
	return strings.EqualFold(r.Status, StatusCancelled)
}

// State is the durable event map persisted between runs. Events are keyed
// by UID; JSON serialization orders keys, so state files are byte-stable
// for identical inputs.
type State struct {
	SchemaVersion uint32             `json:"schema_version"`
	Events        map[string]*Record `json:"events"`
}

func NewState() *State {
	return &State{SchemaVersion: 1, Events: make(map[string]*Record)}
}

// SourceRunReport counts merge outcomes for one source in one sync cycle.
type SourceRunReport struct {
	SourceKey     string `json:"source_key"`
	PagesFetched  int    `json:"pages_fetched"`
	RecordsParsed int    `json:"records_parsed"`
	Inserted      int    `json:"inserted"`
	Updated       int    `json:"updated"`
	Cancelled     int    `json:"cancelled"`
	Unchanged     int    `json:"unchanged"`
	Err           string `json:"error,omitempty"`
}

