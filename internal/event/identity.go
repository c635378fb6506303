package event

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// uidDomain is cosmetic but must never change: iCalendar UID grammar wants
// a domain part, and stable identity requires a stable suffix.
const uidDomain = "rics.local"

// StableUID derives the content-addressed UID for a candidate. The identity
// string prefers the source-assigned event id, then the source URL, then a
// lowercased title plus year bucket. No per-run input may enter here.
func StableUID(c *Candidate) string {
	var identity string
	switch {
	case c.SourceEventID != "":
		identity = c.SourceKey + "::" + c.SourceEventID
	case c.SourceURL != "":
		identity = c.SourceKey + "::" + c.SourceURL
	default:
		bucket := "undated"
		if year, ok := c.Time.YearBucket(); ok {
			bucket = fmt.Sprintf("%d", year)
		}
		identity = c.SourceKey + "::" + strings.ToLower(c.Title) + "::" + bucket
	}

	digest := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(digest[:])[:24] + "@" + uidDomain
}

// revisionMaterial is the canonical revision payload. Field order is the
// marshal order; metadata keys sort, so the bytes are stable across runs.
// SourceName, Timezone, Importance, Confidence, Jurisdiction and Country
// are deliberately absent: they may drift without provoking a revision.
type revisionMaterial struct {
	SourceKey     string            `json:"source_key"`
	SourceEventID string            `json:"source_event_id"`
	SourceURL     string            `json:"source_url"`
	Title         string            `json:"title"`
	Description   string            `json:"description"`
	Time          TimeSpec          `json:"time"`
	Status        string            `json:"status"`
	EventType     string            `json:"event_type"`
	Subtype       string            `json:"subtype"`
	Categories    []string          `json:"categories"`
	Metadata      map[string]string `json:"metadata"`
}

// RevisionHash hashes the content fields that constitute a logical update.
// Categories must already be sorted and de-duplicated by the caller.
func RevisionHash(c *Candidate) string {
	material := revisionMaterial{
		SourceKey:     c.SourceKey,
		SourceEventID: c.SourceEventID,
		SourceURL:     c.SourceURL,
		Title:         c.Title,
		Description:   c.Description,
		Time:          c.Time,
		Status:        c.Status,
		EventType:     c.EventType,
		Subtype:       c.Subtype,
		Categories:    c.Categories,
		Metadata:      c.Metadata,
	}

	// Marshal cannot fail: the material is strings, ints and maps of strings.
	payload, _ := json.Marshal(material)
	digest := sha256.Sum256(payload)
	return hex.EncodeToString(digest[:])
}
