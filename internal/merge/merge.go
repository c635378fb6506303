// Package merge reconciles a run's candidate events against the durable
// state, classifying each outcome and tracking which year buckets need
// their calendars rebuilt. It is a pure function of (state, candidates,
// now); it performs no I/O and cannot fail.
package merge

import (
	"sort"
	"time"

	"cloud.google.com/go/civil"

	"github.com/sguzman/rics/internal/event"
)

// Apply upserts candidates for one source into state, then sweeps the
// source's remaining records for cancellation. Returns the sorted set of
// changed year buckets.
//
// Classification per candidate: unknown UID inserts at sequence 0; a known
// UID with a differing revision hash replaces the record (created_at
// preserved, sequence bumped); an identical hash only refreshes
// last_seen_at. Candidates sharing a UID within one run are
// last-writer-wins.
func Apply(
	state *event.State,
	sourceKey string,
	candidates []event.Candidate,
	report *event.SourceRunReport,
	now time.Time,
	today civil.Date,
) []int {
	now = now.UTC().Truncate(time.Second)
	seenUIDs := make(map[string]struct{}, len(candidates))
	changedYears := make(map[int]struct{})

	for i := range candidates {
		candidate := &candidates[i]
		candidate.Categories = sortAndDedupe(candidate.Categories)

		uid := event.StableUID(candidate)
		revisionHash := event.RevisionHash(candidate)
		seenUIDs[uid] = struct{}{}

		existing, known := state.Events[uid]
		switch {
		case known && existing.RevisionHash != revisionHash:
			createdAt := existing.CreatedAt
			sequence := saturatingInc(existing.Sequence)
			state.Events[uid] = candidateToRecord(candidate, uid, revisionHash, sequence, createdAt, now)
			report.Updated++
			if year, ok := candidate.Time.YearBucket(); ok {
				changedYears[year] = struct{}{}
			}
		case known:
			existing.LastSeenAt = now
			report.Unchanged++
		default:
			state.Events[uid] = candidateToRecord(candidate, uid, revisionHash, 0, now, now)
			report.Inserted++
			if year, ok := candidate.Time.YearBucket(); ok {
				changedYears[year] = struct{}{}
			}
		}
	}

	// Cancellation sweep: a record of this source that no longer appears
	// among the candidates is cancelled, but only if it is still in the
	// future and not cancelled already. Past events are preserved as-is;
	// the source may simply have stopped listing them.
	for _, uid := range sortedUIDs(state.Events) {
		record := state.Events[uid]
		if record.SourceKey != sourceKey {
			continue
		}
		if _, seen := seenUIDs[record.UID]; seen {
			continue
		}
		if !record.IsFutureRelativeTo(today) {
			continue
		}
		if record.IsCancelled() {
			continue
		}

		record.Status = event.StatusCancelled
		record.Sequence = saturatingInc(record.Sequence)
		// The stored hash follows the new status, so a candidate that later
		// reappears unchanged hashes differently and is classified updated.
		record.RevisionHash = event.RevisionHash(&event.Candidate{
			SourceKey:     record.SourceKey,
			SourceEventID: record.SourceEventID,
			SourceURL:     record.SourceURL,
			Title:         record.Title,
			Description:   record.Description,
			Time:          record.Time,
			Status:        record.Status,
			EventType:     record.EventType,
			Subtype:       record.Subtype,
			Categories:    record.Categories,
			Metadata:      record.Metadata,
		})
		record.LastModified = now
		record.LastSeenAt = now
		report.Cancelled++

		if year, ok := record.YearBucket(); ok {
			changedYears[year] = struct{}{}
		}
	}

	years := make([]int, 0, len(changedYears))
	for year := range changedYears {
		years = append(years, year)
	}
	sort.Ints(years)
	return years
}

func candidateToRecord(c *event.Candidate, uid, revisionHash string, sequence uint32, createdAt, now time.Time) *event.Record {
	return &event.Record{
		UID:           uid,
		SourceKey:     c.SourceKey,
		SourceName:    c.SourceName,
		SourceEventID: c.SourceEventID,
		SourceURL:     c.SourceURL,
		Title:         c.Title,
		Description:   c.Description,
		Time:          c.Time,
		Timezone:      c.Timezone,
		Status:        c.Status,
		EventType:     c.EventType,
		Subtype:       c.Subtype,
		Categories:    c.Categories,
		Jurisdiction:  c.Jurisdiction,
		Country:       c.Country,
		Importance:    c.Importance,
		Confidence:    c.Confidence,
		Metadata:      c.Metadata,
		Sequence:      sequence,
		RevisionHash:  revisionHash,
		CreatedAt:     createdAt,
		LastModified:  now,
		LastSeenAt:    now,
	}
}

func sortAndDedupe(values []string) []string {
	sort.Strings(values)
	out := values[:0]
	var prev string
	for i, v := range values {
		if i == 0 || v != prev {
			out = append(out, v)
		}
		prev = v
	}
	return out
}

func saturatingInc(v uint32) uint32 {
	if v == ^uint32(0) {
		return v
	}
	return v + 1
}

func sortedUIDs(events map[string]*event.Record) []string {
	uids := make([]string, 0, len(events))
	for uid := range events {
		uids = append(uids, uid)
	}
	sort.Strings(uids)
	return uids
}
