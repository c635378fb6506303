package event

import (
	"strings"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/require"
)

func sampleCandidate() *Candidate {
	return &Candidate{
		SourceKey:  "test.source",
		SourceName: "Test Source",
		Title:      "Quarterly Outlook",
		Time:       NewDate(civil.Date{Year: 2026, Month: 5, Day: 1}, nil),
		Status:     "scheduled",
		EventType:  "publication",
		Categories: []string{"economics"},
		Metadata:   map[string]string{"base_url": "https://example.org"},
	}
}

func TestStableUIDPrefersEventID(t *testing.T) {
	c := sampleCandidate()
	c.SourceEventID = "ev-1"
	c.SourceURL = "https://example.org/a"

	withID := StableUID(c)
	c.SourceURL = "https://example.org/b"
	require.Equal(t, withID, StableUID(c), "uid must ignore the url when an event id is set")

	c.SourceEventID = ""
	require.NotEqual(t, withID, StableUID(c))
}

func TestStableUIDFallsBackToTitleAndYear(t *testing.T) {
	c := sampleCandidate()
	uid := StableUID(c)

	upper := sampleCandidate()
	upper.Title = strings.ToUpper(upper.Title)
	require.Equal(t, uid, StableUID(upper), "title comparison is case-insensitive")

	undated := sampleCandidate()
	undated.Time = NewTbd("")
	require.NotEqual(t, uid, StableUID(undated))
}

func TestStableUIDShape(t *testing.T) {
	uid := StableUID(sampleCandidate())
	require.Regexp(t, `^[0-9a-f]{24}@rics\.local$`, uid)
	require.Equal(t, uid, StableUID(sampleCandidate()), "uid must be a pure function of the candidate")
}

func TestRevisionHashTracksContentFields(t *testing.T) {
	base := RevisionHash(sampleCandidate())
	require.Len(t, base, 64)

	retitled := sampleCandidate()
	retitled.Title = "Quarterly Outlook, Revised"
	require.NotEqual(t, base, RevisionHash(retitled))

	restatused := sampleCandidate()
	restatused.Status = "cancelled"
	require.NotEqual(t, base, RevisionHash(restatused))

	moved := sampleCandidate()
	moved.Time = NewDate(civil.Date{Year: 2026, Month: 5, Day: 20}, nil)
	require.NotEqual(t, base, RevisionHash(moved))
}

func TestRevisionHashIgnoresDriftingFields(t *testing.T) {
	base := RevisionHash(sampleCandidate())

	drifted := sampleCandidate()
	drifted.SourceName = "Renamed Source"
	drifted.Timezone = "Europe/Paris"
	drifted.Jurisdiction = "EU"
	drifted.Country = "FR"
	importance := uint8(9)
	drifted.Importance = &importance
	confidence := 0.25
	drifted.Confidence = &confidence

	require.Equal(t, base, RevisionHash(drifted),
		"revision-excluded fields must not provoke a revision")
}
