package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Pair is one (query, target name) lookup in a batch.
type Pair struct {
	// Query is the search text typed into the map service.
	Query string `json:"query" binding:"required"`

	// Target is the exact display name to look for in the result feed.
	Target string `json:"target" binding:"required"`
}

// Validate rejects pairs whose query or target is blank after trimming.
func (p Pair) Validate() error {
	if strings.TrimSpace(p.Query) == "" {
		return errors.New("query must not be empty")
	}
	if strings.TrimSpace(p.Target) == "" {
		return errors.New("target must not be empty")
	}
	return nil
}

// Entry is one item of a rendered result feed.
type Entry struct {
	// Position is the 1-based ordinal in document order, sponsored entries included.
	Position int

	// Sponsored marks paid placements. They take an ordinal slot but never match.
	Sponsored bool

	// Identity is the trimmed display name. Only meaningful when HasIdentity is set.
	Identity    string
	HasIdentity bool
}

// Matches reports whether the entry is an organic entry whose identity equals
// target (both trimmed, case-sensitive).
func (e Entry) Matches(target string) bool {
	if e.Sponsored || !e.HasIdentity {
		return false
	}
	return e.Identity == strings.TrimSpace(target)
}

// Outcome is the result of one resolution attempt: either Found(rank) or NotFound.
// The zero value is NotFound.
type Outcome struct {
	rank int
}

// NotFound is the outcome of a resolution that never matched the target.
var NotFound = Outcome{}

// Found returns the outcome for a match at the given 1-based rank.
func Found(rank int) Outcome {
	if rank < 1 {
		panic(fmt.Sprintf("models: invalid rank %d", rank))
	}
	return Outcome{rank: rank}
}

// Rank returns the matched rank and true, or 0 and false for NotFound.
func (o Outcome) Rank() (int, bool) {
	return o.rank, o.rank > 0
}

// IsFound reports whether the target was matched.
func (o Outcome) IsFound() bool { return o.rank > 0 }

func (o Outcome) String() string {
	if o.rank > 0 {
		return strconv.Itoa(o.rank)
	}
	return "not found"
}

type outcomeJSON struct {
	Found bool `json:"found"`
	Rank  int  `json:"rank,omitempty"`
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(outcomeJSON{Found: o.rank > 0, Rank: o.rank})
}

func (o *Outcome) UnmarshalJSON(data []byte) error {
	var v outcomeJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v.Found {
		if v.Rank < 1 {
			return fmt.Errorf("models: found outcome with invalid rank %d", v.Rank)
		}
		o.rank = v.Rank
		return nil
	}
	o.rank = 0
	return nil
}

// ResultRow is the unit a batch produces: one per input pair, in input order.
type ResultRow struct {
	Query   string  `json:"query"`
	Target  string  `json:"target"`
	Outcome Outcome `json:"outcome"`

	// Error explains why a NotFound row failed, when it did.
	Error *ErrorDetail `json:"error,omitempty"`
}
