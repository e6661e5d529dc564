// Where: cli/internal/provisioner/report.go
// What: Provisioning outcomes and the aggregated report.
// Why: Every attempted object is enumerated so the caller decides whether partial success is acceptable.
package provisioner

import (
	"encoding/json"
	"errors"
)

// Kind names the schema object a result refers to.
type Kind string

const (
	KindDatabase   Kind = "database"
	KindBucket     Kind = "bucket"
	KindCollection Kind = "collection"
	KindAttribute  Kind = "attribute"
	KindIndex      Kind = "index"
)

// Outcome is the per-object result of a run.
type Outcome string

const (
	Created       Outcome = "created"
	AlreadyExists Outcome = "already_exists"
	Failed        Outcome = "failed"
	// Skipped objects were never attempted: an earlier object of the same
	// collection failed, or the run was cancelled.
	Skipped Outcome = "skipped"
)

// ErrSkipped is wrapped by the Err of every Skipped result caused by a failure.
var ErrSkipped = errors.New("skipped after earlier failure")

// Result is the outcome of a single object.
type Result struct {
	Kind    Kind
	ID      string
	Parent  string // collection id for attributes and indexes
	Outcome Outcome
	Err     error
}

// Path is "collection.key" for attributes and indexes, otherwise the id.
func (r Result) Path() string {
	if r.Parent == "" {
		return r.ID
	}
	return r.Parent + "." + r.ID
}

func (r Result) MarshalJSON() ([]byte, error) {
	out := struct {
		Kind    Kind    `json:"kind"`
		ID      string  `json:"id"`
		Parent  string  `json:"parent,omitempty"`
		Outcome Outcome `json:"outcome"`
		Error   string  `json:"error,omitempty"`
	}{Kind: r.Kind, ID: r.ID, Parent: r.Parent, Outcome: r.Outcome}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}

// Counts tallies results by outcome.
type Counts struct {
	Created       int `json:"created"`
	AlreadyExists int `json:"alreadyExists"`
	Failed        int `json:"failed"`
	Skipped       int `json:"skipped"`
}

// Total is the number of counted results.
func (c Counts) Total() int {
	return c.Created + c.AlreadyExists + c.Failed + c.Skipped
}

func (c *Counts) add(o Outcome) {
	switch o {
	case Created:
		c.Created++
	case AlreadyExists:
		c.AlreadyExists++
	case Failed:
		c.Failed++
	case Skipped:
		c.Skipped++
	}
}

// Report is built append-only by a single run, in execution order.
type Report struct {
	Database string
	Results  []Result
	// Aborted is set when the database could not be ensured; nothing else was attempted.
	Aborted bool
}

func (r *Report) add(res Result) {
	r.Results = append(r.Results, res)
}

// Success reports whether every object was created or already existed.
func (r Report) Success() bool {
	if r.Aborted {
		return false
	}
	for _, res := range r.Results {
		if res.Outcome == Failed || res.Outcome == Skipped {
			return false
		}
	}
	return true
}

func (r Report) Counts() Counts {
	var c Counts
	for _, res := range r.Results {
		c.add(res.Outcome)
	}
	return c
}

// CountsFor tallies the results of one kind.
func (r Report) CountsFor(kind Kind) Counts {
	var c Counts
	for _, res := range r.Results {
		if res.Kind == kind {
			c.add(res.Outcome)
		}
	}
	return c
}

// Failures returns the Failed results in execution order.
func (r Report) Failures() []Result {
	var out []Result
	for _, res := range r.Results {
		if res.Outcome == Failed {
			out = append(out, res)
		}
	}
	return out
}

// Find returns the result for an object; parent is empty for top-level objects.
func (r Report) Find(kind Kind, parent, id string) (Result, bool) {
	for _, res := range r.Results {
		if res.Kind == kind && res.Parent == parent && res.ID == id {
			return res, true
		}
	}
	return Result{}, false
}

// CollectionSucceeded reports whether a collection and all of its attributes
// and indexes were created or already existed.
func (r Report) CollectionSucceeded(id string) bool {
	found := false
	for _, res := range r.Results {
		owned := (res.Kind == KindCollection && res.ID == id) || res.Parent == id
		if !owned {
			continue
		}
		found = true
		if res.Outcome == Failed || res.Outcome == Skipped {
			return false
		}
	}
	return found
}

func (r Report) MarshalJSON() ([]byte, error) {
	results := r.Results
	if results == nil {
		results = []Result{}
	}
	return json.Marshal(struct {
		Database string   `json:"database"`
		Success  bool     `json:"success"`
		Aborted  bool     `json:"aborted"`
		Counts   Counts   `json:"counts"`
		Results  []Result `json:"results"`
	}{
		Database: r.Database,
		Success:  r.Success(),
		Aborted:  r.Aborted,
		Counts:   r.Counts(),
		Results:  results,
	})
}
