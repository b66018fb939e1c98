package matching

import (
	"context"
	"sort"
	"testing"

	"speakerid/internal/vectorstore"
)

// fixedStore returns canned Query results per embedding, keyed by the
// caller-supplied label order (identified positionally since tests control
// call order deterministically).
type fixedStore struct {
	responses [][]vectorstore.Match
	calls     int
}

func (f *fixedStore) Query(context.Context, []float32, int) ([]vectorstore.Match, error) {
	resp := f.responses[f.calls]
	f.calls++
	return resp, nil
}

func (f *fixedStore) Upsert(context.Context, string, []float32, vectorstore.Metadata) error { return nil }
func (f *fixedStore) Get(context.Context, string) ([]float32, vectorstore.Metadata, bool, error) {
	return nil, vectorstore.Metadata{}, false, nil
}
func (f *fixedStore) Delete(context.Context, string) error                  { return nil }
func (f *fixedStore) ListAll(context.Context) ([]vectorstore.Entry, error) { return nil, nil }

func dummyEmbedding() []float32 {
	return []float32{1, 0, 0}
}

func TestMatchBoundaryLowScore(t *testing.T) {
	store := &fixedStore{responses: [][]vectorstore.Match{
		{{Name: "alice", Score: 0.549}},
	}}
	results, err := Match(context.Background(), store, []string{"X"}, [][]float32{dummyEmbedding()})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if results["X"].Confidence != ConfidenceLow {
		t.Fatalf("expected low confidence at score 0.549, got %s", results["X"].Confidence)
	}
}

func TestMatchBoundaryMediumNarrowMargin(t *testing.T) {
	store := &fixedStore{responses: [][]vectorstore.Match{
		{{Name: "alice", Score: 0.55}, {Name: "bob", Score: 0.451}},
	}}
	results, err := Match(context.Background(), store, []string{"X"}, [][]float32{dummyEmbedding()})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	r := results["X"]
	if r.Confidence != ConfidenceMedium {
		t.Fatalf("expected medium confidence, got %s (margin=%v)", r.Confidence, r.Margin)
	}
	if r.AssignedName != "" {
		t.Fatalf("medium result must not set assigned_name")
	}
}

func TestMatchBoundaryHighUniqueWideMargin(t *testing.T) {
	store := &fixedStore{responses: [][]vectorstore.Match{
		{{Name: "alice", Score: 0.55}, {Name: "bob", Score: 0.45}},
	}}
	results, err := Match(context.Background(), store, []string{"X"}, [][]float32{dummyEmbedding()})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	r := results["X"]
	if r.Confidence != ConfidenceHigh {
		t.Fatalf("expected high confidence, got %s (score=%v margin=%v)", r.Confidence, r.TopScore, r.Margin)
	}
	if r.AssignedName != "alice" {
		t.Fatalf("expected assigned_name=alice, got %q", r.AssignedName)
	}
}

func TestMatchNoQualifyingUtterancesYieldsLowEmptyCandidates(t *testing.T) {
	store := &fixedStore{responses: [][]vectorstore.Match{{}}}
	results, err := Match(context.Background(), store, []string{"Z"}, [][]float32{{}})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	r := results["Z"]
	if r.Confidence != ConfidenceLow || len(r.Candidates) != 0 {
		t.Fatalf("expected low confidence with empty candidates, got %+v", r)
	}
}

func TestMatchUniqueHighAssignmentAcrossCompetingSpeakers(t *testing.T) {
	// X and Y both favor "alice" most strongly, but the Hungarian solver must
	// give alice to exactly one of them; the loser falls back to its next
	// best candidate or collapses to medium/low.
	store := &fixedStore{responses: [][]vectorstore.Match{
		{{Name: "alice", Score: 0.90}, {Name: "bob", Score: 0.20}},
		{{Name: "alice", Score: 0.85}, {Name: "bob", Score: 0.80}},
	}}
	results, err := Match(context.Background(), store, []string{"X", "Y"}, [][]float32{dummyEmbedding(), dummyEmbedding()})
	if err != nil {
		t.Fatalf("Match: %v", err)
	}

	highCount := 0
	var highNames []string
	for _, label := range []string{"X", "Y"} {
		if results[label].Confidence == ConfidenceHigh {
			highCount++
			highNames = append(highNames, results[label].AssignedName)
		}
	}
	sort.Strings(highNames)
	for i := 0; i < len(highNames); i++ {
		for j := i + 1; j < len(highNames); j++ {
			if highNames[i] == highNames[j] {
				t.Fatalf("two speakers both assigned %q at high confidence", highNames[i])
			}
		}
	}
}

func TestSolveAssignmentMinimizesTotalCost(t *testing.T) {
	cost := [][]float64{
		{0.1, 0.9},
		{0.9, 0.2},
	}
	assignment := SolveAssignment(cost)
	if assignment[0] != 0 || assignment[1] != 1 {
		t.Fatalf("expected diagonal assignment, got %v", assignment)
	}
}

func TestSolveAssignmentRectangularMoreRowsThanCols(t *testing.T) {
	cost := [][]float64{
		{0.1},
		{0.2},
	}
	assignment := SolveAssignment(cost)
	assignedCount := 0
	for _, a := range assignment {
		if a >= 0 {
			assignedCount++
		}
	}
	if assignedCount != 1 {
		t.Fatalf("expected exactly one row assigned to the single column, got %d", assignedCount)
	}
}
