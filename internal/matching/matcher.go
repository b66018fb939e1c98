package matching

import (
	"context"
	"sort"

	"speakerid/internal/vectorstore"
)

// Confidence tiers produced by the competitive matcher.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Canonical thresholds from the matcher's design.
const (
	HighScoreThreshold = float32(0.55)
	HighMargin         = float32(0.10)
	TopK               = 5
)

// Candidate is one scored name in a MatchResult's candidate list.
type Candidate struct {
	Name  string
	Score float32
}

// Result is the per-diarized-speaker outcome of a matching pass.
type Result struct {
	Confidence   string
	AssignedName string
	TopScore     float32
	Margin       float32
	Candidates   []Candidate
}

// unseenCost stands in for a (diarized speaker, name) pair that never
// appeared in that speaker's own top-k query: cost 2 is equivalent to
// similarity -1, i.e. effectively infinite, so the Hungarian solver never
// prefers it over a real candidate unless forced to by uniqueness
// pressure.
const unseenCost = 2.0

// Match runs the full competitive-matching procedure over a set of
// diarized speaker embeddings, querying store for each speaker's top-K
// neighbors, solving a minimum-cost assignment, and classifying each
// speaker's result into a confidence tier.
//
// labels and embeddings must be the same length and share index i <-> i.
func Match(ctx context.Context, store vectorstore.Store, labels []string, embeddings [][]float32) (map[string]Result, error) {
	results := make(map[string]Result, len(labels))
	if len(labels) == 0 {
		return results, nil
	}

	perSpeakerCandidates := make([][]Candidate, len(labels))
	nameSet := map[string]struct{}{}

	for i, emb := range embeddings {
		if len(emb) == 0 {
			perSpeakerCandidates[i] = nil
			continue
		}
		matches, err := store.Query(ctx, emb, TopK)
		if err != nil {
			return nil, err
		}
		cands := make([]Candidate, len(matches))
		for j, m := range matches {
			cands[j] = Candidate{Name: m.Name, Score: m.Score}
			nameSet[m.Name] = struct{}{}
		}
		sort.Slice(cands, func(a, b int) bool { return cands[a].Score > cands[b].Score })
		perSpeakerCandidates[i] = cands
	}

	names := make([]string, 0, len(nameSet))
	for n := range nameSet {
		names = append(names, n)
	}
	sort.Strings(names)
	nameIndex := make(map[string]int, len(names))
	for i, n := range names {
		nameIndex[n] = i
	}

	if len(names) == 0 {
		for i, label := range labels {
			results[label] = emptyResult(perSpeakerCandidates[i])
		}
		return results, nil
	}

	cost := make([][]float64, len(labels))
	for i := range cost {
		row := make([]float64, len(names))
		for j := range row {
			row[j] = unseenCost
		}
		for _, c := range perSpeakerCandidates[i] {
			row[nameIndex[c.Name]] = float64(1 - c.Score)
		}
		cost[i] = row
	}

	assignment := SolveAssignment(cost)

	assignedNameAt := make([]string, len(labels))
	survives := make([]bool, len(labels))
	for i, colIdx := range assignment {
		if colIdx < 0 || colIdx >= len(names) {
			continue
		}
		if cost[i][colIdx] >= unseenCost {
			continue
		}
		assignedNameAt[i] = names[colIdx]
		survives[i] = true
	}

	for i, label := range labels {
		cands := perSpeakerCandidates[i]
		if len(cands) == 0 {
			results[label] = emptyResult(nil)
			continue
		}

		top := cands[0]
		assigned := top.Name
		if survives[i] {
			assigned = assignedNameAt[i]
		}

		topScore := scoreFor(cands, assigned)
		margin := topScore - secondBestExcluding(cands, assigned)

		confidence := ConfidenceLow
		assignedName := ""
		switch {
		case topScore >= HighScoreThreshold && margin >= HighMargin && survives[i]:
			confidence = ConfidenceHigh
			assignedName = assigned
		case topScore >= HighScoreThreshold:
			confidence = ConfidenceMedium
		}

		results[label] = Result{
			Confidence:   confidence,
			AssignedName: assignedName,
			TopScore:     topScore,
			Margin:       margin,
			Candidates:   cands,
		}
	}

	dedupeHighCollisions(results)
	return results, nil
}

func emptyResult(candidates []Candidate) Result {
	return Result{Confidence: ConfidenceLow, Candidates: candidates}
}

func scoreFor(candidates []Candidate, name string) float32 {
	for _, c := range candidates {
		if c.Name == name {
			return c.Score
		}
	}
	return -1
}

func secondBestExcluding(candidates []Candidate, name string) float32 {
	best := float32(-1)
	for _, c := range candidates {
		if c.Name == name {
			continue
		}
		if c.Score > best {
			best = c.Score
		}
	}
	return best
}

// dedupeHighCollisions is a defensive backstop for the uniqueness
// invariant: the Hungarian assignment already guarantees at most one
// speaker wins a given name, but if a tie in cost construction ever let
// two speakers land on the same assigned_name, this resolves it
// deterministically by walking labels in sorted order and collapsing every
// collision after the first to medium or low.
func dedupeHighCollisions(results map[string]Result) {
	labels := make([]string, 0, len(results))
	for label := range results {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	seen := map[string]string{} // assigned name -> label that holds it
	for _, label := range labels {
		r := results[label]
		if r.Confidence != ConfidenceHigh {
			continue
		}
		if holder, ok := seen[r.AssignedName]; ok && holder != label {
			r.Confidence = ConfidenceMedium
			if r.TopScore < HighScoreThreshold {
				r.Confidence = ConfidenceLow
			}
			r.AssignedName = ""
			results[label] = r
			continue
		}
		seen[r.AssignedName] = label
	}
}
