package labels

import (
	"cmp"
	"slices"
)

type TagScore struct {
	Tag   string  `json:"tag"`
	Score float32 `json:"score"`
}

// Result holds the ranked tags of one image. Ratings are never filtered.
type Result struct {
	Ratings   []TagScore `json:"ratings"`
	General   []TagScore `json:"general"`
	Character []TagScore `json:"character"`
}

// Threshold keeps scores >= Value, or picks the cut per image when MCut is set.
type Threshold struct {
	Value float32
	MCut  bool
}

type Analyzer struct {
	schema    *Schema
	general   Threshold
	character Threshold
}

func NewAnalyzer(schema *Schema, general, character Threshold) *Analyzer {
	return &Analyzer{
		schema:    schema,
		general:   general,
		character: character,
	}
}

func (a *Analyzer) Schema() *Schema { return a.schema }

// Analyze splits a score vector aligned with the schema into ranked per-category lists.
func (a *Analyzer) Analyze(scores []float32) Result {
	ratings := a.tagScores(scores, Rating)
	sortByScore(ratings)

	general := filterTags(a.tagScores(scores, General), a.general)
	sortByScore(general)

	character := filterTags(a.tagScores(scores, Character), a.character)
	sortByScore(character)

	return Result{
		Ratings:   ratings,
		General:   general,
		Character: character,
	}
}

func (a *Analyzer) tagScores(scores []float32, c Category) []TagScore {
	indices := a.schema.Indices(c)
	out := make([]TagScore, 0, len(indices))
	for _, i := range indices {
		out = append(out, TagScore{Tag: a.schema.tags[i].Name, Score: scores[i]})
	}
	return out
}

func filterTags(items []TagScore, t Threshold) []TagScore {
	threshold := t.Value
	if t.MCut {
		probs := make([]float32, len(items))
		for i, it := range items {
			probs[i] = it.Score
		}
		threshold = MCutThreshold(probs)
	}
	kept := items[:0]
	for _, it := range items {
		if it.Score >= threshold {
			kept = append(kept, it)
		}
	}
	return kept
}

// MCutThreshold returns the midpoint of the widest gap between consecutive
// scores in descending order. Fewer than two scores yield 0.
func MCutThreshold(scores []float32) float32 {
	if len(scores) < 2 {
		return 0
	}
	sorted := slices.Clone(scores)
	slices.SortFunc(sorted, func(a, b float32) int { return cmp.Compare(b, a) })

	t := 0
	maxDiff := sorted[0] - sorted[1]
	for k := 1; k < len(sorted)-1; k++ {
		if d := sorted[k] - sorted[k+1]; d > maxDiff {
			maxDiff = d
			t = k
		}
	}
	return (sorted[t] + sorted[t+1]) / 2
}

func sortByScore(items []TagScore) {
	slices.SortStableFunc(items, func(a, b TagScore) int {
		return cmp.Compare(b.Score, a.Score)
	})
}
