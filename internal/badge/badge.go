// Package badge turns a user's aggregate activity counts into badge tiers.
//
// Evaluate is a pure table lookup: no I/O, no clock, no randomness. The
// profile read path collects the counts (see repository.AuthorStats) and
// hands them over as Criteria.
package badge

// Kind names one activity counter that can earn badges.
type Kind string

const (
	QuestionCount   Kind = "QUESTION_COUNT"
	AnswerCount     Kind = "ANSWER_COUNT"
	QuestionUpvotes Kind = "QUESTION_UPVOTES"
	AnswerUpvotes   Kind = "ANSWER_UPVOTES"
	TotalViews      Kind = "TOTAL_VIEWS"
)

// Thresholds are the minimum counts for the bronze, silver and gold tiers.
type Thresholds struct {
	Bronze int
	Silver int
	Gold   int
}

// Table maps each known counter to its tier thresholds. Counters missing
// from the table earn nothing.
var Table = map[Kind]Thresholds{
	QuestionCount:   {Bronze: 10, Silver: 50, Gold: 100},
	AnswerCount:     {Bronze: 10, Silver: 50, Gold: 100},
	QuestionUpvotes: {Bronze: 10, Silver: 50, Gold: 100},
	AnswerUpvotes:   {Bronze: 10, Silver: 50, Gold: 100},
	TotalViews:      {Bronze: 1000, Silver: 10000, Gold: 100000},
}

// Criterion is one counter value to evaluate.
type Criterion struct {
	Kind  Kind
	Count int
}

// Counts is the number of badges earned per tier, summed over all criteria.
type Counts struct {
	Gold   int `json:"GOLD"`
	Silver int `json:"SILVER"`
	Bronze int `json:"BRONZE"`
}

// Total returns the number of badges across every tier.
func (c Counts) Total() int {
	return c.Gold + c.Silver + c.Bronze
}

// Evaluate awards one badge per tier whose threshold a criterion reaches,
// so a counter at the gold threshold earns a bronze, a silver and a gold.
func Evaluate(criteria []Criterion) Counts {
	var c Counts
	for _, cr := range criteria {
		t, ok := Table[cr.Kind]
		if !ok {
			continue
		}
		if cr.Count >= t.Bronze {
			c.Bronze++
		}
		if cr.Count >= t.Silver {
			c.Silver++
		}
		if cr.Count >= t.Gold {
			c.Gold++
		}
	}
	return c
}
