package model

import "time"

// ContentKind distinguishes the two votable content types.
type ContentKind string

const (
	KindQuestion ContentKind = "question"
	KindAnswer   ContentKind = "answer"
)

// VoteDirection is a user's current vote on one content item. Storing a
// single direction per (item, user) is what keeps a user out of both the
// upvote and downvote sets at once.
type VoteDirection int8

const (
	VoteNone VoteDirection = 0
	VoteUp   VoteDirection = 1
	VoteDown VoteDirection = -1
)

func (d VoteDirection) String() string {
	switch d {
	case VoteUp:
		return "up"
	case VoteDown:
		return "down"
	}
	return "none"
}

// Tag is a topic label attached to questions.
type Tag struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Question is a community question. Upvotes, Downvotes and Answers hold ids;
// Answers is in creation order.
type Question struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"authorId,omitempty"` // empty when the author is unknown
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []Tag     `json:"tags"`
	Upvotes   []string  `json:"upvotes"`
	Downvotes []string  `json:"downvotes"`
	Answers   []string  `json:"answers"`
	Views     int       `json:"views"`
	CreatedAt time.Time `json:"createdAt"`
}

// Answer is a reply to a question.
type Answer struct {
	ID         string    `json:"id"`
	AuthorID   string    `json:"authorId,omitempty"`
	QuestionID string    `json:"questionId"`
	Content    string    `json:"content"`
	Upvotes    []string  `json:"upvotes"`
	Downvotes  []string  `json:"downvotes"`
	CreatedAt  time.Time `json:"createdAt"`
}

// InteractionAction names the kinds of actions recorded in the interaction log.
type InteractionAction string

const (
	ActionAskQuestion InteractionAction = "ask_question"
	ActionAnswer      InteractionAction = "answer"
	ActionView        InteractionAction = "view"
)

// Interaction is a write-once log entry used for recommendations.
type Interaction struct {
	ID         string            `json:"id"`
	UserID     string            `json:"userId"`
	Action     InteractionAction `json:"action"`
	QuestionID string            `json:"questionId"`
	AnswerID   string            `json:"answerId,omitempty"`
	Tags       []string          `json:"tags"` // tag ids
	CreatedAt  time.Time         `json:"createdAt"`
}

// AuthorStats aggregates what a user has contributed; it feeds the badge
// evaluator on the profile page.
type AuthorStats struct {
	Questions       int
	Answers         int
	QuestionUpvotes int
	AnswerUpvotes   int
	QuestionViews   int
}

// Page is one page of a paginated listing.
type Page[T any] struct {
	Items  []T  `json:"items"`
	IsNext bool `json:"isNext"`
	Total  int  `json:"total,omitempty"`
}
