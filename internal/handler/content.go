package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/rotos-forum/internal/model"
	"github.com/sakif/rotos-forum/internal/service"
)

// ContentHandler serves questions, answers and voting.
type ContentHandler struct {
	questions *service.QuestionService
	answers   *service.AnswerService
	votes     *service.VoteService
	logger    *slog.Logger
}

func NewContentHandler(
	questions *service.QuestionService,
	answers *service.AnswerService,
	votes *service.VoteService,
	logger *slog.Logger,
) *ContentHandler {
	return &ContentHandler{questions: questions, answers: answers, votes: votes, logger: logger}
}

// HandleCreateQuestion posts a question.
//
// HTTP: POST /api/questions
// REQUEST BODY: {"title": "...", "content": "...", "tags": ["go", "sqlite"]}
func (h *ContentHandler) HandleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	var in service.CreateQuestionInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	q, err := h.questions.Create(r.Context(), currentUser(r), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, q)
}

// HandleGetQuestion returns a question and counts the view.
//
// HTTP: GET /api/questions/{id}
// Signed-in viewers (OptionalAuth) also get a "view" interaction.
func (h *ContentHandler) HandleGetQuestion(w http.ResponseWriter, r *http.Request) {
	q, err := h.questions.View(r.Context(), r.PathValue("id"), currentUser(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// HandleListAnswers pages through a question's answers.
//
// HTTP: GET /api/questions/{id}/answers?sortBy=highestUpvotes&page=1
func (h *ContentHandler) HandleListAnswers(w http.ResponseWriter, r *http.Request) {
	page, pageSize, err := pageParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.answers.List(r.Context(), r.PathValue("id"), service.AnswerListOptions{
		SortBy:   service.AnswerSortBy(r.URL.Query().Get("sortBy")),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type answerRequest struct {
	Content string `json:"content"`
}

// HandleCreateAnswer answers a question.
//
// HTTP: POST /api/questions/{id}/answers
// REQUEST BODY: {"content": "..."}
func (h *ContentHandler) HandleCreateAnswer(w http.ResponseWriter, r *http.Request) {
	var req answerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	a, err := h.answers.Create(r.Context(), currentUser(r), r.PathValue("id"), req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, a)
}

// HandleDeleteAnswer removes an answer (author, moderator or admin).
//
// HTTP: DELETE /api/answers/{id}
func (h *ContentHandler) HandleDeleteAnswer(w http.ResponseWriter, r *http.Request) {
	if err := h.answers.Delete(r.Context(), currentUser(r), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, nil)
}

// HandleVote returns the handler for one vote button.
//
// HTTP: POST /api/questions/{id}/upvote, /downvote
//
//	POST /api/answers/{id}/upvote, /downvote
//
// Pressing the same button twice removes the vote.
func (h *ContentHandler) HandleVote(kind model.ContentKind, dir model.VoteDirection) http.HandlerFunc {
	press := h.votes.Upvote
	if dir == model.VoteDown {
		press = h.votes.Downvote
	}
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := press(r.Context(), kind, r.PathValue("id"), currentUser(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeSuccess(w, http.StatusOK, voteResponse{
			Vote:      res.Direction.String(),
			Upvotes:   res.Upvotes,
			Downvotes: res.Downvotes,
		})
	}
}

type voteResponse struct {
	Vote      string `json:"vote"` // up, down or none
	Upvotes   int    `json:"upvotes"`
	Downvotes int    `json:"downvotes"`
}
