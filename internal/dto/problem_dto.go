package dto

import (
	"time"

	"github.com/noah-isme/gema-arena/internal/models"
)

// ProblemCreateRequest adds a problem to the arena pool.
type ProblemCreateRequest struct {
	ID          string `json:"id" validate:"omitempty,max=64"`
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description" validate:"required"`
	Example     string `json:"example"`
	Solution    string `json:"solution" validate:"required"`
	Difficulty  string `json:"difficulty" validate:"required,oneof=easy medium hard"`
	Language    string `json:"language" validate:"omitempty,oneof=python javascript go java cpp"`
}

// ProblemListRequest filters problem listings.
type ProblemListRequest struct {
	Difficulty string `query:"difficulty"`
	Language   string `query:"language"`
	Page       int    `query:"page"`
	PageSize   int    `query:"page_size"`
}

// ProblemResponse is the public shape of a problem. The reference solution is never included.
type ProblemResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Example     string    `json:"example"`
	Difficulty  string    `json:"difficulty"`
	Language    string    `json:"language,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProblemListResponse wraps problems with pagination metadata.
type ProblemListResponse struct {
	Items      []ProblemResponse `json:"items"`
	Pagination PaginationMeta    `json:"pagination"`
}

// NewProblemResponse converts a model.
func NewProblemResponse(problem models.Problem) ProblemResponse {
	return ProblemResponse{
		ID:          problem.ID,
		Title:       problem.Title,
		Description: problem.Description,
		Example:     problem.Example,
		Difficulty:  problem.Difficulty,
		Language:    problem.Language,
		CreatedAt:   problem.CreatedAt,
	}
}
