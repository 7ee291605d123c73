package ai

import "context"

// GradingInput contains what the model sees for one arena submission.
type GradingInput struct {
	ProblemTitle       string
	ProblemDescription string
	Example            string
	ReferenceSolution  string
	Language           string
	Code               string
	TestResults        string
}

// GradingResult is the structured verdict returned by the model. Score and breakdown values are in [0, 1].
type GradingResult struct {
	Score     float64            `json:"score"`
	Feedback  string             `json:"feedback"`
	Verdict   string             `json:"verdict"`
	Breakdown map[string]float64 `json:"breakdown,omitempty"`
	Model     string             `json:"model,omitempty"`
}

// Grader describes a model capable of scoring code submissions.
type Grader interface {
	Grade(ctx context.Context, input GradingInput) (GradingResult, error)
}
