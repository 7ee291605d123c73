package ai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseGradingResponseClampsScores(t *testing.T) {
	result, err := parseGradingResponse(`{"score": 1.4, "verdict": "pass", "feedback": " Solid. ", "breakdown": {"Correctness": 0.9, "efficiency": -2}}`)
	require.NoError(t, err)
	require.Equal(t, 1.0, result.Score)
	require.Equal(t, "Solid.", result.Feedback)
	require.Equal(t, 0.9, result.Breakdown["correctness"])
	require.Equal(t, 0.0, result.Breakdown["efficiency"])
}

func TestParseGradingResponseRejectsInvalidJSON(t *testing.T) {
	_, err := parseGradingResponse("score: high")
	require.Error(t, err)
}

func TestBuildUserPromptIncludesTestResults(t *testing.T) {
	prompt := buildUserPrompt(GradingInput{
		ProblemTitle:       "Reverse",
		ProblemDescription: "Reverse a string",
		Language:           "python",
		Code:               "def reverse_string(s): return s[::-1]",
		TestResults:        "3/3 passed",
	})
	require.Contains(t, prompt, "## Test Results\n3/3 passed")
	require.NotContains(t, prompt, "Reference Solution")

	prompt = buildUserPrompt(GradingInput{ProblemTitle: "Reverse", Code: "pass"})
	require.Contains(t, prompt, "not executed")
}

func TestNewOpenAIGraderRequiresKey(t *testing.T) {
	_, err := NewOpenAIGrader(OpenAIConfig{})
	require.Error(t, err)

	grader, err := NewOpenAIGrader(OpenAIConfig{APIKey: "sk-test"})
	require.NoError(t, err)
	require.Equal(t, "gpt-4o-mini", grader.Model())
}

func TestPromptsAgreeOnTestResultsPlacement(t *testing.T) {
	require.Contains(t, graderSystemPrompt(), "Test Results section at the end")

	prompt := buildUserPrompt(GradingInput{ProblemTitle: "Reverse", Code: "pass", TestResults: "1/1 passed"})
	require.Greater(t, strings.Index(prompt, "## Test Results"), strings.Index(prompt, "## Submission"))
}
