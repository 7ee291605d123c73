package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFallbackGradeIsDeterministic(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	first := FallbackGrade(reverseSolution, "timeout", at)
	second := FallbackGrade(reverseSolution, "timeout", at)
	require.Equal(t, first, second)
	require.True(t, first.Degraded)
	require.Equal(t, 65, first.TotalScore)
	require.Equal(t, "D", first.LetterGrade)
	require.Contains(t, first.Feedback, "degraded mode")
}

func TestFallbackGradeRewardsStructure(t *testing.T) {
	code := `def reverse_string(s):
    # walk backwards
    out = []
    for ch in s:
        out.insert(0, ch)
    return "".join(out)
`
	grading := FallbackGrade(code, "", time.Time{})
	require.Equal(t, 85, grading.TotalScore)
	require.Equal(t, "B", grading.LetterGrade)
}

func TestFallbackGradeEmptyCode(t *testing.T) {
	grading := FallbackGrade("   ", "", time.Time{})
	require.Zero(t, grading.TotalScore)
	require.Equal(t, "F", grading.LetterGrade)
}
