package game

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

const fallbackProvider = "fallback"

var (
	functionPattern = regexp.MustCompile(`\bdef\s+\w+|\bfunction\b|\bfunc\s+\w+|=>|\b(public|private|static)\s+\w+[\w<>\[\]]*\s+\w+\s*\(|\w+\s+\w+\s*\([^)]*\)\s*\{`)
	controlPattern  = regexp.MustCompile(`\b(if|for|while|switch|case|elif|else)\b`)
	returnPattern   = regexp.MustCompile(`\breturn\b`)
	commentPattern  = regexp.MustCompile(`(?m)^\s*(#|//|/\*|\*)`)
)

// FallbackGrade scores a submission without the grading collaborator. The result depends only on the code, so
// repeated calls agree.
func FallbackGrade(code, reason string, at time.Time) Grading {
	breakdown := map[string]int{}
	total := 0

	if strings.TrimSpace(code) != "" {
		breakdown["base"] = 50

		significant := len(strings.Join(strings.Fields(code), ""))
		if significant >= 40 {
			breakdown["length"] = 10
		}
		if functionPattern.MatchString(code) {
			breakdown["structure"] = 10
		}
		if controlPattern.MatchString(code) {
			breakdown["control_flow"] = 5
		}
		if returnPattern.MatchString(code) {
			breakdown["returns"] = 5
		}
		if commentPattern.MatchString(code) {
			breakdown["comments"] = 5
		}
		for _, v := range breakdown {
			total += v
		}
	}

	feedback := "Scored in degraded mode"
	if reason != "" {
		feedback = fmt.Sprintf("Scored in degraded mode (%s)", reason)
	}

	return Grading{
		TotalScore:  total,
		LetterGrade: LetterGrade(total),
		Feedback:    feedback,
		Breakdown:   breakdown,
		Provider:    fallbackProvider,
		Degraded:    true,
		GradedAt:    at,
	}
}

// LetterGrade maps a 0..100 score to a letter.
func LetterGrade(score int) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
