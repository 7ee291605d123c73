package anticheat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func categories(a Analysis) []string {
	out := make([]string, 0, len(a.Findings))
	for _, f := range a.Findings {
		out = append(out, f.Category)
	}
	return out
}

func TestCodeAnalyzerAcceptsPlainSolution(t *testing.T) {
	result := NewCodeAnalyzer().Analyze("def reverse_string(s):\n    return s[::-1]\n", "python")
	require.Zero(t, result.Score)
	require.Empty(t, result.Findings)
}

func TestCodeAnalyzerFlagsSubprocess(t *testing.T) {
	code := "import subprocess\n\ndef solve():\n    return subprocess.run(['ls'])\n"
	result := NewCodeAnalyzer().Analyze(code, "Python")
	require.Contains(t, categories(result), categorySubprocess)
	require.GreaterOrEqual(t, result.Score, 50)
}

func TestCodeAnalyzerPatternsAreLanguageScoped(t *testing.T) {
	code := "const cp = require('child_process');\ncp.execSync('ls');\n"
	require.Contains(t, categories(NewCodeAnalyzer().Analyze(code, "javascript")), categorySubprocess)
	require.NotContains(t, categories(NewCodeAnalyzer().Analyze(code, "java")), categorySubprocess)
}

func TestCodeAnalyzerShortSolution(t *testing.T) {
	result := NewCodeAnalyzer().Analyze("x = 1", "python")
	require.Equal(t, []string{categoryLength}, categories(result))
	require.Equal(t, 20, result.Score)
}

func TestCodeAnalyzerTemplatePlaceholder(t *testing.T) {
	code := "def reverse_string(s):\n    # your code here\n    pass\n"
	result := NewCodeAnalyzer().Analyze(code, "python")
	require.Contains(t, categories(result), categoryTemplate)
}

func TestCodeAnalyzerMixedIndentation(t *testing.T) {
	code := "def f(a):\n\tif a:\n        return 1\n    return 2\n"
	result := NewCodeAnalyzer().Analyze(code, "python")
	require.Equal(t, []string{categoryQuality}, categories(result))
	require.Equal(t, 5, result.Score)
}

func TestCodeAnalyzerRejectsBinaryPayload(t *testing.T) {
	result := NewCodeAnalyzer().Analyze(string([]byte{0x00, 0x01, 0x02, 0x03, 0xff, 0xfe, 0x00, 0x10}), "python")
	require.Equal(t, []string{categoryPayload}, categories(result))
	require.Equal(t, 60, result.Score)
}

func TestThresholdsActionFor(t *testing.T) {
	th := DefaultThresholds()
	cases := map[int]Action{
		0:   ActionAccept,
		24:  ActionAccept,
		25:  ActionMonitor,
		50:  ActionWarning,
		79:  ActionWarning,
		80:  ActionReview,
		149: ActionReview,
		150: ActionReject,
		400: ActionReject,
	}
	for score, action := range cases {
		require.Equal(t, action, th.ActionFor(score), "score %d", score)
	}
}
