package anticheat

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/pmezard/go-difflib/difflib"
)

// Solution is an accepted submission remembered for plagiarism checks.
type Solution struct {
	UserID      string
	SessionID   string
	ProblemID   string
	Language    string
	Fingerprint string
	Normalized  string
	SubmittedAt time.Time
}

// SolutionHistory is the query interface into historical accepted submissions.
type SolutionHistory interface {
	RecentSolutions(ctx context.Context, problemID string, since time.Time, limit int) ([]Solution, error)
	SaveSolution(ctx context.Context, solution Solution) error
}

// SimilarityConfig tunes the plagiarism check.
type SimilarityConfig struct {
	Window         time.Duration
	Limit          int
	MinTokens      int
	IdenticalRatio float64
	SimilarRatio   float64
}

// DefaultSimilarityConfig returns a 30 day window over the latest 200 solutions.
func DefaultSimilarityConfig() SimilarityConfig {
	return SimilarityConfig{
		Window:         30 * 24 * time.Hour,
		Limit:          200,
		MinTokens:      5,
		IdenticalRatio: 0.95,
		SimilarRatio:   0.85,
	}
}

// SimilarityIndex compares normalized submissions against accepted solutions of the same problem.
type SimilarityIndex struct {
	history SolutionHistory
	cfg     SimilarityConfig
}

// NewSimilarityIndex constructs the index over history.
func NewSimilarityIndex(history SolutionHistory, cfg SimilarityConfig) *SimilarityIndex {
	defaults := DefaultSimilarityConfig()
	if cfg.Window <= 0 {
		cfg.Window = defaults.Window
	}
	if cfg.Limit <= 0 {
		cfg.Limit = defaults.Limit
	}
	if cfg.MinTokens <= 0 {
		cfg.MinTokens = defaults.MinTokens
	}
	if cfg.IdenticalRatio <= 0 {
		cfg.IdenticalRatio = defaults.IdenticalRatio
	}
	if cfg.SimilarRatio <= 0 {
		cfg.SimilarRatio = defaults.SimilarRatio
	}
	return &SimilarityIndex{history: history, cfg: cfg}
}

// Check scores the closest match among other users' solutions inside the rolling window.
func (s *SimilarityIndex) Check(ctx context.Context, in Input) (Analysis, error) {
	var result Analysis
	if in.ProblemID == "" {
		return result, nil
	}

	tokens := Normalize(in.Code, in.Language)
	if len(tokens) < s.cfg.MinTokens {
		return result, nil
	}
	fingerprint := Fingerprint(tokens)

	solutions, err := s.history.RecentSolutions(ctx, in.ProblemID, in.SubmittedAt.Add(-s.cfg.Window), s.cfg.Limit)
	if err != nil {
		return result, fmt.Errorf("load solution history: %w", err)
	}

	best := 0.0
	for _, solution := range solutions {
		if solution.UserID == in.UserID {
			continue
		}
		if solution.Fingerprint == fingerprint {
			best = 1
			break
		}
		ratio := difflib.NewMatcher(strings.Fields(solution.Normalized), tokens).Ratio()
		if ratio > best {
			best = ratio
		}
	}

	switch {
	case best >= s.cfg.IdenticalRatio:
		result.add("similarity", fmt.Sprintf("near-identical to an accepted solution (%.0f%%)", best*100), 60)
	case best >= s.cfg.SimilarRatio:
		result.add("similarity", fmt.Sprintf("highly similar to an accepted solution (%.0f%%)", best*100), 35)
	}
	return result, nil
}

// Remember stores an accepted submission so later submissions are compared against it.
func (s *SimilarityIndex) Remember(ctx context.Context, in Input) error {
	tokens := Normalize(in.Code, in.Language)
	return s.history.SaveSolution(ctx, Solution{
		UserID:      in.UserID,
		SessionID:   in.SessionID,
		ProblemID:   in.ProblemID,
		Language:    strings.ToLower(in.Language),
		Fingerprint: Fingerprint(tokens),
		Normalized:  strings.Join(tokens, " "),
		SubmittedAt: in.SubmittedAt,
	})
}

var (
	hashComment       = regexp.MustCompile(`#[^\n]*`)
	slashComment      = regexp.MustCompile(`//[^\n]*`)
	blockComment      = regexp.MustCompile(`/\*[\s\S]*?\*/`)
	tripleQuoteString = regexp.MustCompile(`"""[\s\S]*?"""|'''[\s\S]*?'''`)
	tokenPattern      = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*|\d+(?:\.\d+)?|"(?:\\.|[^"\\])*"|'(?:\\.|[^'\\])*'|` + "`[^`]*`" + `|\S`)
)

var keywords = map[string]map[string]struct{}{
	"python":     wordSet("and as assert break class continue def del elif else except False finally for from global if import in is lambda None nonlocal not or pass raise return True try while with yield len range print int str list dict set tuple self min max sum sorted enumerate zip map filter abs"),
	"javascript": wordSet("break case catch class const continue debugger default delete do else export extends false finally for function if import in instanceof let new null return super switch this throw true try typeof undefined var void while with yield async await of console log length Math Array Object String Number map filter reduce push"),
	"go":         wordSet("break case chan const continue default defer else fallthrough for func go goto if import interface map package range return select struct switch type var nil true false len cap append make new int string bool byte rune float64 int64 error fmt Println Sprintf"),
	"java":       wordSet("abstract boolean break byte case catch char class continue default do double else extends final finally float for if implements import instanceof int interface long new null package private protected public return short static super switch this throw throws true false try void while String System out println length Math"),
	"cpp":        wordSet("auto bool break case catch char class const continue default delete do double else enum false float for if include int long namespace new nullptr private protected public return short signed sizeof static struct switch template this throw true try typedef unsigned using void while std cout cin endl vector string size"),
}

func wordSet(words string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(words) {
		set[w] = struct{}{}
	}
	return set
}

// Normalize strips comments, drops layout, and renames identifiers to positional placeholders so that
// cosmetic edits do not hide a copied solution.
func Normalize(code, language string) []string {
	language = strings.ToLower(strings.TrimSpace(language))
	switch language {
	case "python":
		code = tripleQuoteString.ReplaceAllString(code, " ")
		code = hashComment.ReplaceAllString(code, " ")
	default:
		code = blockComment.ReplaceAllString(code, " ")
		code = slashComment.ReplaceAllString(code, " ")
		if language == "cpp" {
			code = hashComment.ReplaceAllString(code, " ")
		}
	}

	reserved := keywords[language]
	placeholders := make(map[string]string)
	raw := tokenPattern.FindAllString(code, -1)
	tokens := make([]string, 0, len(raw))
	for _, tok := range raw {
		switch first := tok[0]; {
		case first == '"' || first == '\'' || first == '`':
			tokens = append(tokens, "STR")
		case first == '_' || (first >= 'A' && first <= 'Z') || (first >= 'a' && first <= 'z'):
			if _, ok := reserved[tok]; ok {
				tokens = append(tokens, tok)
				continue
			}
			name, ok := placeholders[tok]
			if !ok {
				name = "v" + strconv.Itoa(len(placeholders))
				placeholders[tok] = name
			}
			tokens = append(tokens, name)
		default:
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// Fingerprint hashes a normalized token stream.
func Fingerprint(tokens []string) string {
	return strconv.FormatUint(xxhash.Sum64String(strings.Join(tokens, " ")), 16)
}
