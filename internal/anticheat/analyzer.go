package anticheat

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	categoryNetwork     = "network"
	categoryFilesystem  = "filesystem"
	categorySubprocess  = "subprocess"
	categoryDynamicEval = "dynamic_eval"
	categoryObfuscation = "obfuscation"
	categoryTemplate    = "template"
	categoryProvenance  = "provenance"
	categoryLength      = "length"
	categoryQuality     = "quality"
	categoryPayload     = "payload"
)

type pattern struct {
	category    string
	description string
	weight      int
	expr        *regexp.Regexp
	// languages restricts the pattern; empty applies to every language.
	languages []string
}

func (p pattern) appliesTo(language string) bool {
	if len(p.languages) == 0 {
		return true
	}
	for _, l := range p.languages {
		if l == language {
			return true
		}
	}
	return false
}

var signaturePatterns = []pattern{
	{categoryNetwork, "raw socket usage", 40, regexp.MustCompile(`\bimport\s+socket\b|\bsocket\.socket\(`), []string{"python"}},
	{categoryNetwork, "http client usage", 40, regexp.MustCompile(`\bimport\s+requests\b|\burllib(\.request)?\b|\bhttp\.client\b`), []string{"python"}},
	{categoryNetwork, "browser network api", 40, regexp.MustCompile(`\bfetch\s*\(|\bXMLHttpRequest\b|require\(\s*['"](https?|net)['"]\s*\)`), []string{"javascript"}},
	{categoryNetwork, "network package import", 40, regexp.MustCompile(`"net(/http)?"`), []string{"go"}},
	{categoryNetwork, "network package import", 40, regexp.MustCompile(`\bjava\.net\.`), []string{"java"}},
	{categoryFilesystem, "file access", 30, regexp.MustCompile(`\bopen\s*\(|\bos\.(remove|unlink|rmdir|listdir|walk)\b|\bshutil\.`), []string{"python"}},
	{categoryFilesystem, "file access", 30, regexp.MustCompile(`require\(\s*['"]fs['"]\s*\)`), []string{"javascript"}},
	{categoryFilesystem, "file access", 30, regexp.MustCompile(`\bos\.(ReadFile|WriteFile|Open|Create|Remove)\(|\bioutil\.`), []string{"go"}},
	{categoryFilesystem, "file access", 30, regexp.MustCompile(`\bjava\.io\.File\b|\bFiles\.(read|write)`), []string{"java"}},
	{categoryFilesystem, "file access", 30, regexp.MustCompile(`\bfopen\s*\(|\bifstream\b|\bofstream\b`), []string{"cpp"}},
	{categorySubprocess, "process spawning", 50, regexp.MustCompile(`\bsubprocess\b|\bos\.(system|popen|exec\w*|spawn\w*)\s*\(`), []string{"python"}},
	{categorySubprocess, "process spawning", 50, regexp.MustCompile(`child_process`), []string{"javascript"}},
	{categorySubprocess, "process spawning", 50, regexp.MustCompile(`"os/exec"|\bsyscall\.Exec\b`), []string{"go"}},
	{categorySubprocess, "process spawning", 50, regexp.MustCompile(`Runtime\.getRuntime\(\)\.exec|\bProcessBuilder\b`), []string{"java"}},
	{categorySubprocess, "process spawning", 50, regexp.MustCompile(`\bsystem\s*\(|\bpopen\s*\(`), []string{"cpp"}},
	{categoryDynamicEval, "dynamic code evaluation", 45, regexp.MustCompile(`\beval\s*\(|\bexec\s*\(|__import__\s*\(`), []string{"python"}},
	{categoryDynamicEval, "dynamic code evaluation", 45, regexp.MustCompile(`\beval\s*\(|\bnew\s+Function\s*\(`), []string{"javascript"}},
	{categoryObfuscation, "encoded payload decoding", 35, regexp.MustCompile(`base64\.(b64decode|decodebytes)|\batob\s*\(|base64\.StdEncoding\.Decode|Base64\.getDecoder`), nil},
	{categoryObfuscation, "hex-escaped string", 35, regexp.MustCompile(`(\\x[0-9a-fA-F]{2}){8,}`), nil},
	{categoryObfuscation, "character-code string building", 35, regexp.MustCompile(`(chr\(\d+\)\s*\+\s*){4,}|String\.fromCharCode\(`), nil},
}

var indicatorPatterns = []pattern{
	{categoryTemplate, "template placeholder left in code", 20, regexp.MustCompile(`(?i)your\s+code\s+here|insert\s+(your\s+)?solution|\bTODO\b`), nil},
	{categoryTemplate, "unimplemented stub", 20, regexp.MustCompile(`(?m)raise\s+NotImplementedError|^\s*pass\s*$`), []string{"python"}},
	{categoryTemplate, "unimplemented stub", 20, regexp.MustCompile(`throw\s+new\s+(Error|UnsupportedOperationException)\(\s*['"]not implemented`), []string{"javascript", "java"}},
	{categoryProvenance, "external source marker", 25, regexp.MustCompile(`(?i)chatgpt|stackoverflow\.com|leetcode\.com|generated\s+by`), nil},
}

// CodeAnalyzer statically inspects one submission. It has no dependencies and is safe for concurrent use.
type CodeAnalyzer struct {
	minLength     int
	maxLength     int
	maxLineLength int
}

// NewCodeAnalyzer returns an analyzer with the default length bounds.
func NewCodeAnalyzer() *CodeAnalyzer {
	return &CodeAnalyzer{minLength: 20, maxLength: 10000, maxLineLength: 500}
}

// Analyze scans code for dangerous signatures, cheating indicators and basic quality problems.
func (a *CodeAnalyzer) Analyze(code, language string) Analysis {
	var result Analysis
	language = strings.ToLower(strings.TrimSpace(language))

	if !isText(code) {
		result.add(categoryPayload, "non-text payload", 60)
		return result
	}

	for _, p := range signaturePatterns {
		if p.appliesTo(language) && p.expr.MatchString(code) {
			result.add(p.category, p.description, p.weight)
		}
	}
	for _, p := range indicatorPatterns {
		if p.appliesTo(language) && p.expr.MatchString(code) {
			result.add(p.category, p.description, p.weight)
		}
	}

	significant := len(strings.Join(strings.Fields(code), ""))
	switch {
	case significant < a.minLength:
		result.add(categoryLength, fmt.Sprintf("suspiciously short solution (%d chars)", significant), 20)
	case significant > a.maxLength:
		result.add(categoryLength, fmt.Sprintf("suspiciously long solution (%d chars)", significant), 25)
	}

	a.inspectLayout(code, &result)
	return result
}

func (a *CodeAnalyzer) inspectLayout(code string, result *Analysis) {
	var tabs, spaces, longest int
	for _, line := range strings.Split(code, "\n") {
		if len(line) > longest {
			longest = len(line)
		}
		switch {
		case strings.HasPrefix(line, "\t"):
			tabs++
		case strings.HasPrefix(line, " "):
			spaces++
		}
	}
	if tabs > 0 && spaces > 0 {
		result.add(categoryQuality, "inconsistent indentation", 5)
	}
	if longest > a.maxLineLength {
		result.add(categoryObfuscation, fmt.Sprintf("minified line of %d chars", longest), 15)
	}
}

func isText(code string) bool {
	if code == "" {
		return true
	}
	for m := mimetype.Detect([]byte(code)); m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}
