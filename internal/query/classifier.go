package query

import (
	"regexp"
	"strings"

	"github.com/hybridsearch/engine/internal/cache"
)

var (
	camelCasePattern  = regexp.MustCompile(`^[a-z]+([A-Z][a-z0-9]*)+$`)
	pascalCasePattern = regexp.MustCompile(`^([A-Z][a-z0-9]*){2,}$`)
	snakeCasePattern  = regexp.MustCompile(`^[a-z][a-z0-9]*(_[a-z0-9]+)+$`)
	screamingSnake    = regexp.MustCompile(`^[A-Z][A-Z0-9]*(_[A-Z0-9]+)+$`)

	filePathPattern = regexp.MustCompile(`(?i)[\w\-./\\]+\.(go|ts|tsx|js|jsx|py|md|json|yaml|yml|toml|css|scss|html|rs|java|kt|c|cpp|h|hpp|rb|php|swift|sh)\b`)
	pathSepPattern  = regexp.MustCompile(`[\w\-]+/[\w\-/.]+`)

	naturalStarters = regexp.MustCompile(`(?i)^(how|what|where|why|when|which|can|does|is|are|should|explain|describe|show me|tell me|find|list)\b`)

	symbolChars = regexp.MustCompile(`[(){}\[\];:<>=&|!_.]`)
)

var commonVerbs = map[string]bool{
	"show": true, "find": true, "list": true, "get": true, "explain": true,
	"describe": true, "tell": true, "help": true, "write": true, "create": true,
	"make": true, "build": true, "fix": true, "update": true, "add": true,
	"remove": true, "check": true, "look": true, "search": true,
}

var codeKeywords = map[string]bool{
	"func": true, "function": true, "class": true, "struct": true, "interface": true,
	"def": true, "return": true, "import": true, "package": true, "const": true,
	"var": true, "let": true, "async": true, "await": true, "error": true, "err": true,
	"nil": true, "null": true, "public": true, "private": true, "static": true,
	"extends": true, "implements": true, "throw": true, "catch": true, "try": true,
}

// Thresholds and per-signal caps for the classifier's additive-scoring
// scale (spec §4.9's table). Score starts at 0.5; each signal nudges it up
// (code-like) or down (natural-language-like).
const (
	ScoreBase        = 0.5
	CodeThreshold    = 0.6
	NaturalThreshold = 0.3

	SymbolDensityCap    = 0.2  // + min(0.2, density*0.4)
	SymbolDensityScale  = 0.4
	KeywordCap          = 0.15 // + min(0.15, count*0.05)
	KeywordScale        = 0.05
	ExtensionWeight     = 0.15
	PathPatternWeight   = 0.15
	CaseConventionWeight = 0.10
	WordCountWeight     = 0.10 // word count in [1,3]
	LongQueryPenalty    = 0.15 // word count >= 5
	NaturalStarterPenalty = 0.20
	NoSignalsPenalty    = 0.10
	CommonVerbPenalty   = 0.10
)

// Classifier labels queries as code/hybrid/natural using additive scoring
// over symbol density, code keywords, file extensions, path patterns, case
// convention, and word count, with an LRU result cache keyed on CacheKey.
type Classifier struct {
	resultCache *cache.Cache[string, Classification]
}

// New creates a Classifier with a result cache of the given capacity.
func New(cacheSize int) *Classifier {
	if cacheSize <= 0 {
		cacheSize = 1000
	}
	return &Classifier{resultCache: cache.New[string, Classification](cacheSize, 0)}
}

// Classify normalizes query, checks the cache, and otherwise computes a
// fresh classification via additive scoring.
func (c *Classifier) Classify(q string) Classification {
	key := CacheKey(q)
	if key == "" {
		return Classification{Class: ClassNatural, Score: 0}
	}
	if cached, ok := c.resultCache.Get(key); ok {
		return cached
	}

	result := classify(Normalize(q))
	c.resultCache.Set(key, result)
	return result
}

func classify(q string) Classification {
	score := ScoreBase

	hasSymbols := symbolDensityBonus(q) > 0
	hasKeywords := keywordBonus(q) > 0
	hasExtension := extensionSignal(q) > 0
	hasPath := pathPatternSignal(q) > 0
	hasCase := caseConventionSignal(q) > 0
	hasCode := hasSymbols || hasKeywords || hasExtension

	score += symbolDensityBonus(q)
	score += keywordBonus(q)
	if hasExtension {
		score += ExtensionWeight
	}
	if hasPath {
		score += PathPatternWeight
	}
	if hasCase {
		score += CaseConventionWeight
	}

	n := len(strings.Fields(q))
	if n >= 1 && n <= 3 {
		score += WordCountWeight
	}
	if n >= 5 {
		score -= LongQueryPenalty
	}

	if naturalStarters.MatchString(q) {
		score -= NaturalStarterPenalty
	}

	if !hasCode && !hasPath && !hasCase {
		score -= NoSignalsPenalty
	}
	if containsCommonVerb(q) {
		score -= CommonVerbPenalty
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}

	class := ClassHybrid
	switch {
	case score >= CodeThreshold:
		class = ClassCode
	case score <= NaturalThreshold:
		class = ClassNatural
	}
	return Classification{Class: class, Score: score}
}

// symbolDensityBonus returns min(0.2, density*0.4) where density is the
// fraction of characters that are code symbols.
func symbolDensityBonus(q string) float64 {
	if len(q) == 0 {
		return 0
	}
	matches := symbolChars.FindAllStringIndex(q, -1)
	density := float64(len(matches)) / float64(len(q))
	bonus := density * SymbolDensityScale
	if bonus > SymbolDensityCap {
		bonus = SymbolDensityCap
	}
	return bonus
}

// keywordBonus returns min(0.15, count*0.05) where count is the number of
// recognized code keywords present in q.
func keywordBonus(q string) float64 {
	count := 0
	for _, word := range strings.Fields(strings.ToLower(q)) {
		if codeKeywords[word] {
			count++
		}
	}
	bonus := float64(count) * KeywordScale
	if bonus > KeywordCap {
		bonus = KeywordCap
	}
	return bonus
}

func extensionSignal(q string) float64 {
	if filePathPattern.MatchString(q) {
		return ExtensionWeight
	}
	return 0
}

func pathPatternSignal(q string) float64 {
	if pathSepPattern.MatchString(q) {
		return PathPatternWeight
	}
	return 0
}

func caseConventionSignal(q string) float64 {
	for _, word := range strings.Fields(q) {
		if camelCasePattern.MatchString(word) || pascalCasePattern.MatchString(word) ||
			snakeCasePattern.MatchString(word) || screamingSnake.MatchString(word) {
			return CaseConventionWeight
		}
	}
	return 0
}

func containsCommonVerb(q string) bool {
	for _, word := range strings.Fields(strings.ToLower(q)) {
		if commonVerbs[word] {
			return true
		}
	}
	return false
}
