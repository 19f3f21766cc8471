package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyCodeIdentifier(t *testing.T) {
	result := classify("getUserById")
	assert.Equal(t, ClassCode, result.Class)
}

func TestClassifySnakeCaseFunction(t *testing.T) {
	result := classify("parse_http_request")
	assert.Equal(t, ClassCode, result.Class)
}

func TestClassifyNaturalLanguageQuestion(t *testing.T) {
	result := classify("how do I configure the database connection pool")
	assert.Equal(t, ClassNatural, result.Class)
}

func TestClassifyFilePath(t *testing.T) {
	result := classify("internal/store/hnsw.go")
	assert.Equal(t, ClassCode, result.Class)
}

func TestClassifyShortAmbiguousQueryIsHybrid(t *testing.T) {
	result := classify("cache eviction")
	assert.Equal(t, ClassHybrid, result.Class)
}

func TestNormalizeCollapsesWhitespace(t *testing.T) {
	assert.Equal(t, "foo bar baz", Normalize("  foo   bar\tbaz  "))
}

func TestCacheKeyLowercasesAndStripsTrailingPunctuation(t *testing.T) {
	assert.Equal(t, "parse request", CacheKey("Parse Request?"))
	assert.Equal(t, CacheKey("parse request"), CacheKey("Parse Request?"))
}

func TestClassifierCachesResultsByNormalizedKey(t *testing.T) {
	c := New(10)
	first := c.Classify("ParseRequest")
	second := c.Classify("parserequest")
	assert.Equal(t, first.Class, second.Class)
}

func TestClassifyEmptyQueryIsNatural(t *testing.T) {
	c := New(10)
	result := c.Classify("   ")
	assert.Equal(t, ClassNatural, result.Class)
}

func TestClassifyScoreClampedToUnitRange(t *testing.T) {
	result := classify("func struct class interface getUserById parse_http_request pkg/file.go a/b/c")
	assert.LessOrEqual(t, result.Score, 1.0)
	assert.GreaterOrEqual(t, result.Score, 0.0)
}
