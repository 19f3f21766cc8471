package vectorstore

import (
	"strconv"

	"github.com/hybridsearch/engine/internal/lexical"
)

const (
	sparseFNVOffset uint32 = 2166136261
	sparseFNVPrime  uint32 = 16777619
)

// SparseVector is a sparse term-weight vector keyed by the decimal string
// form of each token's FNV-1a hash, matching the engine's hybrid-collection
// wire format for sparse embeddings.
type SparseVector map[string]float64

// EncodeToken returns the hybrid collection's sparse key for token: the
// decimal string of its 32-bit FNV-1a hash.
func EncodeToken(token string) string {
	h := sparseFNVOffset
	for i := 0; i < len(token); i++ {
		h ^= uint32(token[i])
		h *= sparseFNVPrime
	}
	return strconv.FormatUint(uint64(h), 10)
}

// SparseFromContent builds a term-frequency sparse vector over content's
// code-aware tokens, used when the inference service's own sparse encoder
// is unavailable (C2 embed_sparse is the primary path; this is the fallback
// local approximation used for symbol/content-derived sparse signals).
func SparseFromContent(content string) SparseVector {
	tokens := lexical.TokenizeCode(content)
	vec := make(SparseVector, len(tokens))
	for _, t := range tokens {
		vec[EncodeToken(t)]++
	}
	return vec
}

// DotProduct computes the sparse inner product between a and b.
func DotProduct(a, b SparseVector) float64 {
	// iterate over the smaller map
	if len(b) < len(a) {
		a, b = b, a
	}
	var sum float64
	for k, av := range a {
		if bv, ok := b[k]; ok {
			sum += av * bv
		}
	}
	return sum
}
