package fusion

import "strings"

// PathFromDocID recovers the source path from the "{path}#{chunk_index}#{hash}"
// doc_id convention, for hits that only carry a doc_id (the lexical leg).
func PathFromDocID(docID string) string {
	if i := strings.LastIndex(docID, "#"); i > 0 {
		if j := strings.LastIndex(docID[:i], "#"); j > 0 {
			return docID[:j]
		}
	}
	return docID
}

// LexicalHitFromSearch builds a LexicalHit from a lexical search result,
// deriving Path from the doc_id since the lexical index doesn't carry
// chunk metadata.
func LexicalHitFromSearch(docID string, score float64, matchedTerms []string) LexicalHit {
	return LexicalHit{
		Candidate: Candidate{
			DocID:        docID,
			Path:         PathFromDocID(docID),
			MatchedTerms: matchedTerms,
		},
		Score: score,
	}
}

// VectorHitFromSearch builds a VectorHit from a vector store hit's metadata.
func VectorHitFromSearch(docID string, score float64, path, language string, symbols []string, startLine, endLine int) VectorHit {
	return VectorHit{
		Candidate: Candidate{
			DocID:     docID,
			Path:      path,
			Language:  language,
			Symbols:   symbols,
			StartLine: startLine,
			EndLine:   endLine,
		},
		Score: score,
	}
}
