package chunk

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// extToLanguage maps a file extension to the language tag used throughout
// the engine. Unknown extensions map to "text", which is still indexed via
// the line-based fallback.
var extToLanguage = map[string]string{
	".go":   "go",
	".ts":   "typescript",
	".tsx":  "tsx",
	".js":   "javascript",
	".mjs":  "javascript",
	".jsx":  "jsx",
	".py":   "python",
	".rs":   "rust",
}

// LanguageOf returns the language tag for a path based on its extension.
func LanguageOf(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := extToLanguage[ext]; ok {
		return lang
	}
	return "text"
}

// IsBinary reports whether content looks like binary data: a NUL byte in the
// first 8000 bytes, or more than 10% non-printable non-whitespace characters
// in that prefix.
func IsBinary(content []byte) bool {
	n := len(content)
	if n > BinarySniffBytes {
		n = BinarySniffBytes
	}
	prefix := content[:n]

	nonPrintable := 0
	for _, b := range prefix {
		if b == 0 {
			return true
		}
		if b == '\n' || b == '\r' || b == '\t' {
			continue
		}
		if b < 0x20 || b == 0x7f {
			nonPrintable++
		}
	}
	if n == 0 {
		return false
	}
	return float64(nonPrintable)/float64(n) > 0.10
}

// CodeChunker implements the two-level AST/line chunking strategy.
type CodeChunker struct {
	parser   *Parser
	registry *LanguageRegistry
}

// NewCodeChunker creates a chunker using the default language registry.
func NewCodeChunker() *CodeChunker {
	registry := DefaultRegistry()
	return &CodeChunker{
		parser:   NewParserWithRegistry(registry),
		registry: registry,
	}
}

// Close releases parser resources.
func (c *CodeChunker) Close() {
	if c.parser != nil {
		c.parser.Close()
	}
}

// Chunk splits file into chunks following the spec's two-level strategy:
// AST-aware when the language is supported and the file is small enough,
// line-based with overlap otherwise.
func (c *CodeChunker) Chunk(ctx context.Context, file *FileInput) ([]*ChunkResult, error) {
	if len(file.Content) == 0 {
		return []*ChunkResult{}, nil
	}
	if IsBinary(file.Content) {
		return []*ChunkResult{}, nil
	}

	config, supported := c.registry.GetByName(file.Language)
	if !supported || len(file.Content) > MaxASTFileSize {
		return c.chunkByLines(file), nil
	}

	tree, err := c.parser.Parse(ctx, file.Content, file.Language)
	if err != nil {
		return c.chunkByLines(file), nil
	}

	chunks := c.chunkByAST(tree, config, file)
	if len(chunks) == 0 {
		return c.chunkByLines(file), nil
	}
	return chunks, nil
}

type astChunk struct {
	node    *Node
	symbols []string
}

// chunkByAST walks the tree, emitting one chunk per boundary-set node, then
// merges chunks shorter than MinMergeLines into the preceding contiguous
// chunk.
func (c *CodeChunker) chunkByAST(tree *Tree, config *LanguageConfig, file *FileInput) []*ChunkResult {
	boundary := config.BoundaryTypes()

	var found []*astChunk
	var walk func(n *Node, excludeDescendantsOf bool)
	walk = func(n *Node, inBoundary bool) {
		_, isBoundary := boundary[n.Type]
		if isBoundary {
			syms := c.extractSymbols(n, tree.Source, config, file.Language)
			found = append(found, &astChunk{node: n, symbols: syms})
			// Don't descend into nested boundary nodes (e.g. methods inside
			// a class): the class chunk already covers them.
			return
		}
		for _, child := range n.Children {
			walk(child, inBoundary)
		}
	}
	walk(tree.Root, false)

	if len(found) == 0 {
		return nil
	}

	merged := mergeShortChunks(found)

	results := make([]*ChunkResult, 0, len(merged))
	for i, ac := range merged {
		content := ac.node.GetContent(tree.Source)
		results = append(results, &ChunkResult{
			Path:       file.Path,
			Language:   file.Language,
			StartLine:  int(ac.node.StartPoint.Row) + 1,
			EndLine:    int(ac.node.EndPoint.Row) + 1,
			Content:    content,
			ChunkIndex: i,
			Symbols:    ac.symbols,
			NodeType:   ac.node.Type,
		})
	}
	return results
}

// mergeShortChunks folds any chunk spanning fewer than MinMergeLines lines
// into the immediately preceding chunk, provided they are contiguous in
// source order. The first chunk is never merged backward.
func mergeShortChunks(chunks []*astChunk) []*astChunk {
	var out []*astChunk
	for _, ac := range chunks {
		lines := int(ac.node.EndPoint.Row) - int(ac.node.StartPoint.Row) + 1
		if lines < MinMergeLines && len(out) > 0 {
			prev := out[len(out)-1]
			prev.node = &Node{
				Type:       prev.node.Type,
				StartByte:  prev.node.StartByte,
				EndByte:    ac.node.EndByte,
				StartPoint: prev.node.StartPoint,
				EndPoint:   ac.node.EndPoint,
			}
			prev.symbols = dedupeStrings(append(prev.symbols, ac.symbols...))
			continue
		}
		out = append(out, ac)
	}
	return out
}

// chunkByLines is the fallback for unsupported languages, oversized files,
// and parse failures: fixed-size windows with overlap.
func (c *CodeChunker) chunkByLines(file *FileInput) []*ChunkResult {
	content := string(file.Content)
	if strings.TrimSpace(content) == "" {
		return []*ChunkResult{}
	}

	lines := strings.Split(content, "\n")
	var results []*ChunkResult

	idx := 0
	for i := 0; i < len(lines); {
		end := i + LineChunkSize
		if end > len(lines) {
			end = len(lines)
		}

		results = append(results, &ChunkResult{
			Path:       file.Path,
			Language:   file.Language,
			StartLine:  i + 1,
			EndLine:    end,
			Content:    strings.Join(lines[i:end], "\n"),
			ChunkIndex: idx,
			Symbols:    nil,
		})
		idx++

		if end >= len(lines) {
			break
		}
		i = end - LineChunkOverlap
		if i <= 0 {
			i = end
		}
	}
	return results
}

var stopwords = map[string]struct{}{
	"if": {}, "else": {}, "for": {}, "while": {}, "return": {}, "break": {},
	"continue": {}, "switch": {}, "case": {}, "default": {}, "func": {},
	"def": {}, "class": {}, "struct": {}, "interface": {}, "type": {},
	"const": {}, "var": {}, "let": {}, "import": {}, "package": {}, "from": {},
	"true": {}, "false": {}, "nil": {}, "null": {}, "none": {}, "self": {},
	"this": {}, "pub": {}, "fn": {}, "impl": {}, "trait": {}, "mod": {},
	"async": {}, "await": {}, "export": {}, "public": {}, "private": {},
	"static": {}, "void": {}, "int": {}, "string": {}, "bool": {},
}

var identifierRE = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// extractSymbols collects the node's declared name (AST path) when
// resolvable, followed by the identifier tokens of a regex scan of the
// node's own declaration line. The scanned tokens are filtered against a
// reserved-word stopword set and the result is deduped, so the enclosing
// node's own name, if any, comes first.
func (c *CodeChunker) extractSymbols(n *Node, source []byte, config *LanguageConfig, language string) []string {
	name := nodeName(n, source, language)

	var symbols []string
	if name != "" {
		symbols = append(symbols, name)
	}

	declLine := firstLine(n.GetContent(source))
	for _, tok := range identifierRE.FindAllString(declLine, -1) {
		if _, stop := stopwords[tok]; stop {
			continue
		}
		symbols = append(symbols, tok)
	}

	return dedupeStrings(symbols)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// nodeName resolves the declared identifier for a boundary node using
// per-language child-type lookups.
func nodeName(n *Node, source []byte, language string) string {
	switch language {
	case "go":
		switch n.Type {
		case "function_declaration":
			if c := n.FindChildByType("identifier"); c != nil {
				return c.GetContent(source)
			}
		case "method_declaration":
			if c := n.FindChildByType("field_identifier"); c != nil {
				return c.GetContent(source)
			}
		case "type_declaration":
			for _, spec := range n.FindChildrenByType("type_spec") {
				if c := spec.FindChildByType("type_identifier"); c != nil {
					return c.GetContent(source)
				}
			}
		}
	case "typescript", "tsx", "javascript", "jsx":
		if n.Type == "lexical_declaration" || n.Type == "variable_declaration" {
			for _, decl := range n.FindChildrenByType("variable_declarator") {
				if c := decl.FindChildByType("identifier"); c != nil {
					return c.GetContent(source)
				}
			}
		}
		for _, t := range []string{"identifier", "type_identifier"} {
			if c := n.FindChildByType(t); c != nil {
				return c.GetContent(source)
			}
		}
	case "python", "rust":
		if c := n.FindChildByType("identifier"); c != nil {
			return c.GetContent(source)
		}
		if c := n.FindChildByType("type_identifier"); c != nil {
			return c.GetContent(source)
		}
	}
	return ""
}

// DocID builds the stable chunk identifier from a path, its 0-based index
// within the file, and the chunk's content length, per the engine's
// `"{path}#{chunk_index}#{hex_hash}"` convention.
func DocID(path string, chunkIndex int, contentLength int) string {
	input := fmt.Sprintf("%s:%d:%d", path, chunkIndex, contentLength)
	h := fnv32a(input)
	return fmt.Sprintf("%s#%d#%x", path, chunkIndex, h)
}

const (
	fnvOffset32 uint32 = 2166136261
	fnvPrime32  uint32 = 16777619
)

func fnv32a(s string) uint32 {
	h := fnvOffset32
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime32
	}
	return h
}
