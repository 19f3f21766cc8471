package chunk

import "context"

// Chunking thresholds, per the two-level strategy: AST-aware when available
// and the file is small enough, line-based otherwise.
const (
	MaxASTFileSize   = 500 * 1024 // bytes
	LineChunkSize    = 100        // lines per fallback chunk
	LineChunkOverlap = 5          // overlap between consecutive fallback chunks
	MinMergeLines     = 10        // AST chunks shorter than this merge into the previous one
	BinarySniffBytes  = 8000
)

// FileInput is the input to the chunker.
type FileInput struct {
	Path     string
	Content  []byte
	Language string
}

// Chunker splits a file into chunks per the two-level AST/line strategy.
type Chunker interface {
	Chunk(ctx context.Context, file *FileInput) ([]*ChunkResult, error)
}

// ChunkResult is an emitted chunk prior to doc_id assignment sequencing
// (doc_id depends on the final chunk_index within the file, assigned by the
// chunker after merge passes).
type ChunkResult struct {
	Path       string
	Language   string
	StartLine  int
	EndLine    int
	Content    string
	ChunkIndex int
	Symbols    []string
	NodeType   string
}

// SymbolType represents the kind of code symbol.
type SymbolType string

const (
	SymbolTypeFunction  SymbolType = "function"
	SymbolTypeClass     SymbolType = "class"
	SymbolTypeInterface SymbolType = "interface"
	SymbolTypeType      SymbolType = "type"
	SymbolTypeVariable  SymbolType = "variable"
	SymbolTypeConstant  SymbolType = "constant"
	SymbolTypeMethod    SymbolType = "method"
)

// Symbol is a named node found while walking the AST.
type Symbol struct {
	Name      string
	Type      SymbolType
	StartLine int
	EndLine   int
}

// Tree is a parsed AST.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// Node is a node in the AST.
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	Children   []*Node
	HasError   bool
}

// Point is a position in the source.
type Point struct {
	Row    uint32
	Column uint32
}

// LanguageConfig holds the node-type tables used to find chunk boundaries
// and symbols for one language.
type LanguageConfig struct {
	Name       string
	Extensions []string

	FunctionTypes  []string
	ClassTypes     []string
	InterfaceTypes []string
	MethodTypes    []string
	TypeDefTypes   []string
	ConstantTypes  []string
	VariableTypes  []string

	NameField string
}
