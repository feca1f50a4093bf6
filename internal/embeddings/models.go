package embeddings

import "strings"

// DefaultModel is used when no model is configured for the local provider.
const DefaultModel = "sentence-transformers/all-MiniLM-L6-v2"

// knownDimensions lists output sizes for models the providers are commonly
// configured with. Keys are matched case-sensitively first, then by suffix.
var knownDimensions = map[string]int{
	"sentence-transformers/all-MiniLM-L6-v2": 384,
	"fast-all-MiniLM-L6-v2":                  384,
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"fast-bge-small-en-v1.5":                 384,
	"fast-bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"fast-bge-base-en-v1.5":                  768,
	"fast-bge-base-en":                       768,
	"BAAI/bge-small-zh-v1.5":                 512,
	"fast-bge-small-zh-v1.5":                 512,
	"text-embedding-ada-002":                 1536,
	"text-embedding-3-small":                 1536,
	"text-embedding-3-large":                 3072,
}

// modelDimension returns the known dimension for a model name.
func modelDimension(model string) (int, bool) {
	dim, ok := knownDimensions[model]
	return dim, ok
}

// detectDimensionFromModel guesses the dimension for models that are not in
// the table. Falls back to 384.
func detectDimensionFromModel(model string) int {
	if dim, ok := modelDimension(model); ok {
		return dim
	}
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "large"):
		return 1024
	case strings.Contains(lower, "base"):
		return 768
	default:
		return 384
	}
}
