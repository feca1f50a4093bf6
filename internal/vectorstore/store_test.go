package vectorstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateCollectionName(t *testing.T) {
	valid := []string{"repo", "my-repo_2", "A", strings.Repeat("x", 64)}
	for _, name := range valid {
		assert.NoError(t, ValidateCollectionName(name), name)
	}

	invalid := []string{"", "has space", "dot.name", "../etc", strings.Repeat("x", 65), "ünïcode"}
	for _, name := range invalid {
		assert.ErrorIs(t, ValidateCollectionName(name), ErrInvalidCollectionName, name)
	}
}

func TestValidatePoints(t *testing.T) {
	assert.NoError(t, validatePoints([]Point{{ID: "a", Vector: []float32{1, 2}}}, 2))
	assert.Error(t, validatePoints([]Point{{ID: "", Vector: []float32{1}}}, 1))
	assert.ErrorIs(t, validatePoints([]Point{{ID: "a", Vector: []float32{1}}}, 2), ErrDimensionMismatch)
}
