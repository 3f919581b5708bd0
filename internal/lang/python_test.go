package lang

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSource = `import os
import requests
from pathlib import Path


class Client:
    def fetch(self, url):
        return requests.get(url)


def main():
    c = Client()
    print(c.fetch("https://example.com"))
`

func parseSample(t *testing.T, src string) (*Python, *Tree) {
	t.Helper()
	p := NewPython()
	tree, err := p.Parse(context.Background(), []byte(src))
	require.NoError(t, err)
	return p, tree
}

func TestParseRejectsSyntaxError(t *testing.T) {
	p := NewPython()
	_, err := p.Parse(context.Background(), []byte("def broken(:\n    pass\n"))
	assert.Error(t, err)
}

func TestReemitIsByteIdentical(t *testing.T) {
	p, tree := parseSample(t, sampleSource)
	assert.True(t, p.ByteIdenticalReemit())
	assert.Equal(t, []byte(sampleSource), p.Reemit(tree))
}

func TestCountSymbols(t *testing.T) {
	p, tree := parseSample(t, sampleSource)
	counts := p.CountSymbols(tree)
	assert.Equal(t, 2, counts.Functions, "fetch and main")
	assert.Equal(t, 1, counts.Classes)
	assert.Equal(t, 3, counts.Imports)
}

func TestCanonicalHashIgnoresCommentsAndWhitespace(t *testing.T) {
	p, a := parseSample(t, "x = 1\ny = 2\n")
	_, b := parseSample(t, "x = 1  # the answer\n\ny = 2\n")
	_, c := parseSample(t, "x = 1\ny = 3\n")

	assert.Equal(t, p.CanonicalHash(a), p.CanonicalHash(b),
		"comments and blank lines must not affect the hash")
	assert.NotEqual(t, p.CanonicalHash(a), p.CanonicalHash(c),
		"a literal change must change the hash")
}

func TestSymbols(t *testing.T) {
	p, tree := parseSample(t, sampleSource)
	symbols := p.Symbols(tree)
	require.Len(t, symbols, 3)

	byName := make(map[string]Symbol)
	for _, s := range symbols {
		byName[s.Qualified] = s
	}
	assert.Equal(t, SymbolClass, byName["Client"].Kind)
	assert.Equal(t, SymbolFunction, byName["Client.fetch"].Kind)
	assert.Equal(t, SymbolFunction, byName["main"].Kind)
}

func TestImports(t *testing.T) {
	p, tree := parseSample(t, sampleSource)
	assert.Equal(t, []string{"os", "pathlib", "requests"}, p.Imports(tree))
}

func TestImportsAliased(t *testing.T) {
	p, tree := parseSample(t, "import numpy as np\n")
	assert.Equal(t, []string{"numpy"}, p.Imports(tree))
}

func TestEnclosingSymbol(t *testing.T) {
	p, tree := parseSample(t, sampleSource)

	// Line 8 is the body of Client.fetch
	assert.Equal(t, "Client.fetch", p.EnclosingSymbol(tree, 8, SymbolFunction))
	assert.Equal(t, "Client", p.EnclosingSymbol(tree, 8, SymbolClass))

	// Line 1 is module level
	assert.Equal(t, "", p.EnclosingSymbol(tree, 1, SymbolFunction))
}

func TestRegistryForPath(t *testing.T) {
	r := DefaultRegistry()
	assert.NotNil(t, r.ForPath("src/app.py"))
	assert.Nil(t, r.ForPath("README.md"))
}
