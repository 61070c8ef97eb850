package crdt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFragmentJSONRoundTrip(t *testing.T) {
	f := Fragment{Nodes: []Node{
		Heading(2, TextNode("The Dragon")),
		Paragraph(TextNode("Hello ", "bold"), TextNode("World")),
		{Kind: NodeBlockquote, Children: []Node{Paragraph(TextNode("quoted"))}},
	}}

	data, err := json.Marshal(f)
	assert.NoError(t, err)

	var got Fragment
	assert.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, f, got)
}

func TestFragmentUnmarshalUnknownKind(t *testing.T) {
	var f Fragment
	err := json.Unmarshal([]byte(`{"nodes":[{"type":"table"}]}`), &f)
	assert.Error(t, err)
}

func TestFragmentWordCount(t *testing.T) {
	f := Fragment{Nodes: []Node{
		Heading(1, TextNode("Chapter One")),
		Paragraph(TextNode("It was a dark and stormy night")),
		Paragraph(),
	}}
	assert.Equal(t, 9, f.WordCount())
	assert.Equal(t, 0, Fragment{}.WordCount())
}

func TestFragmentPlainText(t *testing.T) {
	f := Fragment{Nodes: []Node{
		Paragraph(TextNode("Hello"), TextNode(" World")),
		Paragraph(TextNode("Second")),
	}}
	assert.Equal(t, "Hello World\nSecond", f.PlainText())
}

func TestHeadingLevel(t *testing.T) {
	assert.Equal(t, 3, Heading(3).HeadingLevel())
	assert.Equal(t, 1, Node{Kind: NodeHeading}.HeadingLevel())
	assert.Equal(t, 0, Paragraph().HeadingLevel())
}
