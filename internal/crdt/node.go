package crdt

import (
	"encoding/json"
	"fmt"
	"strings"
)

// NodeKind enumerates the content node kinds the document fragment can hold.
// Every switch over NodeKind in this package is exhaustive; adding a kind
// without extending them is a bug.
type NodeKind int

const (
	NodeParagraph NodeKind = iota
	NodeHeading
	NodeBlockquote
	NodeText
)

func (k NodeKind) String() string {
	switch k {
	case NodeParagraph:
		return "paragraph"
	case NodeHeading:
		return "heading"
	case NodeBlockquote:
		return "blockquote"
	case NodeText:
		return "text"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// ParseNodeKind maps the serialized type tag back to a NodeKind.
func ParseNodeKind(s string) (NodeKind, error) {
	switch s {
	case "paragraph":
		return NodeParagraph, nil
	case "heading":
		return NodeHeading, nil
	case "blockquote":
		return NodeBlockquote, nil
	case "text":
		return NodeText, nil
	default:
		return 0, fmt.Errorf("unknown node kind %q", s)
	}
}

// Block reports whether the kind is a block container (holds children)
// as opposed to an inline leaf.
func (k NodeKind) Block() bool {
	switch k {
	case NodeParagraph, NodeHeading, NodeBlockquote:
		return true
	case NodeText:
		return false
	default:
		return false
	}
}

// Node is one node of the content tree. Block kinds carry Children and
// Attrs; the text kind carries Text and Marks.
type Node struct {
	Kind     NodeKind
	Attrs    map[string]string
	Marks    []string
	Text     string
	Children []Node
}

// TextNode builds an inline text leaf.
func TextNode(text string, marks ...string) Node {
	return Node{Kind: NodeText, Text: text, Marks: marks}
}

// Paragraph builds a paragraph block around the given inline nodes.
func Paragraph(children ...Node) Node {
	return Node{Kind: NodeParagraph, Children: children}
}

// Heading builds a heading block of the given level.
func Heading(level int, children ...Node) Node {
	return Node{
		Kind:     NodeHeading,
		Attrs:    map[string]string{"level": fmt.Sprintf("%d", level)},
		Children: children,
	}
}

// Fragment is the portable, serialized form of a document's content tree.
// It is what client snapshots store and what restore materializes.
type Fragment struct {
	Nodes []Node
}

type jsonNode struct {
	Type     string            `json:"type"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Marks    []string          `json:"marks,omitempty"`
	Text     string            `json:"text,omitempty"`
	Children []jsonNode        `json:"children,omitempty"`
}

func toJSONNode(n Node) jsonNode {
	out := jsonNode{
		Type:  n.Kind.String(),
		Attrs: n.Attrs,
		Marks: n.Marks,
		Text:  n.Text,
	}
	for _, c := range n.Children {
		out.Children = append(out.Children, toJSONNode(c))
	}
	return out
}

func fromJSONNode(jn jsonNode) (Node, error) {
	kind, err := ParseNodeKind(jn.Type)
	if err != nil {
		return Node{}, err
	}

	n := Node{
		Kind:  kind,
		Attrs: jn.Attrs,
		Marks: jn.Marks,
		Text:  jn.Text,
	}
	for _, c := range jn.Children {
		child, err := fromJSONNode(c)
		if err != nil {
			return Node{}, err
		}
		n.Children = append(n.Children, child)
	}
	return n, nil
}

func (f Fragment) MarshalJSON() ([]byte, error) {
	nodes := make([]jsonNode, 0, len(f.Nodes))
	for _, n := range f.Nodes {
		nodes = append(nodes, toJSONNode(n))
	}
	return json.Marshal(struct {
		Nodes []jsonNode `json:"nodes"`
	}{Nodes: nodes})
}

func (f *Fragment) UnmarshalJSON(data []byte) error {
	var raw struct {
		Nodes []jsonNode `json:"nodes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	f.Nodes = f.Nodes[:0]
	for _, jn := range raw.Nodes {
		n, err := fromJSONNode(jn)
		if err != nil {
			return err
		}
		f.Nodes = append(f.Nodes, n)
	}
	return nil
}

// WordCount counts whitespace-separated words across every text leaf.
func (f Fragment) WordCount() int {
	count := 0
	for _, n := range f.Nodes {
		count += nodeWordCount(n)
	}
	return count
}

func nodeWordCount(n Node) int {
	switch n.Kind {
	case NodeText:
		return len(strings.Fields(n.Text))
	case NodeParagraph, NodeHeading, NodeBlockquote:
		count := 0
		for _, c := range n.Children {
			count += nodeWordCount(c)
		}
		return count
	default:
		return 0
	}
}

// PlainText concatenates every text leaf, separating blocks with newlines.
func (f Fragment) PlainText() string {
	var sb strings.Builder
	for i, n := range f.Nodes {
		if i > 0 {
			sb.WriteString("\n")
		}
		writePlainText(&sb, n)
	}
	return sb.String()
}

func writePlainText(sb *strings.Builder, n Node) {
	switch n.Kind {
	case NodeText:
		sb.WriteString(n.Text)
	case NodeParagraph, NodeHeading, NodeBlockquote:
		for _, c := range n.Children {
			writePlainText(sb, c)
		}
	}
}
