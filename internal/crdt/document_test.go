package crdt

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentFragmentRoundTrip(t *testing.T) {
	doc, err := New()
	require.NoError(t, err)
	assert.True(t, doc.Ready())

	require.NoError(t, doc.AppendBlock(Heading(1, TextNode("Chapter One"))))
	require.NoError(t, doc.AppendParagraph("Hello World"))
	require.NoError(t, doc.AppendBlock(Paragraph(TextNode("emphasis", "italic"))))

	f, err := doc.Fragment()
	require.NoError(t, err)
	require.Len(t, f.Nodes, 3)
	assert.Equal(t, NodeHeading, f.Nodes[0].Kind)
	assert.Equal(t, "Chapter One", f.Nodes[0].Children[0].Text)
	assert.Equal(t, []string{"italic"}, f.Nodes[2].Children[0].Marks)

	wc, err := doc.WordCount()
	require.NoError(t, err)
	assert.Equal(t, 5, wc)
}

func TestDocumentLoadState(t *testing.T) {
	doc, err := New()
	require.NoError(t, err)
	require.NoError(t, doc.AppendParagraph("persisted"))

	loaded, err := Load(doc.SaveState())
	require.NoError(t, err)
	assert.True(t, loaded.Ready())

	text, err := loaded.PlainText()
	require.NoError(t, err)
	assert.Equal(t, "persisted", text)
}

func TestDocumentSubscribeOrigins(t *testing.T) {
	a, err := New()
	require.NoError(t, err)

	var origins []Origin
	unsub := a.Subscribe(func(o Origin) {
		origins = append(origins, o)
	})

	require.NoError(t, a.AppendParagraph("local edit"))
	require.Len(t, origins, 1)
	assert.Equal(t, OriginLocal, origins[0])

	b, err := Load(a.SaveState())
	require.NoError(t, err)
	require.NoError(t, b.AppendParagraph("peer edit"))

	require.NoError(t, a.MergeState(b.SaveState(), OriginRemote))
	require.Len(t, origins, 2)
	assert.Equal(t, OriginRemote, origins[1])

	unsub()
	require.NoError(t, a.AppendParagraph("after unsubscribe"))
	assert.Len(t, origins, 2)
}

func TestDocumentSyncBetweenPeers(t *testing.T) {
	a, err := New()
	require.NoError(t, err)
	require.NoError(t, a.AppendParagraph("Hello"))

	b, err := Load(a.SaveState())
	require.NoError(t, err)

	require.NoError(t, a.AppendParagraph("from a"))
	require.NoError(t, b.AppendParagraph("from b"))

	sa := a.NewSyncState()
	sb := b.NewSyncState()

	// pump messages both ways until quiescent
	for i := 0; i < 20; i++ {
		msgA, okA := a.GenerateSync(sa)
		if okA {
			require.NoError(t, b.ReceiveSync(sb, msgA))
		}
		msgB, okB := b.GenerateSync(sb)
		if okB {
			require.NoError(t, a.ReceiveSync(sa, msgB))
		}
		if !okA && !okB {
			break
		}
	}

	fa, err := a.Fragment()
	require.NoError(t, err)
	fb, err := b.Fragment()
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
	assert.Len(t, fa.Nodes, 3)
}

func TestRestoreFragmentSynthesizesNewOperations(t *testing.T) {
	doc, err := New()
	require.NoError(t, err)
	require.NoError(t, doc.AppendParagraph("Hello"))

	snapshotState := doc.SaveState()
	snapshotDoc, err := Load(snapshotState)
	require.NoError(t, err)
	snapshotFragment, err := snapshotDoc.Fragment()
	require.NoError(t, err)

	require.NoError(t, doc.AppendParagraph("World"))

	require.NoError(t, doc.RestoreFragment(snapshotFragment))

	// semantically equivalent to the snapshot content
	text, err := doc.PlainText()
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)

	// but a new forward operation, not a replay of the stored state
	assert.False(t, bytes.Equal(snapshotState, doc.SaveState()))
	assert.NotEqual(t, snapshotDoc.Heads(), doc.Heads())
}

func TestRestoredContentPropagatesToLivePeer(t *testing.T) {
	server, err := New()
	require.NoError(t, err)
	require.NoError(t, server.AppendParagraph("Hello"))

	snapshot, err := server.Fragment()
	require.NoError(t, err)

	peer, err := Load(server.SaveState())
	require.NoError(t, err)

	require.NoError(t, server.AppendParagraph("World"))
	require.NoError(t, server.RestoreFragment(snapshot))

	// the peer catches up through the ordinary sync protocol
	ss, sp := server.NewSyncState(), peer.NewSyncState()
	for i := 0; i < 20; i++ {
		msgS, okS := server.GenerateSync(ss)
		if okS {
			require.NoError(t, peer.ReceiveSync(sp, msgS))
		}
		msgP, okP := peer.GenerateSync(sp)
		if okP {
			require.NoError(t, server.ReceiveSync(ss, msgP))
		}
		if !okS && !okP {
			break
		}
	}

	text, err := peer.PlainText()
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
}

func TestApplyUpdateIncremental(t *testing.T) {
	a, err := New()
	require.NoError(t, err)

	b, err := Load(a.SaveState())
	require.NoError(t, err)

	// drain the incremental buffer before editing
	_ = a.SaveIncremental()
	require.NoError(t, a.AppendParagraph("delta"))

	require.NoError(t, b.ApplyUpdate(a.SaveIncremental()))

	text, err := b.PlainText()
	require.NoError(t, err)
	assert.Equal(t, "delta", text)
}
