package crdt

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/automerge/automerge-go"
)

const contentKey = "content"

// Origin tags every update event with where the change came from. Only
// local-origin updates mark a connection dirty.
type Origin int

const (
	OriginLocal Origin = iota
	OriginRemote
)

func (o Origin) String() string {
	switch o {
	case OriginLocal:
		return "local"
	case OriginRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Document owns one replicated document instance and its content fragment.
// All mutation goes through methods that hold the document lock and notify
// subscribers with an origin tag after the lock is released.
type Document struct {
	mu      sync.Mutex
	doc     *automerge.Doc
	subs    map[int]func(Origin)
	nextSub int
}

// New creates an empty document with an initialized content fragment.
func New() (*Document, error) {
	doc := automerge.New()
	if err := doc.Path(contentKey).Set(automerge.NewList()); err != nil {
		return nil, fmt.Errorf("failed to initialize content fragment: %w", err)
	}
	if _, err := doc.Commit("init", automerge.CommitOptions{AllowEmpty: true}); err != nil {
		return nil, err
	}
	return &Document{doc: doc, subs: make(map[int]func(Origin))}, nil
}

// Load materializes a document from a full binary update log.
func Load(state []byte) (*Document, error) {
	doc, err := automerge.Load(state)
	if err != nil {
		return nil, fmt.Errorf("failed to load document state: %w", err)
	}
	return &Document{doc: doc, subs: make(map[int]func(Origin))}, nil
}

// Ready reports whether the content fragment binding exists. A document
// loaded from foreign state may not carry one; connecting such a document
// to an editing surface is a contract violation.
func (d *Document) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	v, err := d.doc.Path(contentKey).Get()
	if err != nil {
		return false
	}
	return v.Kind() == automerge.KindList
}

// Subscribe registers an update observer. Observers are notified in
// registration order. The returned function removes it.
func (d *Document) Subscribe(fn func(Origin)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextSub
	d.nextSub++
	d.subs[id] = fn

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.subs, id)
	}
}

func (d *Document) notify(origin Origin) {
	d.mu.Lock()
	ids := make([]int, 0, len(d.subs))
	for id := range d.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]func(Origin), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, d.subs[id])
	}
	d.mu.Unlock()

	for _, fn := range subs {
		fn(origin)
	}
}

// Change applies a local edit inside the document lock and commits it as a
// single change. Subscribers observe it with OriginLocal.
func (d *Document) Change(message string, fn func(doc *automerge.Doc) error) error {
	d.mu.Lock()
	if err := fn(d.doc); err != nil {
		d.mu.Unlock()
		return err
	}
	if _, err := d.doc.Commit(message); err != nil {
		d.mu.Unlock()
		return err
	}
	d.mu.Unlock()

	d.notify(OriginLocal)
	return nil
}

// ApplyUpdate applies an incremental binary update produced by a peer.
// Already-observed operations are discarded by the CRDT.
func (d *Document) ApplyUpdate(update []byte) error {
	d.mu.Lock()
	err := d.doc.LoadIncremental(update)
	d.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to apply update: %w", err)
	}

	d.notify(OriginRemote)
	return nil
}

// MergeState merges a full state log into this document and notifies
// subscribers with the given origin. Used to fold a cached offline state
// into a freshly opened document.
func (d *Document) MergeState(state []byte, origin Origin) error {
	other, err := automerge.Load(state)
	if err != nil {
		return fmt.Errorf("failed to load state for merge: %w", err)
	}
	changes, err := other.Changes()
	if err != nil {
		return err
	}

	d.mu.Lock()
	err = d.doc.Apply(changes...)
	d.mu.Unlock()
	if err != nil {
		return err
	}

	d.notify(origin)
	return nil
}

// SaveState encodes the full binary update log.
func (d *Document) SaveState() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Save()
}

// SaveIncremental encodes the changes made since the previous call.
func (d *Document) SaveIncremental() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.SaveIncremental()
}

// Heads returns the current change hashes, the compact summary of which
// operations this replica has observed.
func (d *Document) Heads() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	heads := d.doc.Heads()
	out := make([]string, 0, len(heads))
	for _, h := range heads {
		out = append(out, h.String())
	}
	return out
}

// NewSyncState creates a per-peer sync state bound to this document.
func (d *Document) NewSyncState() *automerge.SyncState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return automerge.NewSyncState(d.doc)
}

// ReceiveSync applies a received sync protocol message. Subscribers observe
// the change with OriginRemote.
func (d *Document) ReceiveSync(state *automerge.SyncState, msg []byte) error {
	d.mu.Lock()
	_, err := state.ReceiveMessage(msg)
	d.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to receive sync message: %w", err)
	}

	d.notify(OriginRemote)
	return nil
}

// GenerateSync produces the next outgoing sync message for a peer, or
// ok=false when the peer is up to date.
func (d *Document) GenerateSync(state *automerge.SyncState) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	msg, valid := state.GenerateMessage()
	if msg == nil || !valid {
		return nil, false
	}
	return msg.Bytes(), true
}

// Fragment reads the content tree into its portable form.
func (d *Document) Fragment() (Fragment, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return readFragment(d.doc)
}

// WordCount counts words across the content fragment.
func (d *Document) WordCount() (int, error) {
	f, err := d.Fragment()
	if err != nil {
		return 0, err
	}
	return f.WordCount(), nil
}

// PlainText flattens the content fragment to text.
func (d *Document) PlainText() (string, error) {
	f, err := d.Fragment()
	if err != nil {
		return "", err
	}
	return f.PlainText(), nil
}

// SetFragment replaces the content tree with the given fragment as one
// local change. This is the import path for project archives.
func (d *Document) SetFragment(f Fragment) error {
	return d.replaceFragment("import", f)
}

// RestoreFragment replaces the content tree with a snapshot's fragment as a
// single commit of fresh operations. Because the operations carry new
// identities they propagate to every peer as an ordinary forward update.
func (d *Document) RestoreFragment(f Fragment) error {
	return d.replaceFragment("restore", f)
}

func (d *Document) replaceFragment(message string, f Fragment) error {
	return d.Change(message, func(doc *automerge.Doc) error {
		list := doc.Path(contentKey).List()

		// clear in place so concurrent edits against the same container
		// still converge
		for list.Len() > 0 {
			if err := list.Delete(0); err != nil {
				return err
			}
		}

		for _, n := range f.Nodes {
			if err := appendNode(list, n); err != nil {
				return err
			}
		}
		return nil
	})
}

// AppendBlock appends one block node to the content fragment.
func (d *Document) AppendBlock(n Node) error {
	if !n.Kind.Block() {
		return fmt.Errorf("cannot append inline node %s at top level", n.Kind)
	}
	return d.Change("edit", func(doc *automerge.Doc) error {
		return appendNode(doc.Path(contentKey).List(), n)
	})
}

// AppendParagraph appends a paragraph with a single text leaf.
func (d *Document) AppendParagraph(text string) error {
	return d.AppendBlock(Paragraph(TextNode(text)))
}

func appendNode(list *automerge.List, n Node) error {
	if err := list.Append(automerge.NewMap()); err != nil {
		return err
	}
	v, err := list.Get(list.Len() - 1)
	if err != nil {
		return err
	}
	return writeNode(v.Map(), n)
}

func writeNode(m *automerge.Map, n Node) error {
	if err := m.Set("type", n.Kind.String()); err != nil {
		return err
	}

	if len(n.Attrs) > 0 {
		if err := m.Set("attrs", automerge.NewMap()); err != nil {
			return err
		}
		av, err := m.Get("attrs")
		if err != nil {
			return err
		}
		for k, val := range n.Attrs {
			if err := av.Map().Set(k, val); err != nil {
				return err
			}
		}
	}

	switch n.Kind {
	case NodeText:
		if err := m.Set("text", automerge.NewText(n.Text)); err != nil {
			return err
		}
		if len(n.Marks) > 0 {
			if err := m.Set("marks", automerge.NewList()); err != nil {
				return err
			}
			mv, err := m.Get("marks")
			if err != nil {
				return err
			}
			for _, mark := range n.Marks {
				if err := mv.List().Append(mark); err != nil {
					return err
				}
			}
		}
		return nil
	case NodeParagraph, NodeHeading, NodeBlockquote:
		if err := m.Set("children", automerge.NewList()); err != nil {
			return err
		}
		cv, err := m.Get("children")
		if err != nil {
			return err
		}
		for _, c := range n.Children {
			if err := appendNode(cv.List(), c); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("cannot serialize node kind %s", n.Kind)
	}
}

func readFragment(doc *automerge.Doc) (Fragment, error) {
	v, err := doc.Path(contentKey).Get()
	if err != nil {
		return Fragment{}, err
	}
	if v.Kind() != automerge.KindList {
		return Fragment{}, fmt.Errorf("document has no content fragment")
	}

	list := v.List()
	var f Fragment
	for i := 0; i < list.Len(); i++ {
		item, err := list.Get(i)
		if err != nil {
			return Fragment{}, err
		}
		n, err := readNode(item)
		if err != nil {
			return Fragment{}, err
		}
		f.Nodes = append(f.Nodes, n)
	}
	return f, nil
}

func readNode(v *automerge.Value) (Node, error) {
	if v.Kind() != automerge.KindMap {
		return Node{}, fmt.Errorf("content node is not a map")
	}
	m := v.Map()

	tv, err := m.Get("type")
	if err != nil {
		return Node{}, err
	}
	if tv.Kind() != automerge.KindStr {
		return Node{}, fmt.Errorf("content node has no type tag")
	}
	kind, err := ParseNodeKind(tv.Str())
	if err != nil {
		return Node{}, err
	}

	n := Node{Kind: kind}

	if av, err := m.Get("attrs"); err == nil && av.Kind() == automerge.KindMap {
		keys, err := av.Map().Keys()
		if err != nil {
			return Node{}, err
		}
		n.Attrs = make(map[string]string, len(keys))
		for _, k := range keys {
			kv, err := av.Map().Get(k)
			if err != nil {
				return Node{}, err
			}
			if kv.Kind() == automerge.KindStr {
				n.Attrs[k] = kv.Str()
			}
		}
	}

	switch kind {
	case NodeText:
		txt, err := m.Get("text")
		if err != nil {
			return Node{}, err
		}
		switch txt.Kind() {
		case automerge.KindText:
			s, err := txt.Text().Get()
			if err != nil {
				return Node{}, err
			}
			n.Text = s
		case automerge.KindStr:
			n.Text = txt.Str()
		default:
			return Node{}, fmt.Errorf("text node carries no text")
		}

		if mv, err := m.Get("marks"); err == nil && mv.Kind() == automerge.KindList {
			marks := mv.List()
			for i := 0; i < marks.Len(); i++ {
				mark, err := marks.Get(i)
				if err != nil {
					return Node{}, err
				}
				if mark.Kind() == automerge.KindStr {
					n.Marks = append(n.Marks, mark.Str())
				}
			}
		}
		return n, nil
	case NodeParagraph, NodeHeading, NodeBlockquote:
		cv, err := m.Get("children")
		if err != nil {
			return Node{}, err
		}
		if cv.Kind() == automerge.KindList {
			children := cv.List()
			for i := 0; i < children.Len(); i++ {
				item, err := children.Get(i)
				if err != nil {
					return Node{}, err
				}
				child, err := readNode(item)
				if err != nil {
					return Node{}, err
				}
				n.Children = append(n.Children, child)
			}
		}
		return n, nil
	default:
		return Node{}, fmt.Errorf("cannot read node kind %s", kind)
	}
}

// HeadingLevel reads the level attribute of a heading node, defaulting to 1.
func (n Node) HeadingLevel() int {
	if n.Kind != NodeHeading {
		return 0
	}
	if n.Attrs == nil {
		return 1
	}
	level, err := strconv.Atoi(n.Attrs["level"])
	if err != nil || level < 1 {
		return 1
	}
	return level
}
