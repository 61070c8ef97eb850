package transport

import (
	"fmt"
	"strings"

	"github.com/emrgen/manuscript"
)

// Endpoint is a resolved sync target for one document id.
type Endpoint struct {
	// SyncURL is the websocket URL streaming CRDT updates bidirectionally.
	SyncURL string
	// PushURL is the HTTP URL accepting a full state log push.
	PushURL string
	// Token authenticates the caller. Resolution is external to the core;
	// an absent token makes the endpoint unresolvable.
	Token string
}

// EndpointResolver supplies the sync endpoint for a document id. Returning
// ok=false means no endpoint or credential is currently available; sync
// attempts are then skipped, not failed.
type EndpointResolver interface {
	Resolve(id manuscript.DocID) (*Endpoint, bool)
}

// StaticResolver derives endpoints from a fixed server base URL.
type StaticResolver struct {
	BaseURL string // e.g. http://localhost:4030
	Token   string
}

func (r *StaticResolver) Resolve(id manuscript.DocID) (*Endpoint, bool) {
	if r == nil || r.BaseURL == "" || r.Token == "" {
		return nil, false
	}

	wsBase := strings.Replace(r.BaseURL, "http", "ws", 1)
	path := fmt.Sprintf("/v1/projects/%s/%s/documents/%s", id.Owner, id.Project, id.Doc)
	syncPath := fmt.Sprintf("/v1/sync/%s/%s/%s", id.Owner, id.Project, id.Doc)
	if id.Worldbuilding {
		path = fmt.Sprintf("/v1/projects/%s/%s/worldbuilding/%s", id.Owner, id.Project, id.Doc)
		syncPath = fmt.Sprintf("/v1/sync/%s/%s/%s?worldbuilding=true", id.Owner, id.Project, id.Doc)
	}

	return &Endpoint{
		SyncURL: wsBase + syncPath,
		PushURL: r.BaseURL + path + "/state",
		Token:   r.Token,
	}, true
}

// NullResolver resolves nothing; it models fully offline operation.
type NullResolver struct{}

func (NullResolver) Resolve(id manuscript.DocID) (*Endpoint, bool) {
	return nil, false
}
