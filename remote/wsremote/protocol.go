// Package wsremote exposes a remote.Store over a single websocket: a
// client side implementing the Store interface and a server side serving
// any Store over HTTP. Frames are JSON; submissions are matched to their
// acknowledgements by sequence number, snapshots flow unsolicited.
package wsremote

import (
	"time"

	mutate "github.com/signadot/go-mutate"
)

// Frame types.
const (
	frameSubmit   = "submit"
	frameWatch    = "watch"
	frameAck      = "ack"
	frameError    = "error"
	frameSnapshot = "snapshot"
)

// frame is the single wire message shape, with fields populated by type:
//
//	submit:   seq, mutations
//	watch:    documents
//	ack:      seq, revision, timestamp
//	error:    seq, error
//	snapshot: documentID, snapshot (absent when deleted), revision
type frame struct {
	Type       string             `json:"type"`
	Seq        int64              `json:"seq,omitempty"`
	Mutations  []*mutate.Mutation `json:"mutations,omitempty"`
	Documents  []string           `json:"documents,omitempty"`
	DocumentID string             `json:"documentID,omitempty"`
	Snapshot   any                `json:"snapshot,omitempty"`
	Revision   string             `json:"revision,omitempty"`
	Timestamp  *time.Time         `json:"timestamp,omitempty"`
	Error      string             `json:"error,omitempty"`
}
