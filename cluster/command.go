// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package cluster

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/warden-foundation/warden/lib/rights"
)

// Kind identifies the operation a replicated command performs. The
// numeric value is the wire encoding; String returns the name recorded
// in the history journal and the API.
type Kind uint8

const (
	KindCreateSubject Kind = iota + 1
	KindDeleteSubject
	KindCreateObject
	KindDeleteObject
	KindAssign
	KindGrant
	KindTake
	KindRevoke
	KindWriteContent
	KindRegisterNode
	KindDeregisterNode
	KindRestoreState
)

var kindNames = map[Kind]string{
	KindCreateSubject:  "create_subject",
	KindDeleteSubject:  "delete_subject",
	KindCreateObject:   "create_object",
	KindDeleteObject:   "delete_object",
	KindAssign:         "assign",
	KindGrant:          "grant",
	KindTake:           "take",
	KindRevoke:         "revoke",
	KindWriteContent:   "write_content",
	KindRegisterNode:   "register_node",
	KindDeregisterNode: "deregister_node",
	KindRestoreState:   "restore_state",
}

// String returns the kind's wire name, or a numeric literal for
// undefined values.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Valid reports whether k is a defined command kind.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// Command is the unit of replication: one record describing one
// mutation, CBOR-encoded into a single raft log entry. Which fields
// are meaningful depends on Kind; Validate enforces the per-kind
// shape. Only the proposing node ever encodes a command, but every
// node decodes it, so the encoding is the deterministic integer-keyed
// CBOR of lib/codec.
type Command struct {
	// Kind selects the operation.
	Kind Kind `cbor:"1,keyasint"`

	// RequestID correlates the command across propose, forwarding,
	// apply, and the history journal. Minted by the constructors;
	// callers carrying a client-supplied ID overwrite it before
	// proposing.
	RequestID string `cbor:"2,keyasint"`

	// Actor is the subject performing a delegated operation: the
	// granter of a grant, the taker of a take, the revoker of a
	// revoke, the writer of a content write.
	Actor string `cbor:"3,keyasint,omitempty"`

	// ID is the node identifier for create/delete commands and the
	// member node ID for register/deregister.
	ID string `cbor:"4,keyasint,omitempty"`

	// Source is the edge source for assign and the current holder the
	// right is pulled from for take.
	Source string `cbor:"5,keyasint,omitempty"`

	// Target is the edge target for assign, the grantee for grant,
	// and the holder losing the right for revoke.
	Target string `cbor:"6,keyasint,omitempty"`

	// Object is the object a right applies to, or whose content is
	// written.
	Object string `cbor:"7,keyasint,omitempty"`

	// Right is the single right moved by assign/grant/take/revoke.
	Right rights.Right `cbor:"8,keyasint,omitempty"`

	// Content carries the object bytes for write_content and the full
	// snapshot-format payload for restore_state.
	Content []byte `cbor:"9,keyasint,omitempty"`

	// RaftAddress and APIAddress accompany register_node.
	RaftAddress string `cbor:"10,keyasint,omitempty"`
	APIAddress  string `cbor:"11,keyasint,omitempty"`
}

// NewRequestID mints a fresh command correlation ID.
func NewRequestID() string {
	return uuid.New().String()
}

// NewCreateSubject builds a command adding a subject node.
func NewCreateSubject(id string) *Command {
	return &Command{Kind: KindCreateSubject, RequestID: NewRequestID(), ID: id}
}

// NewDeleteSubject builds a command removing a subject and its edges.
func NewDeleteSubject(id string) *Command {
	return &Command{Kind: KindDeleteSubject, RequestID: NewRequestID(), ID: id}
}

// NewCreateObject builds a command adding an object node.
func NewCreateObject(id string) *Command {
	return &Command{Kind: KindCreateObject, RequestID: NewRequestID(), ID: id}
}

// NewDeleteObject builds a command removing an object, its edges, and
// its stored content.
func NewDeleteObject(id string) *Command {
	return &Command{Kind: KindDeleteObject, RequestID: NewRequestID(), ID: id}
}

// NewAssign builds an administrative seeding command adding right to
// the source→target edge unconditionally.
func NewAssign(source, target string, right rights.Right) *Command {
	return &Command{Kind: KindAssign, RequestID: NewRequestID(), Source: source, Target: target, Right: right}
}

// NewGrant builds a command extending one of granter's rights to
// grantee.
func NewGrant(granter, grantee, object string, right rights.Right) *Command {
	return &Command{Kind: KindGrant, RequestID: NewRequestID(), Actor: granter, Target: grantee, Object: object, Right: right}
}

// NewTake builds a command pulling one of source's rights to taker.
func NewTake(taker, source, object string, right rights.Right) *Command {
	return &Command{Kind: KindTake, RequestID: NewRequestID(), Actor: taker, Source: source, Object: object, Right: right}
}

// NewRevoke builds a command removing right from the holder→object
// edge on the revoker's ownership authority.
func NewRevoke(revoker, holder, object string, right rights.Right) *Command {
	return &Command{Kind: KindRevoke, RequestID: NewRequestID(), Actor: revoker, Target: holder, Object: object, Right: right}
}

// NewWriteContent builds a command replacing object's stored content,
// re-checked against subject's write right at apply time.
func NewWriteContent(subject, object string, contents []byte) *Command {
	return &Command{Kind: KindWriteContent, RequestID: NewRequestID(), Actor: subject, Object: object, Content: contents}
}

// NewRegisterNode builds a command recording a member's addresses in
// the replicated member book.
func NewRegisterNode(nodeID, raftAddress, apiAddress string) *Command {
	return &Command{Kind: KindRegisterNode, RequestID: NewRequestID(), ID: nodeID, RaftAddress: raftAddress, APIAddress: apiAddress}
}

// NewDeregisterNode builds a command dropping a member from the book.
func NewDeregisterNode(nodeID string) *Command {
	return &Command{Kind: KindDeregisterNode, RequestID: NewRequestID(), ID: nodeID}
}

// NewRestoreState builds a command replacing the graph and content
// index wholesale from an encoded snapshot payload. The member book is
// deliberately untouched: imported data must not clobber live cluster
// topology.
func NewRestoreState(encoded []byte) *Command {
	return &Command{Kind: KindRestoreState, RequestID: NewRequestID(), Content: encoded}
}

// Validate checks the per-kind shape: required fields present, right
// valid, no stray payload. It does not consult graph state; graph
// preconditions are authoritative at apply time only.
func (c *Command) Validate() error {
	if !c.Kind.Valid() {
		return &InvalidCommandError{Reason: fmt.Sprintf("unknown kind %d", uint8(c.Kind))}
	}
	if c.RequestID == "" {
		return &InvalidCommandError{Reason: "missing request ID"}
	}

	switch c.Kind {
	case KindCreateSubject, KindDeleteSubject, KindCreateObject, KindDeleteObject:
		if c.ID == "" {
			return c.missing("id")
		}
	case KindAssign:
		if c.Source == "" {
			return c.missing("source")
		}
		if c.Target == "" {
			return c.missing("target")
		}
		return c.validRight()
	case KindGrant:
		if c.Actor == "" {
			return c.missing("granter")
		}
		if c.Target == "" {
			return c.missing("grantee")
		}
		if c.Object == "" {
			return c.missing("object")
		}
		return c.validRight()
	case KindTake:
		if c.Actor == "" {
			return c.missing("taker")
		}
		if c.Source == "" {
			return c.missing("source")
		}
		if c.Object == "" {
			return c.missing("object")
		}
		return c.validRight()
	case KindRevoke:
		if c.Actor == "" {
			return c.missing("revoker")
		}
		if c.Target == "" {
			return c.missing("holder")
		}
		if c.Object == "" {
			return c.missing("object")
		}
		return c.validRight()
	case KindWriteContent:
		if c.Actor == "" {
			return c.missing("subject")
		}
		if c.Object == "" {
			return c.missing("object")
		}
	case KindRegisterNode:
		if c.ID == "" {
			return c.missing("node id")
		}
		if c.RaftAddress == "" {
			return c.missing("raft address")
		}
		if c.APIAddress == "" {
			return c.missing("api address")
		}
	case KindDeregisterNode:
		if c.ID == "" {
			return c.missing("node id")
		}
	case KindRestoreState:
		if len(c.Content) == 0 {
			return c.missing("snapshot payload")
		}
	}
	return nil
}

func (c *Command) missing(field string) error {
	return &InvalidCommandError{Reason: fmt.Sprintf("%s command is missing its %s", c.Kind, field)}
}

func (c *Command) validRight() error {
	if !c.Right.Valid() {
		return &InvalidCommandError{Reason: fmt.Sprintf("%s command carries undefined right 0x%02x", c.Kind, uint8(c.Right))}
	}
	return nil
}
