// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/warden-foundation/warden/lib/codec"
	"github.com/warden-foundation/warden/lib/content"
	"github.com/warden-foundation/warden/lib/digest"
	"github.com/warden-foundation/warden/lib/rights"
	"github.com/warden-foundation/warden/lib/secret"
)

// Magic identifies a warden snapshot. The trailing digit is the
// format generation, not the format version byte.
const Magic = "WDNSNAP1"

// FormatVersion is the current snapshot format version.
const FormatVersion byte = 0x01

const (
	// headerSize is the fixed prefix: magic (8), version (1),
	// compression tag (1), flags (1), reserved (1), uncompressed
	// payload length (8), stored payload length (8).
	headerSize = 28

	checksumSize = 32

	// flagSealed marks an encrypted payload.
	flagSealed byte = 1 << 0

	// maxPayloadSize caps the lengths a header may claim, so a
	// corrupted header cannot drive a multi-gigabyte allocation.
	maxPayloadSize = 1 << 31
)

// ErrSealedNoKey is returned by Decode when the snapshot is sealed
// and no sealing key was provided.
var ErrSealedNoKey = errors.New("snapshot is sealed and no sealing key was provided")

// State is the replicated state captured in a snapshot: the rights
// graph, the object contents, and the log position the capture
// corresponds to.
type State struct {
	// Index is the log index of the last command reflected in the
	// captured state.
	Index uint64

	// Term is the election term of that command.
	Term uint64

	// Graph is the full rights graph dump.
	Graph rights.Dump

	// Content lists every object's stored bytes.
	Content []content.Record

	// Members lists the cluster member address book, sorted by node
	// ID. Replicated so every node can map the raft leader ID to an
	// API address for forwarding.
	Members []Member
}

// Member is one entry of the replicated member address book.
type Member struct {
	// ID is the raft server ID, which is the node's configured
	// node_id.
	ID string `json:"id"`

	// RaftAddress is the member's advertised raft transport address.
	RaftAddress string `json:"raft_address"`

	// APIAddress is the member's advertised HTTP API address.
	APIAddress string `json:"api_address"`
}

// Options controls how Encode stores the payload.
type Options struct {
	// Compression selects the payload codec. When the payload turns
	// out incompressible, Encode silently falls back to
	// CompressionNone; the header records what was actually used.
	Compression CompressionTag

	// SealKey, when non-nil, encrypts the payload at rest. Must be
	// the output of DeriveSealKey. Borrowed, not closed.
	SealKey *secret.Buffer
}

// Header is the parsed fixed prefix of a snapshot, plus the trailing
// checksum when read via Inspect.
type Header struct {
	Version          byte
	Compression      CompressionTag
	Sealed           bool
	UncompressedSize uint64
	StoredSize       uint64

	// Checksum is the BLAKE3 keyed digest of the stored payload.
	// Zero when only the prefix was read.
	Checksum digest.Hash
}

// payloadEnvelope is the CBOR shape of the snapshot payload. Nodes
// and edges use compact numeric kinds and right bitsets rather than
// the wire names of the JSON dump.
type payloadEnvelope struct {
	Index   uint64          `cbor:"1,keyasint"`
	Term    uint64          `cbor:"2,keyasint"`
	Nodes   []payloadNode   `cbor:"3,keyasint,omitempty"`
	Edges   []payloadEdge   `cbor:"4,keyasint,omitempty"`
	Objects []payloadObject `cbor:"5,keyasint,omitempty"`
	Members []payloadMember `cbor:"6,keyasint,omitempty"`
}

type payloadNode struct {
	ID   string `cbor:"1,keyasint"`
	Kind uint8  `cbor:"2,keyasint"`
}

type payloadEdge struct {
	Source string `cbor:"1,keyasint"`
	Target string `cbor:"2,keyasint"`
	Rights uint8  `cbor:"3,keyasint"`
}

type payloadObject struct {
	ID      string `cbor:"1,keyasint"`
	Content []byte `cbor:"2,keyasint"`
}

type payloadMember struct {
	ID          string `cbor:"1,keyasint"`
	RaftAddress string `cbor:"2,keyasint"`
	APIAddress  string `cbor:"3,keyasint"`
}

// Encode writes state to w in the snapshot wire format: fixed header,
// compressed (and optionally sealed) CBOR payload, checksum trailer.
func Encode(w io.Writer, state *State, opts Options) error {
	plaintext, err := encodePayload(state)
	if err != nil {
		return err
	}
	uncompressedSize := uint64(len(plaintext))

	tag := opts.Compression
	stored, err := compressPayload(plaintext, tag)
	if errors.Is(err, errIncompressible) {
		tag = CompressionNone
		stored = plaintext
	} else if err != nil {
		return fmt.Errorf("compressing payload: %w", err)
	}

	// The stored length is known before sealing because the seal
	// overhead is constant, which lets the final header serve as the
	// AAD for the seal itself.
	storedSize := uint64(len(stored))
	sealed := opts.SealKey != nil
	if sealed {
		storedSize += sealedOverhead
	}

	header := buildHeader(tag, sealed, uncompressedSize, storedSize)

	if sealed {
		stored, err = sealBlob(stored, opts.SealKey, header)
		if err != nil {
			return fmt.Errorf("sealing payload: %w", err)
		}
		if uint64(len(stored)) != storedSize {
			return fmt.Errorf("sealed payload is %d bytes, expected %d", len(stored), storedSize)
		}
	}

	checksum := digest.Snapshot(stored)

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if _, err := w.Write(stored); err != nil {
		return fmt.Errorf("writing payload: %w", err)
	}
	if _, err := w.Write(checksum[:]); err != nil {
		return fmt.Errorf("writing checksum: %w", err)
	}
	return nil
}

// Decode reads a snapshot from r and returns the captured state.
// sealKey may be nil for unsealed snapshots; sealed snapshots without
// a key fail with ErrSealedNoKey. The checksum is verified before
// any unsealing or decompression.
func Decode(r io.Reader, sealKey *secret.Buffer) (*State, error) {
	headerBytes, header, err := readHeader(r)
	if err != nil {
		return nil, err
	}

	stored := make([]byte, header.StoredSize)
	if _, err := io.ReadFull(r, stored); err != nil {
		return nil, fmt.Errorf("reading payload: %w", err)
	}

	var checksum [checksumSize]byte
	if _, err := io.ReadFull(r, checksum[:]); err != nil {
		return nil, fmt.Errorf("reading checksum: %w", err)
	}
	if computed := digest.Snapshot(stored); !bytes.Equal(computed[:], checksum[:]) {
		return nil, fmt.Errorf("checksum mismatch: stored %s, computed %s",
			digest.Hash(checksum).Short(), computed.Short())
	}

	if header.Sealed {
		if sealKey == nil {
			return nil, ErrSealedNoKey
		}
		stored, err = openBlob(stored, sealKey, headerBytes)
		if err != nil {
			return nil, err
		}
	}

	plaintext, err := decompressPayload(stored, header.Compression, int(header.UncompressedSize))
	if err != nil {
		return nil, err
	}

	return decodePayload(plaintext)
}

// ReadHeader parses the fixed prefix of a snapshot without reading
// the payload. The returned Header has a zero Checksum.
func ReadHeader(r io.Reader) (Header, error) {
	_, header, err := readHeader(r)
	return header, err
}

// Inspect reads a full snapshot, verifies the payload checksum, and
// returns the header with the checksum filled in. It does not unseal
// or decode the payload, so no key is needed.
func Inspect(r io.Reader) (Header, error) {
	_, header, err := readHeader(r)
	if err != nil {
		return Header{}, err
	}

	stored := make([]byte, header.StoredSize)
	if _, err := io.ReadFull(r, stored); err != nil {
		return Header{}, fmt.Errorf("reading payload: %w", err)
	}

	var checksum [checksumSize]byte
	if _, err := io.ReadFull(r, checksum[:]); err != nil {
		return Header{}, fmt.Errorf("reading checksum: %w", err)
	}
	computed := digest.Snapshot(stored)
	if !bytes.Equal(computed[:], checksum[:]) {
		return Header{}, fmt.Errorf("checksum mismatch: stored %s, computed %s",
			digest.Hash(checksum).Short(), computed.Short())
	}

	header.Checksum = computed
	return header, nil
}

func buildHeader(tag CompressionTag, sealed bool, uncompressedSize, storedSize uint64) []byte {
	header := make([]byte, headerSize)
	copy(header, Magic)
	header[8] = FormatVersion
	header[9] = byte(tag)
	if sealed {
		header[10] |= flagSealed
	}
	binary.BigEndian.PutUint64(header[12:], uncompressedSize)
	binary.BigEndian.PutUint64(header[20:], storedSize)
	return header
}

// readHeader reads and validates the fixed prefix, returning both the
// raw bytes (the seal AAD) and the parsed form.
func readHeader(r io.Reader) ([]byte, Header, error) {
	raw := make([]byte, headerSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, Header{}, fmt.Errorf("reading header: %w", err)
	}

	if string(raw[:8]) != Magic {
		return nil, Header{}, fmt.Errorf("bad magic %q (not a warden snapshot)", raw[:8])
	}
	if raw[8] != FormatVersion {
		return nil, Header{}, fmt.Errorf("snapshot format version %d is not supported (expected %d)",
			raw[8], FormatVersion)
	}
	tag := CompressionTag(raw[9])
	switch tag {
	case CompressionNone, CompressionLZ4, CompressionZstd:
	default:
		return nil, Header{}, fmt.Errorf("unknown compression tag 0x%02x", raw[9])
	}
	if raw[10]&^flagSealed != 0 {
		return nil, Header{}, fmt.Errorf("unknown header flags 0x%02x", raw[10])
	}
	if raw[11] != 0 {
		return nil, Header{}, fmt.Errorf("reserved header byte is 0x%02x, expected zero", raw[11])
	}

	header := Header{
		Version:          raw[8],
		Compression:      tag,
		Sealed:           raw[10]&flagSealed != 0,
		UncompressedSize: binary.BigEndian.Uint64(raw[12:20]),
		StoredSize:       binary.BigEndian.Uint64(raw[20:28]),
	}
	if header.UncompressedSize > maxPayloadSize || header.StoredSize > maxPayloadSize {
		return nil, Header{}, fmt.Errorf("header claims payload of %d/%d bytes, limit is %d",
			header.UncompressedSize, header.StoredSize, maxPayloadSize)
	}
	return raw, header, nil
}

func encodePayload(state *State) ([]byte, error) {
	envelope := payloadEnvelope{
		Index: state.Index,
		Term:  state.Term,
	}

	for _, node := range state.Graph.Nodes {
		kind, err := rights.ParseNodeKind(node.Kind)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", node.ID, err)
		}
		envelope.Nodes = append(envelope.Nodes, payloadNode{ID: node.ID, Kind: uint8(kind)})
	}
	for _, edge := range state.Graph.Edges {
		set, err := rights.ParseRights(edge.Rights)
		if err != nil {
			return nil, fmt.Errorf("edge %q->%q: %w", edge.Source, edge.Target, err)
		}
		envelope.Edges = append(envelope.Edges, payloadEdge{
			Source: edge.Source,
			Target: edge.Target,
			Rights: uint8(set),
		})
	}
	for _, record := range state.Content {
		envelope.Objects = append(envelope.Objects, payloadObject{ID: record.ID, Content: record.Content})
	}
	for _, member := range state.Members {
		envelope.Members = append(envelope.Members, payloadMember{
			ID:          member.ID,
			RaftAddress: member.RaftAddress,
			APIAddress:  member.APIAddress,
		})
	}

	encoded, err := codec.Marshal(envelope)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	return encoded, nil
}

func decodePayload(plaintext []byte) (*State, error) {
	var envelope payloadEnvelope
	if err := codec.Unmarshal(plaintext, &envelope); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}

	state := &State{
		Index: envelope.Index,
		Term:  envelope.Term,
	}

	for _, node := range envelope.Nodes {
		kind := rights.NodeKind(node.Kind)
		if !kind.Valid() {
			return nil, fmt.Errorf("node %q has unknown kind %d", node.ID, node.Kind)
		}
		state.Graph.Nodes = append(state.Graph.Nodes, rights.NodeRecord{ID: node.ID, Kind: kind.String()})
	}
	for _, edge := range envelope.Edges {
		set := rights.RightSet(edge.Rights)
		if !set.Valid() {
			return nil, fmt.Errorf("edge %q->%q has undefined right bits 0x%02x", edge.Source, edge.Target, edge.Rights)
		}
		if set.Empty() {
			return nil, fmt.Errorf("edge %q->%q has an empty right set", edge.Source, edge.Target)
		}
		state.Graph.Edges = append(state.Graph.Edges, rights.EdgeRecord{
			Source: edge.Source,
			Target: edge.Target,
			Rights: set.Strings(),
		})
	}
	for _, object := range envelope.Objects {
		state.Content = append(state.Content, content.Record{ID: object.ID, Content: object.Content})
	}
	for _, member := range envelope.Members {
		if member.ID == "" {
			return nil, fmt.Errorf("member with empty node ID")
		}
		state.Members = append(state.Members, Member{
			ID:          member.ID,
			RaftAddress: member.RaftAddress,
			APIAddress:  member.APIAddress,
		})
	}
	return state, nil
}
