package nodestore

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// encodeKey produces the canonical byte encoding of a NodeKey used both as
// the nodes-tree key and as an entry appended to a file's file_index
// entry. The three fields are length-prefixed so that no ambiguity arises
// from a field containing the separator.
func encodeKey(k NodeKey) []byte {
	var buf bytes.Buffer
	writeField(&buf, k.SymbolName)
	writeField(&buf, k.FilePath)
	writeField(&buf, k.ContentDigest)
	return buf.Bytes()
}

func writeField(buf *bytes.Buffer, s string) {
	fmt.Fprintf(buf, "%08x", len(s))
	buf.WriteString(s)
}

func decodeKey(b []byte) (NodeKey, error) {
	r := bytes.NewReader(b)
	symbolName, err := readField(r)
	if err != nil {
		return NodeKey{}, err
	}
	filePath, err := readField(r)
	if err != nil {
		return NodeKey{}, err
	}
	digest, err := readField(r)
	if err != nil {
		return NodeKey{}, err
	}
	return NodeKey{SymbolName: symbolName, FilePath: filePath, ContentDigest: digest}, nil
}

func readField(r *bytes.Reader) (string, error) {
	var lenHex [8]byte
	if _, err := r.Read(lenHex[:]); err != nil {
		return "", fmt.Errorf("nodestore: corrupt key encoding: %w", err)
	}
	var n int
	if _, err := fmt.Sscanf(string(lenHex[:]), "%08x", &n); err != nil {
		return "", fmt.Errorf("nodestore: corrupt key length: %w", err)
	}
	buf := make([]byte, n)
	if _, err := r.Read(buf); err != nil {
		return "", fmt.Errorf("nodestore: corrupt key field: %w", err)
	}
	return string(buf), nil
}

// encodeNode gob-encodes a PersistedNode, the idiomatic Go analogue of the
// compact binary layout.
func encodeNode(n PersistedNode) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeNode(b []byte) (PersistedNode, error) {
	var n PersistedNode
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&n); err != nil {
		return PersistedNode{}, fmt.Errorf("nodestore: corrupt node value: %w", err)
	}
	return n, nil
}

func encodeMetadata(m CacheMetadata) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeMetadata(b []byte) (CacheMetadata, error) {
	var m CacheMetadata
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&m); err != nil {
		return CacheMetadata{}, fmt.Errorf("nodestore: corrupt metadata: %w", err)
	}
	return m, nil
}

// encodeFileIndexEntry/decodeFileIndexEntry store the set of node keys
// belonging to one file as a gob-encoded slice of encoded key byte slices.
func encodeFileIndexEntry(keys [][]byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(keys); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeFileIndexEntry(b []byte) ([][]byte, error) {
	var keys [][]byte
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&keys); err != nil {
		return nil, fmt.Errorf("nodestore: corrupt file index entry: %w", err)
	}
	return keys, nil
}
