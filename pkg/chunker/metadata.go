// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package chunker

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// metadataVersion is the only record version written and understood
	metadataVersion = 1

	// maxMetadataSize bounds what is ever parsed as a record. Larger objects
	// are ordinary content and are never buffered.
	maxMetadataSize = 1023
)

// errNotMetadata means an object is ordinary content, not a record
var errNotMetadata = errors.New("not a chunker metadata record")

// Record describes a composite file. It is stored under the composite's
// own name once all chunks are written.
type Record struct {
	Size    int64
	NChunks int
	MD5     string
	SHA1    string
	Txn     string
}

// recordJSON is the simplejson wire shape. Pointers tell missing required
// fields apart from zero values.
type recordJSON struct {
	Version *int    `json:"ver"`
	Size    *int64  `json:"size"`
	NChunks *int    `json:"nchunks"`
	MD5     string  `json:"md5,omitempty"`
	SHA1    string  `json:"sha1,omitempty"`
	Txn     *string `json:"txn,omitempty"`
}

// MarshalRecord encodes r as simplejson
func MarshalRecord(r Record) ([]byte, error) {
	ver := metadataVersion
	out := recordJSON{
		Version: &ver,
		Size:    &r.Size,
		NChunks: &r.NChunks,
		MD5:     r.MD5,
		SHA1:    r.SHA1,
	}
	if r.Txn != "" {
		out.Txn = &r.Txn
	}
	return json.Marshal(out)
}

// UnmarshalRecord decodes a simplejson record. Anything that is not a well
// formed record yields an error wrapping errNotMetadata; callers serve
// such objects as plain content.
func UnmarshalRecord(data []byte) (Record, error) {
	if len(data) > maxMetadataSize {
		return Record{}, fmt.Errorf("%w: %d bytes", errNotMetadata, len(data))
	}

	var in recordJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return Record{}, fmt.Errorf("%w: %v", errNotMetadata, err)
	}
	switch {
	case in.Version == nil || in.Size == nil || in.NChunks == nil:
		return Record{}, fmt.Errorf("%w: missing required field", errNotMetadata)
	case *in.Version < 1:
		return Record{}, fmt.Errorf("%w: version %d", errNotMetadata, *in.Version)
	case *in.Version > metadataVersion:
		return Record{}, fmt.Errorf("metadata version %d is newer than supported %d", *in.Version, metadataVersion)
	case *in.Size < 0 || *in.NChunks < 2:
		return Record{}, fmt.Errorf("%w: size %d, nchunks %d", errNotMetadata, *in.Size, *in.NChunks)
	}
	if !validDigest(in.MD5, 32) || !validDigest(in.SHA1, 40) {
		return Record{}, fmt.Errorf("%w: malformed digest", errNotMetadata)
	}

	r := Record{Size: *in.Size, NChunks: *in.NChunks, MD5: in.MD5, SHA1: in.SHA1}
	if in.Txn != nil {
		r.Txn = *in.Txn
	}
	return r, nil
}

func validDigest(s string, n int) bool {
	if s == "" {
		return true
	}
	if len(s) != n {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
