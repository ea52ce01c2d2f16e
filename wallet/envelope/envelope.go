// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package envelope protects a serialized SafeResponse at rest under a key bound
// to the wallet owner's identity.
//
// A sealed blob is the standard base64 encoding of
//
//	header || metadata || ciphertext
//
// where the header carries the format magic, the protector kind and a random
// blob ID, the metadata is whatever the KeyProtector needs to recover the data
// key, and the ciphertext is streaming AES-GCM-HKDF over the payload. The header,
// metadata and identity are all bound as associated data.
package envelope

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/google/tink/go/streamingaead/subtle"
	"github.com/google/uuid"
)

const (
	// Parameters for streaming AEAD, required by Tink's subtle API. Segments are
	// small since payloads are a few kilobytes at most.
	aeadHKDFAlg            = "SHA256"
	aeadKeyBytes           = 32
	aeadSegmentSize        = 4096
	aeadFirstSegmentOffset = 0
)

var (
	// ErrNotSafeResponse is returned by Open for input that is not a sealed blob.
	ErrNotSafeResponse = errors.New("not a sealed safe response")
	// ErrDecryptionFailed is returned by Open when the blob does not decrypt,
	// usually because the identity differs from the one used to seal it.
	ErrDecryptionFailed = errors.New("unable to decrypt safe response")
)

// Kind identifies the KeyProtector used to seal a blob.
type Kind uint8

const (
	// KindPassphrase derives the data key from the identity.
	KindPassphrase Kind = 1
	// KindCloudKMS wraps a random data key with Cloud KMS.
	KindCloudKMS Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindPassphrase:
		return "passphrase"
	case KindCloudKMS:
		return "cloud-kms"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// KeyProtector produces and recovers the data key of a sealed blob.
type KeyProtector interface {
	Kind() Kind
	// NewKey returns a fresh data key for identity along with the metadata
	// RecoverKey needs to reproduce it. The metadata is stored in the clear.
	NewKey(ctx context.Context, identity string) (key, metadata []byte, err error)
	// RecoverKey returns the data key described by metadata.
	RecoverKey(ctx context.Context, identity string, metadata []byte) ([]byte, error)
}

// Envelope seals and opens blobs. The zero value uses a Passphrase protector
// with default parameters.
type Envelope struct {
	Protector KeyProtector
}

func (e *Envelope) protector() KeyProtector {
	if e == nil || e.Protector == nil {
		return &Passphrase{}
	}
	return e.Protector
}

// Seal encrypts plaintext for identity and returns the printable blob.
func (e *Envelope) Seal(ctx context.Context, identity string, plaintext []byte) (string, error) {
	p := e.protector()
	key, metadata, err := p.NewKey(ctx, identity)
	if err != nil {
		return "", fmt.Errorf("error creating %v data key: %w", p.Kind(), err)
	}
	if len(metadata) > maxMetadataLen {
		return "", fmt.Errorf("%v metadata is %d bytes, limit is %d", p.Kind(), len(metadata), maxMetadataLen)
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("error generating blob ID: %w", err)
	}

	var buf bytes.Buffer
	if err := writeHeader(&buf, p.Kind(), id, len(metadata)); err != nil {
		return "", fmt.Errorf("error writing header: %w", err)
	}
	buf.Write(metadata)

	ciphertext, err := aeadEncrypt(key, plaintext, associatedData(buf.Bytes(), identity))
	if err != nil {
		return "", fmt.Errorf("error encrypting safe response: %w", err)
	}
	buf.Write(ciphertext)

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Open decrypts a blob produced by Seal with the same identity.
func (e *Envelope) Open(ctx context.Context, identity, blob string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSafeResponse, err)
	}

	r := bytes.NewReader(raw)
	header, err := readHeader(r)
	if err != nil {
		return nil, err
	}

	p := e.protector()
	if header.Kind != p.Kind() {
		return nil, fmt.Errorf("blob was sealed with a %v key, have a %v protector", header.Kind, p.Kind())
	}

	metadata := make([]byte, header.MetadataLen)
	if _, err := io.ReadFull(r, metadata); err != nil {
		return nil, fmt.Errorf("%w: truncated metadata: %v", ErrNotSafeResponse, err)
	}
	prefixLen := len(raw) - r.Len()

	key, err := p.RecoverKey(ctx, identity, metadata)
	if err != nil {
		return nil, fmt.Errorf("error recovering %v data key: %w", p.Kind(), err)
	}

	plaintext, err := aeadDecrypt(key, raw[prefixLen:], associatedData(raw[:prefixLen], identity))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

// associatedData binds the header, metadata and identity to the ciphertext.
func associatedData(prefix []byte, identity string) []byte {
	aad := make([]byte, 0, len(prefix)+len(identity))
	aad = append(aad, prefix...)
	return append(aad, identity...)
}

func aeadEncrypt(key, plaintext, aad []byte) ([]byte, error) {
	cipher, err := subtle.NewAESGCMHKDF(key, aeadHKDFAlg, aeadKeyBytes, aeadSegmentSize, aeadFirstSegmentOffset)
	if err != nil {
		return nil, fmt.Errorf("unable to create new cipher: %v", err)
	}

	var out bytes.Buffer
	w, err := cipher.NewEncryptingWriter(&out, aad)
	if err != nil {
		return nil, fmt.Errorf("unable to create an encrypt writer: %v", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("unable to write to the encrypt writer: %v", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("error closing writer: %v", err)
	}
	return out.Bytes(), nil
}

func aeadDecrypt(key, ciphertext, aad []byte) ([]byte, error) {
	cipher, err := subtle.NewAESGCMHKDF(key, aeadHKDFAlg, aeadKeyBytes, aeadSegmentSize, aeadFirstSegmentOffset)
	if err != nil {
		return nil, fmt.Errorf("unable to create new cipher: %v", err)
	}

	r, err := cipher.NewDecryptingReader(bytes.NewReader(ciphertext), aad)
	if err != nil {
		return nil, fmt.Errorf("unable to create decrypt reader: %v", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("error reading plaintext: %v", err)
	}
	return plaintext, nil
}
