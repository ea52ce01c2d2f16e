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

// Package fragment encrypts individual secret shares under keys derived from
// recovery answers.
//
// A fragment ciphertext is laid out as
//
//	header (26 bytes) || AES-256-GCM ciphertext (IV || ct || tag)
//
// where the header holds a version byte, the 16 byte salt and the Argon2id cost
// (time, memory, threads) used to derive the key from the answer. The header is
// bound as associated data, and decrypting with any other answer fails the GCM
// tag check. Since the cost travels with each fragment, changing the configured
// parameters does not affect fragments that already exist.
package fragment

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/GoogleCloudPlatform/safewallet/wallet/kdf"
	"github.com/google/tink/go/aead/subtle"
	"github.com/google/tink/go/subtle/random"
)

const formatVersion byte = 1

// Fragments asking for more Argon2 work than this are rejected.
const (
	maxTime      = 64
	maxMemoryKiB = 4 << 20
)

var (
	// ErrWrongAnswer is returned when a fragment does not decrypt under the given answer.
	ErrWrongAnswer = errors.New("fragment does not decrypt with the given answer")
	// ErrMalformed is returned when a fragment is too short, has an unknown version
	// or carries unusable key derivation parameters.
	ErrMalformed = errors.New("malformed fragment")
)

// header prefixes every fragment ciphertext.
type header struct {
	Version   uint8
	Salt      [16]byte
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
}

var headerBytes = binary.Size(header{})

func (h *header) params() kdf.Params {
	return kdf.Params{Time: h.Time, MemoryKiB: h.MemoryKiB, Threads: h.Threads}
}

func (h *header) marshal() []byte {
	var buf bytes.Buffer
	// Writes to a bytes.Buffer do not fail.
	binary.Write(&buf, binary.LittleEndian, h)
	return buf.Bytes()
}

// NormalizeAnswer maps an answer to the form used as key material. Only letter case
// is folded; spacing and punctuation are significant.
func NormalizeAnswer(answer string) string {
	return strings.ToLower(answer)
}

// Cipher is a password-based authenticated cipher for share fragments.
type Cipher struct {
	params kdf.Params
}

// New returns a Cipher that encrypts with the given Argon2id parameters. The zero
// Params select kdf.DefaultParams. Decryption always uses the parameters stored
// in the fragment.
func New(params kdf.Params) *Cipher {
	return &Cipher{params: params.OrDefault()}
}

// Encrypt encrypts plaintext under a key derived from answer. The answer is used
// exactly as given; callers normalize it first.
func (c *Cipher) Encrypt(plaintext []byte, answer string) ([]byte, error) {
	h := header{
		Version:   formatVersion,
		Time:      c.params.Time,
		MemoryKiB: c.params.MemoryKiB,
		Threads:   c.params.Threads,
	}
	copy(h.Salt[:], random.GetRandomBytes(kdf.SaltBytes))
	hb := h.marshal()

	aead, err := newAEAD(answer, &h)
	if err != nil {
		return nil, err
	}
	ct, err := aead.Encrypt(plaintext, hb)
	if err != nil {
		return nil, fmt.Errorf("unable to encrypt fragment: %v", err)
	}
	return append(hb, ct...), nil
}

// Decrypt reverses Encrypt. A wrong answer yields ErrWrongAnswer.
func (c *Cipher) Decrypt(ciphertext []byte, answer string) ([]byte, error) {
	if len(ciphertext) <= headerBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformed, len(ciphertext))
	}
	var h header
	if err := binary.Read(bytes.NewReader(ciphertext[:headerBytes]), binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if h.Version != formatVersion {
		return nil, fmt.Errorf("%w: unknown version %d", ErrMalformed, h.Version)
	}
	if h.Time > maxTime || h.MemoryKiB > maxMemoryKiB {
		return nil, fmt.Errorf("%w: kdf parameters t=%d m=%d exceed limits", ErrMalformed, h.Time, h.MemoryKiB)
	}

	aead, err := newAEAD(answer, &h)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	plaintext, err := aead.Decrypt(ciphertext[headerBytes:], ciphertext[:headerBytes])
	if err != nil {
		return nil, ErrWrongAnswer
	}
	return plaintext, nil
}

// newAEAD derives the fragment key. The AEAD keeps a reference to the key, so it
// must not be cleared while the AEAD is in use.
func newAEAD(answer string, h *header) (*subtle.AESGCM, error) {
	key, err := kdf.DeriveKey(answer, h.Salt[:], h.params())
	if err != nil {
		return nil, fmt.Errorf("unable to derive fragment key: %w", err)
	}
	aead, err := subtle.NewAESGCM(key)
	if err != nil {
		return nil, fmt.Errorf("unable to create new cipher: %v", err)
	}
	return aead, nil
}
