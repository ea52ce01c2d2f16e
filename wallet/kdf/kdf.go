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

// Package kdf derives symmetric keys from low-entropy text such as recovery
// answers and identities, using Argon2id.
package kdf

import (
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	// KeyBytes is the size of every derived key (AES-256).
	KeyBytes uint32 = 32
	// SaltBytes is the size of the random salt stored next to each ciphertext.
	SaltBytes uint32 = 16
)

// Params are the Argon2id cost parameters.
type Params struct {
	// Time is the number of passes over memory.
	Time uint32 `json:"time"`
	// MemoryKiB is the memory cost in KiB.
	MemoryKiB uint32 `json:"memoryKiB"`
	// Threads is the degree of parallelism.
	Threads uint8 `json:"threads"`
}

// DefaultParams: 1 pass, 64 MiB, 4 lanes.
var DefaultParams = Params{Time: 1, MemoryKiB: 64 * 1024, Threads: 4}

// Validate reports whether p can be passed to Argon2id.
func (p Params) Validate() error {
	if p.Time < 1 {
		return fmt.Errorf("kdf time must be at least 1, got %d", p.Time)
	}
	if p.Threads < 1 {
		return fmt.Errorf("kdf threads must be at least 1, got %d", p.Threads)
	}
	if p.MemoryKiB < 8*uint32(p.Threads) {
		return fmt.Errorf("kdf memory must be at least %d KiB for %d threads, got %d", 8*uint32(p.Threads), p.Threads, p.MemoryKiB)
	}
	return nil
}

// OrDefault returns p, or DefaultParams if p is the zero value.
func (p Params) OrDefault() Params {
	if p == (Params{}) {
		return DefaultParams
	}
	return p
}

// DeriveKey derives a KeyBytes-long key from secret and salt.
// The same inputs always produce the same key.
func DeriveKey(secret string, salt []byte, p Params) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(salt) != int(SaltBytes) {
		return nil, fmt.Errorf("salt has length %d, expected %d", len(salt), SaltBytes)
	}
	return argon2.IDKey([]byte(secret), salt, p.Time, p.MemoryKiB, p.Threads, KeyBytes), nil
}
