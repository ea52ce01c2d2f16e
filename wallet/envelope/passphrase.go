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

package envelope

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/GoogleCloudPlatform/safewallet/wallet/kdf"
	"github.com/google/tink/go/subtle/random"
)

// Sealed blobs asking for more Argon2 work than this are rejected.
const (
	maxTime      = 64
	maxMemoryKiB = 4 << 20
)

// Passphrase derives the data key from the identity itself with Argon2id. It
// offers convenience rather than secrecy: anyone who knows the identity can open
// the blob, and the answers still guard the shares inside.
type Passphrase struct {
	// Params configures key derivation for new blobs. Zero means
	// kdf.DefaultParams. Opening always uses the parameters stored in the blob.
	Params kdf.Params
}

// passphraseMetadata is stored in the clear after the header.
type passphraseMetadata struct {
	Salt      [16]byte
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
}

func (p *Passphrase) Kind() Kind { return KindPassphrase }

func (p *Passphrase) NewKey(_ context.Context, identity string) ([]byte, []byte, error) {
	params := p.Params.OrDefault()
	md := passphraseMetadata{
		Time:      params.Time,
		MemoryKiB: params.MemoryKiB,
		Threads:   params.Threads,
	}
	copy(md.Salt[:], random.GetRandomBytes(kdf.SaltBytes))

	key, err := kdf.DeriveKey(identity, md.Salt[:], params)
	if err != nil {
		return nil, nil, err
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, md); err != nil {
		return nil, nil, fmt.Errorf("failed to encode key metadata: %v", err)
	}
	return key, buf.Bytes(), nil
}

func (p *Passphrase) RecoverKey(_ context.Context, identity string, metadata []byte) ([]byte, error) {
	var md passphraseMetadata
	if len(metadata) != binary.Size(md) {
		return nil, fmt.Errorf("%w: key metadata has length %d, expected %d", ErrNotSafeResponse, len(metadata), binary.Size(md))
	}
	if err := binary.Read(bytes.NewReader(metadata), binary.LittleEndian, &md); err != nil {
		return nil, fmt.Errorf("%w: failed to decode key metadata: %v", ErrNotSafeResponse, err)
	}
	if md.Time > maxTime || md.MemoryKiB > maxMemoryKiB {
		return nil, fmt.Errorf("%w: kdf parameters t=%d m=%d exceed limits", ErrNotSafeResponse, md.Time, md.MemoryKiB)
	}

	params := kdf.Params{Time: md.Time, MemoryKiB: md.MemoryKiB, Threads: md.Threads}
	return kdf.DeriveKey(identity, md.Salt[:], params)
}
