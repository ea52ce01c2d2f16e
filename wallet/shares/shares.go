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

// Package shares contains functions for splitting a wallet secret into byte-encoded
// shares and combining them again.
package shares

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"

	"github.com/GoogleCloudPlatform/safewallet/wallet/internal/secret_sharing/shamir"
)

// ShareOverhead is the number of bytes an encoded share adds to the secret length.
const ShareOverhead = 1

// IntegritySHA256 names the integrity tag scheme recorded alongside tagged secrets.
const IntegritySHA256 = "sha256"

// ErrIntegrityCheckFailed is returned when a recombined secret does not carry a valid
// integrity tag, which means too few correct shares went into it.
var ErrIntegrityCheckFailed = errors.New("recovered secret failed its integrity check")

// Encode returns the byte-point form of a share: the per-byte values followed by X.
// This is the layout hashicorp/vault's shamir package uses.
func Encode(share shamir.Share) []byte {
	out := make([]byte, 0, len(share.Value)+ShareOverhead)
	out = append(out, share.Value...)
	return append(out, share.X)
}

// Decode splits an encoded share into its values and X (last byte).
func Decode(b []byte) (shamir.Share, error) {
	if len(b) < 1+ShareOverhead {
		return shamir.Share{}, fmt.Errorf("encoded share has length %d, want at least %d", len(b), 1+ShareOverhead)
	}
	x := b[len(b)-1]
	if x == 0 {
		return shamir.Share{}, fmt.Errorf("encoded share has x = 0")
	}
	value := make([]byte, len(b)-ShareOverhead)
	copy(value, b)
	return shamir.Share{X: x, Value: value}, nil
}

// SplitShares splits secret into numShares encoded shares, any threshold of which
// combine back to it.
func SplitShares(rand io.Reader, secret []byte, numShares, threshold int) ([][]byte, error) {
	split, err := shamir.Split(rand, secret, numShares, threshold)
	if err != nil {
		return nil, fmt.Errorf("error splitting secret: %w", err)
	}
	encoded := make([][]byte, 0, len(split))
	for _, s := range split {
		encoded = append(encoded, Encode(s))
		clear(s.Value)
	}
	return encoded, nil
}

// CombineShares takes a list of encoded shares and reconstitutes the data. Note that this
// does not guarantee the shares are correct (SSS will succeed at "reconstructing" data
// from too few or faulty shares), so integrity checks are done separately.
func CombineShares(encoded [][]byte) ([]byte, error) {
	split := make([]shamir.Share, 0, len(encoded))
	for i, b := range encoded {
		s, err := Decode(b)
		if err != nil {
			return nil, fmt.Errorf("share %d: %w", i, err)
		}
		split = append(split, s)
	}
	return shamir.Combine(split)
}

// AddIntegrityTag returns secret followed by its SHA-256 digest.
func AddIntegrityTag(secret []byte) []byte {
	sum := sha256.Sum256(secret)
	out := make([]byte, 0, len(secret)+sha256.Size)
	out = append(out, secret...)
	return append(out, sum[:]...)
}

// VerifyIntegrityTag checks the digest appended by AddIntegrityTag and returns the
// secret without it.
func VerifyIntegrityTag(tagged []byte) ([]byte, error) {
	if len(tagged) <= sha256.Size {
		return nil, ErrIntegrityCheckFailed
	}
	secret := tagged[:len(tagged)-sha256.Size]
	sum := sha256.Sum256(secret)
	if subtle.ConstantTimeCompare(sum[:], tagged[len(secret):]) != 1 {
		return nil, ErrIntegrityCheckFailed
	}
	return secret, nil
}
