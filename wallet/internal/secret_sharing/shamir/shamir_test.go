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

package shamir_test

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	mrand "math/rand"
	"testing"

	"github.com/GoogleCloudPlatform/safewallet/wallet/internal/secret_sharing/shamir"
	"github.com/google/go-cmp/cmp"
)

const smallSecret = "abcdefghijklmnopqrstuvwxyz123456"

func getRandomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		t.Fatalf("Failed to read random bytes: %v", err)
	}
	return b
}

// subsets returns every k-element subset of shares, preserving order.
func subsets(shares []shamir.Share, k int) [][]shamir.Share {
	if k == 0 {
		return [][]shamir.Share{nil}
	}
	if len(shares) < k {
		return nil
	}
	var out [][]shamir.Share
	for _, rest := range subsets(shares[1:], k-1) {
		out = append(out, append([]shamir.Share{shares[0]}, rest...))
	}
	return append(out, subsets(shares[1:], k)...)
}

func TestSplitCombineWorks(t *testing.T) {
	for _, tc := range []struct {
		name      string
		secret    []byte
		numShares int
		threshold int
	}{
		{name: "small secret n-6 t-4", secret: []byte(smallSecret), numShares: 6, threshold: 4},
		{name: "single byte n-2 t-1", secret: []byte{0x42}, numShares: 2, threshold: 1},
		{name: "mnemonic n-5 t-3", secret: []byte("zebra unicorn abandon ability able about above absent absorb abstract absurd abuse"), numShares: 5, threshold: 3},
		{name: "large secret n-80 t-50", secret: getRandomBytes(t, 300), numShares: 80, threshold: 50},
		{name: "max shares n-255 t-254", secret: getRandomBytes(t, 4), numShares: 255, threshold: 254},
	} {
		t.Run(tc.name, func(t *testing.T) {
			shares, err := shamir.Split(rand.Reader, tc.secret, tc.numShares, tc.threshold)
			if err != nil {
				t.Fatalf("shamir.Split() err = %v, want nil", err)
			}
			if len(shares) != tc.numShares {
				t.Fatalf("shamir.Split() returned %d shares, want %d", len(shares), tc.numShares)
			}
			for i, s := range shares {
				if int(s.X) != i+1 {
					t.Errorf("shares[%d].X = %d, want %d", i, s.X, i+1)
				}
				if len(s.Value) != len(tc.secret) {
					t.Errorf("len(shares[%d].Value) = %d, want %d", i, len(s.Value), len(tc.secret))
				}
			}
			recon, err := shamir.Combine(shares[:tc.threshold])
			if err != nil {
				t.Fatal(err)
			}
			if got, want := recon, tc.secret; !bytes.Equal(got, want) {
				t.Errorf("got %v, want %v", hex.EncodeToString(got), hex.EncodeToString(want))
			}
			// Supplying every share is also correct.
			recon, err = shamir.Combine(shares)
			if err != nil {
				t.Fatal(err)
			}
			if got, want := recon, tc.secret; !bytes.Equal(got, want) {
				t.Errorf("all shares: got %v, want %v", hex.EncodeToString(got), hex.EncodeToString(want))
			}
		})
	}
}

func TestAnyThresholdSubsetRecoversSecret(t *testing.T) {
	for numShares := 2; numShares <= 7; numShares++ {
		for threshold := 1; threshold < numShares; threshold++ {
			t.Run(fmt.Sprintf("n-%d t-%d", numShares, threshold), func(t *testing.T) {
				secret := getRandomBytes(t, 32)
				shares, err := shamir.Split(rand.Reader, secret, numShares, threshold)
				if err != nil {
					t.Fatal(err)
				}
				for _, subset := range subsets(shares, threshold) {
					recon, err := shamir.Combine(subset)
					if err != nil {
						t.Fatal(err)
					}
					if !bytes.Equal(recon, secret) {
						t.Fatalf("Combine(%v) = %v, want %v", subset, hex.EncodeToString(recon), hex.EncodeToString(secret))
					}
				}
			})
		}
	}
}

func TestFewerThanThresholdSharesDoNotRecoverSecret(t *testing.T) {
	for numShares := 3; numShares <= 7; numShares++ {
		for threshold := 2; threshold < numShares; threshold++ {
			t.Run(fmt.Sprintf("n-%d t-%d", numShares, threshold), func(t *testing.T) {
				secret := getRandomBytes(t, 32)
				shares, err := shamir.Split(rand.Reader, secret, numShares, threshold)
				if err != nil {
					t.Fatal(err)
				}
				for _, subset := range subsets(shares, threshold-1) {
					// Combine is total: no error, just the wrong bytes.
					recon, err := shamir.Combine(subset)
					if err != nil {
						t.Fatalf("Combine() err = %v, want nil", err)
					}
					if bytes.Equal(recon, secret) {
						t.Fatalf("Combine() with %d of %d shares recovered the secret", len(subset), threshold)
					}
				}
			})
		}
	}
}

func TestShareOrderDoesNotMatter(t *testing.T) {
	secret := []byte(smallSecret)
	shares, err := shamir.Split(rand.Reader, secret, 6, 4)
	if err != nil {
		t.Fatal(err)
	}
	reordered := []shamir.Share{shares[5], shares[1], shares[3], shares[2]}
	recon, err := shamir.Combine(reordered)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(recon, secret) {
		t.Errorf("got %v, want %v", hex.EncodeToString(recon), hex.EncodeToString(secret))
	}
}

func TestCombineWithAlteredValueUnderThresholdFails(t *testing.T) {
	secret := getRandomBytes(t, 32)
	shares, err := shamir.Split(rand.Reader, secret, 3, 2)
	if err != nil {
		t.Fatal(err)
	}
	shares[0].Value = getRandomBytes(t, len(shares[0].Value))
	recon, err := shamir.Combine(shares[:2])
	if err != nil {
		t.Fatalf("shamir.Combine() err = %v, want nil", err)
	}
	if bytes.Equal(recon, secret) {
		t.Errorf("combining an altered share should not recover the secret")
	}
}

func TestCombineIgnoresDuplicateX(t *testing.T) {
	secret := []byte(smallSecret)
	shares, err := shamir.Split(rand.Reader, secret, 5, 3)
	if err != nil {
		t.Fatal(err)
	}

	// Two copies of share 1 and one of share 2 are only two distinct points.
	dup := shamir.Share{X: shares[0].X, Value: getRandomBytes(t, len(secret))}
	recon, err := shamir.Combine([]shamir.Share{shares[0], dup, shares[1]})
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(recon, secret) {
		t.Errorf("duplicate x values were counted as distinct shares")
	}

	// Adding a third distinct point after the duplicate recovers the secret.
	recon, err = shamir.Combine([]shamir.Share{shares[0], dup, shares[1], shares[4]})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(recon, secret) {
		t.Errorf("got %v, want %v", hex.EncodeToString(recon), hex.EncodeToString(secret))
	}
}

func TestCombineErrors(t *testing.T) {
	for _, tc := range []struct {
		name    string
		shares  []shamir.Share
		wantErr error
	}{
		{name: "no shares", wantErr: shamir.ErrNoShares},
		{
			name:    "length mismatch",
			shares:  []shamir.Share{{X: 1, Value: []byte{1, 2}}, {X: 2, Value: []byte{1}}},
			wantErr: shamir.ErrInconsistentShares,
		},
		{name: "zero x", shares: []shamir.Share{{X: 0, Value: []byte{1}}}},
		{name: "empty value", shares: []shamir.Share{{X: 1}}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := shamir.Combine(tc.shares)
			if err == nil {
				t.Fatalf("Combine() err = nil, want error")
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Errorf("Combine() err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestSplitRejectsInvalidInput(t *testing.T) {
	for _, tc := range []struct {
		name      string
		secret    []byte
		numShares int
		threshold int
	}{
		{name: "empty secret", numShares: 5, threshold: 3},
		{name: "zero threshold", secret: []byte("x"), numShares: 5, threshold: 0},
		{name: "threshold equals shares", secret: []byte("x"), numShares: 3, threshold: 3},
		{name: "threshold above shares", secret: []byte("x"), numShares: 3, threshold: 4},
		{name: "too many shares", secret: []byte("x"), numShares: 256, threshold: 3},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := shamir.Split(rand.Reader, tc.secret, tc.numShares, tc.threshold); err == nil {
				t.Errorf("Split(%q, %d, %d) err = nil, want error", tc.secret, tc.numShares, tc.threshold)
			}
		})
	}
	if _, err := shamir.Split(nil, []byte("x"), 3, 2); err == nil {
		t.Errorf("Split() with nil randomness source err = nil, want error")
	}
}

func TestSplitFailsWhenRandomnessRunsOut(t *testing.T) {
	if _, err := shamir.Split(bytes.NewReader([]byte{1}), []byte("ab"), 3, 2); err == nil {
		t.Errorf("Split() err = nil, want error from exhausted source")
	}
}

func TestSplitFromStaticCoefficients(t *testing.T) {
	for _, tc := range []struct {
		name      string
		random    []byte
		threshold int
		want      []shamir.Share
	}{
		{
			// f(x) = 0x42 + x
			name:      "t-2",
			random:    []byte{0x01},
			threshold: 2,
			want: []shamir.Share{
				{X: 1, Value: []byte{0x43}},
				{X: 2, Value: []byte{0x40}},
				{X: 3, Value: []byte{0x41}},
			},
		},
		{
			// f(x) = 0x42 + x + x^2, where 2*2 = 4 and 3*3 = 5 in GF(2^8)
			name:      "t-3",
			random:    []byte{0x01, 0x01},
			threshold: 3,
			want: []shamir.Share{
				{X: 1, Value: []byte{0x42}},
				{X: 2, Value: []byte{0x44}},
				{X: 3, Value: []byte{0x44}},
				{X: 4, Value: []byte{0x42 ^ 0x04 ^ 0x10}},
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := shamir.Split(bytes.NewReader(tc.random), []byte{0x42}, len(tc.want), tc.threshold)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Split() mismatch (-want +got):\n%s", diff)
			}
			recon, err := shamir.Combine(tc.want[1 : 1+tc.threshold])
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(recon, []byte{0x42}) {
				t.Errorf("Combine() = %x, want 42", recon)
			}
		})
	}
}

func TestSplitIsDeterministicForSeededSource(t *testing.T) {
	secret := []byte(smallSecret)
	split := func(seed int64) []shamir.Share {
		t.Helper()
		shares, err := shamir.Split(mrand.New(mrand.NewSource(seed)), secret, 5, 3)
		if err != nil {
			t.Fatal(err)
		}
		return shares
	}
	if diff := cmp.Diff(split(1), split(1)); diff != "" {
		t.Errorf("same seed produced different shares (-first +second):\n%s", diff)
	}
	if cmp.Equal(split(1), split(2)) {
		t.Errorf("different seeds produced identical shares")
	}
}
