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

// Package shamir performs t-of-n [Shamir Secret Sharing] on arbitrary-size
// secrets over GF(2^8). Every byte of the secret is the constant term of its own
// random polynomial of degree t-1, and share i holds the evaluations of all of
// those polynomials at x = i.
//
// Reconstruction is Lagrange interpolation at x = 0 and is total: any non-empty
// set of well-formed shares produces a result. Fewer than t shares, or shares
// that do not come from the same split, produce a well-defined but meaningless
// byte sequence rather than an error. Callers that need to detect this must add
// their own integrity check.
//
// [Shamir Secret Sharing]: https://web.mit.edu/6.857/OldStuff/Fall03/ref/Shamir-HowToShareAsecrets.pdf
package shamir

import (
	"errors"
	"fmt"
	"io"

	"github.com/GoogleCloudPlatform/safewallet/constants"
	"github.com/GoogleCloudPlatform/safewallet/wallet/internal/secret_sharing/gf256"
)

var (
	// ErrNoShares is returned by Combine when it is given nothing to interpolate.
	ErrNoShares = errors.New("no shares provided")
	// ErrInconsistentShares is returned by Combine when share values differ in length.
	ErrInconsistentShares = errors.New("shares have different lengths")
)

// Share is one point per secret byte, all evaluated at the same X.
type Share struct {
	// X is the evaluation point, 1..N. Zero is where the secret lives.
	X byte
	// Value holds f_k(X) for every byte position k of the secret.
	Value []byte
}

// Split splits secret into numShares shares, any threshold of which reconstruct it.
//
// Coefficients are read from rand, which must be a cryptographically secure source
// in production (crypto/rand.Reader). Shares are returned in X order, X = 1..numShares.
func Split(rand io.Reader, secret []byte, numShares, threshold int) ([]Share, error) {
	if err := validateSplitInput(rand, secret, numShares, threshold); err != nil {
		return nil, err
	}

	shares := make([]Share, numShares)
	for i := range shares {
		shares[i].X = byte(i + 1)
		shares[i].Value = make([]byte, len(secret))
	}

	// f(x) = secret[k] + R_1 * x + ... + R_(t-1) * x^(t-1)
	coefficients := make([]gf256.Element, threshold)
	defer clear(coefficients)
	for k, b := range secret {
		coefficients[0] = gf256.Element(b)
		if threshold > 1 {
			random, err := gf256.RandomVector(rand, threshold-1)
			if err != nil {
				return nil, err
			}
			copy(coefficients[1:], random)
			clear(random)
		}
		// shares[0] = [ F1(1), F2(1), ..., FK(1) ]
		// shares[1] = [ F1(2), F2(2), ..., FK(2) ]
		for i := range shares {
			shares[i].Value[k] = byte(gf256.EvalPolynomial(coefficients, gf256.Element(shares[i].X)))
		}
	}
	return shares, nil
}

// Combine interpolates the given shares at x = 0 and returns the result.
//
// Every distinct X takes part in the interpolation. When two shares carry the same
// X the first one is kept and the rest are ignored, so duplicates never count as
// extra information.
func Combine(shares []Share) ([]byte, error) {
	distinct, err := distinctShares(shares)
	if err != nil {
		return nil, err
	}

	xs := make([]gf256.Element, len(distinct))
	for i, s := range distinct {
		xs[i] = gf256.Element(s.X)
	}
	// The coefficients only depend on X, so they are shared by every byte position.
	lagrange, err := lagrangeCoefficients(xs)
	if err != nil {
		return nil, err
	}

	secret := make([]byte, len(distinct[0].Value))
	for k := range secret {
		// ∑i y[i] * lagrange[i]
		sum := gf256.Zero
		for i, s := range distinct {
			sum = sum.Add(gf256.Element(s.Value[k]).Mul(lagrange[i]))
		}
		secret[k] = byte(sum)
	}
	return secret, nil
}

// lagrangeCoefficients returns ∏j≠i ( x[j] / ( x[j] - x[i] ) ) for every i, which are
// the Lagrange basis polynomials evaluated at zero.
func lagrangeCoefficients(x []gf256.Element) ([]gf256.Element, error) {
	out := make([]gf256.Element, len(x))
	for i := range x {
		out[i] = gf256.One
		for j := range x {
			if i == j {
				continue
			}
			term, err := x[j].Div(x[j].Sub(x[i]))
			if err != nil {
				return nil, fmt.Errorf("interpolating at x=%d: %w", x[i], err)
			}
			out[i] = out[i].Mul(term)
		}
	}
	return out, nil
}

func distinctShares(shares []Share) ([]Share, error) {
	if len(shares) == 0 {
		return nil, ErrNoShares
	}
	var (
		seen     [256]bool
		distinct = make([]Share, 0, len(shares))
		size     = len(shares[0].Value)
	)
	for _, s := range shares {
		if s.X == 0 {
			return nil, fmt.Errorf("invalid share: x must not be zero")
		}
		if len(s.Value) == 0 {
			return nil, fmt.Errorf("invalid share %d: empty value", s.X)
		}
		if len(s.Value) != size {
			return nil, fmt.Errorf("%w: share %d has %d bytes, want %d", ErrInconsistentShares, s.X, len(s.Value), size)
		}
		if seen[s.X] {
			continue
		}
		seen[s.X] = true
		distinct = append(distinct, s)
	}
	return distinct, nil
}

func validateSplitInput(rand io.Reader, secret []byte, numShares, threshold int) error {
	if rand == nil {
		return fmt.Errorf("no randomness source provided")
	}
	if len(secret) == 0 {
		return fmt.Errorf("secret must not be empty")
	}
	if threshold < 1 {
		return fmt.Errorf("threshold must be at least 1, got %d", threshold)
	}
	if numShares <= threshold {
		return fmt.Errorf("numShares (%d) must be larger than threshold (%d)", numShares, threshold)
	}
	if numShares > constants.MaxShares {
		return fmt.Errorf("numShares must be at most %d, got %d", constants.MaxShares, numShares)
	}
	return nil
}
