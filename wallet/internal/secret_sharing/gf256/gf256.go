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

// Package gf256 implements arithmetic in the finite field GF(2^8), one field
// element per byte value.
//
// The field is built over the AES (Rijndael) irreducible polynomial
// x^8 + x^4 + x^3 + x + 1, so results match other GF(2^8) secret sharing
// implementations that use the same reduction.
package gf256

import (
	"errors"
	"fmt"
	"io"
)

// irreducible polynomial (x^8 + x^4 + x^3 + x + 1) = {0x01 0x1B}.
// Elements are bytes, so only the low 0x1B is needed for reduction.
const irreduciblePolynomial = 0x1B

// ErrZeroInverse is returned when the inverse of zero is requested.
var ErrZeroInverse = errors.New("inverse of zero is not defined")

// Element is an element of GF(2^8).
type Element byte

// Zero and One are the additive and multiplicative identities.
const (
	Zero Element = 0
	One  Element = 1
)

// Add returns e + a. Addition in characteristic 2 is XOR.
func (e Element) Add(a Element) Element {
	return e ^ a
}

// Sub returns e - a, which is the same operation as Add.
func (e Element) Sub(a Element) Element {
	return e ^ a
}

// Mul returns e * a reduced by the field polynomial.
func (e Element) Mul(a Element) Element {
	// No lookup tables and no data-dependent branches: every iteration builds
	// all-zero or all-one masks by negating single bits.
	x := byte(e)
	y := byte(a)

	var product uint8
	for i := 7; i >= 0; i-- {
		// reduce if the MSB of the running product is set
		mod := (-(product >> 7)) & irreduciblePolynomial
		// x[i] * y
		xiTimesY := -((x >> i) & 1) & y
		product = xiTimesY ^ mod ^ (product << 1)
	}
	return Element(product)
}

// Inverse returns the multiplicative inverse of e, computed as e^254.
func (e Element) Inverse() (Element, error) {
	if e == 0 {
		return 0, ErrZeroInverse
	}
	// addition chain from https://crypto.stackexchange.com/a/40140
	b := e.Mul(e) // e^2
	c := e.Mul(b) // e^3

	b = c.Mul(c)         // e^6
	b = b.Mul(b)         // e^12
	c = b.Mul(c)         // e^15
	b = b.Mul(b)         // e^30
	b = b.Mul(b)         // e^60
	b = b.Mul(c)         // e^63
	b = b.Mul(b)         // e^126
	b = e.Mul(b)         // e^127
	return b.Mul(b), nil // e^254
}

// Div returns e / a.
func (e Element) Div(a Element) (Element, error) {
	inv, err := a.Inverse()
	if err != nil {
		return 0, err
	}
	return e.Mul(inv), nil
}

// RandomVector reads n uniformly distributed elements from r in a single read.
func RandomVector(r io.Reader, n int) ([]Element, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("reading %d random field elements: %w", n, err)
	}
	out := make([]Element, n)
	for i, b := range buf {
		out[i] = Element(b)
	}
	clear(buf)
	return out, nil
}

// EvalPolynomial evaluates c[0] + c[1]*x + ... + c[n-1]*x^(n-1) using Horner's rule.
func EvalPolynomial(coefficients []Element, x Element) Element {
	if len(coefficients) == 0 {
		return Zero
	}
	sum := Zero
	for i := len(coefficients) - 1; i > 0; i-- {
		sum = sum.Add(coefficients[i]).Mul(x)
	}
	return sum.Add(coefficients[0])
}
