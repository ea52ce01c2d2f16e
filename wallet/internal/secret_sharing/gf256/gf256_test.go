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

package gf256_test

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/GoogleCloudPlatform/safewallet/wallet/internal/secret_sharing/gf256"
	"github.com/google/go-cmp/cmp"
)

// slowMul is a textbook shift-and-add multiplication used as a reference.
func slowMul(a, b byte) byte {
	var p byte
	for b > 0 {
		if b&1 == 1 {
			p ^= a
		}
		hi := a & 0x80
		a <<= 1
		if hi != 0 {
			a ^= 0x1B
		}
		b >>= 1
	}
	return p
}

func TestAddAndSubAreXOR(t *testing.T) {
	for a := 0; a < 256; a++ {
		for _, b := range []int{0, 1, 0x53, 0xCA, 0xFF} {
			want := gf256.Element(a ^ b)
			if got := gf256.Element(a).Add(gf256.Element(b)); got != want {
				t.Fatalf("%d + %d = %d, want %d", a, b, got, want)
			}
			if got := gf256.Element(a).Sub(gf256.Element(b)); got != want {
				t.Fatalf("%d - %d = %d, want %d", a, b, got, want)
			}
		}
	}
}

func TestMul(t *testing.T) {
	for _, tc := range []struct {
		a, b, want byte
	}{
		// AES field examples: https://en.wikipedia.org/wiki/Finite_field_arithmetic#Rijndael's_(AES)_finite_field
		{a: 0x53, b: 0xCA, want: 0x01},
		{a: 0x02, b: 0x87, want: 0x15},
		{a: 0x03, b: 0x6E, want: 0xB2},
		{a: 0x57, b: 0x83, want: 0xC1},
		{a: 161, b: 56, want: 102},
		{a: 51, b: 82, want: 15},
		{a: 15, b: 30, want: 170},
		{a: 244, b: 118, want: 55},
		{a: 250, b: 221, want: 160},
		{a: 0, b: 221, want: 0},
		{a: 1, b: 221, want: 221},
	} {
		t.Run(fmt.Sprintf("%d * %d", tc.a, tc.b), func(t *testing.T) {
			if got := gf256.Element(tc.a).Mul(gf256.Element(tc.b)); byte(got) != tc.want {
				t.Errorf("%d * %d = %d, want %d", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestMulMatchesReferenceForAllPairs(t *testing.T) {
	for a := 0; a < 256; a++ {
		for b := 0; b < 256; b++ {
			got := gf256.Element(a).Mul(gf256.Element(b))
			if want := slowMul(byte(a), byte(b)); byte(got) != want {
				t.Fatalf("%d * %d = %d, want %d", a, b, got, want)
			}
		}
	}
}

func TestMulIsCommutativeAndDistributive(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		a := gf256.Element(r.Intn(256))
		b := gf256.Element(r.Intn(256))
		c := gf256.Element(r.Intn(256))
		if a.Mul(b) != b.Mul(a) {
			t.Fatalf("%d * %d != %d * %d", a, b, b, a)
		}
		if a.Mul(b.Add(c)) != a.Mul(b).Add(a.Mul(c)) {
			t.Fatalf("%d * (%d + %d) is not distributive", a, b, c)
		}
	}
}

func TestInverse(t *testing.T) {
	for _, tc := range []struct {
		a, want byte
	}{
		{a: 0x53, want: 0xCA},
		{a: 1, want: 1},
		{a: 29, want: 64},
		{a: 180, want: 17},
		{a: 249, want: 156},
		{a: 186, want: 118},
		{a: 209, want: 7},
		{a: 233, want: 78},
		{a: 242, want: 56},
	} {
		got, err := gf256.Element(tc.a).Inverse()
		if err != nil {
			t.Fatalf("Inverse(%d) err = %v, want nil", tc.a, err)
		}
		if byte(got) != tc.want {
			t.Errorf("Inverse(%d) = %d, want %d", tc.a, got, tc.want)
		}
	}
}

func TestInverseOfEveryNonZeroElement(t *testing.T) {
	for a := 1; a < 256; a++ {
		inv, err := gf256.Element(a).Inverse()
		if err != nil {
			t.Fatalf("Inverse(%d) err = %v, want nil", a, err)
		}
		if got := gf256.Element(a).Mul(inv); got != gf256.One {
			t.Fatalf("%d * Inverse(%d) = %d, want 1", a, a, got)
		}
	}
}

func TestInverseOfZeroFails(t *testing.T) {
	if _, err := gf256.Zero.Inverse(); !errors.Is(err, gf256.ErrZeroInverse) {
		t.Errorf("Inverse(0) err = %v, want %v", err, gf256.ErrZeroInverse)
	}
	if _, err := gf256.One.Div(gf256.Zero); !errors.Is(err, gf256.ErrZeroInverse) {
		t.Errorf("Div(1, 0) err = %v, want %v", err, gf256.ErrZeroInverse)
	}
}

func TestDivUndoesMul(t *testing.T) {
	for a := 0; a < 256; a++ {
		for b := 1; b < 256; b += 17 {
			q, err := gf256.Element(a).Mul(gf256.Element(b)).Div(gf256.Element(b))
			if err != nil {
				t.Fatal(err)
			}
			if q != gf256.Element(a) {
				t.Fatalf("(%d * %d) / %d = %d, want %d", a, b, b, q, a)
			}
		}
	}
}

func TestEvalPolynomial(t *testing.T) {
	// f(x) = 7 + 3x + x^2
	coefficients := []gf256.Element{7, 3, 1}
	for x := 0; x < 256; x++ {
		e := gf256.Element(x)
		want := gf256.Element(7).Add(gf256.Element(3).Mul(e)).Add(e.Mul(e))
		if got := gf256.EvalPolynomial(coefficients, e); got != want {
			t.Fatalf("f(%d) = %d, want %d", x, got, want)
		}
	}
	if got := gf256.EvalPolynomial(coefficients, gf256.Zero); got != 7 {
		t.Errorf("f(0) = %d, want constant term 7", got)
	}
	if got := gf256.EvalPolynomial(nil, 5); got != gf256.Zero {
		t.Errorf("EvalPolynomial(nil, 5) = %d, want 0", got)
	}
}

func TestRandomVectorReadsFromSource(t *testing.T) {
	src := bytes.NewReader([]byte{1, 2, 3})
	got, err := gf256.RandomVector(src, 3)
	if err != nil {
		t.Fatalf("RandomVector() err = %v, want nil", err)
	}
	if diff := cmp.Diff([]gf256.Element{1, 2, 3}, got); diff != "" {
		t.Errorf("RandomVector() mismatch (-want +got):\n%s", diff)
	}
	if _, err := gf256.RandomVector(src, 1); err == nil {
		t.Errorf("RandomVector() on exhausted source err = nil, want error")
	}
}
