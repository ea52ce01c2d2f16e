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

// Package saferesponse serializes the record that pairs recovery questions with
// encrypted shares.
//
// Two encodings are supported. JSON is the default:
//
//	{"answers":{"A0":"<base64>",...},"questions":{"Q0":"...",...}}
//
// CBOR uses the same keys with canonical (sorted, shortest-form) encoding and raw
// byte strings for the encrypted shares, which keeps blobs small enough for QR
// codes. Both encodings are deterministic, so Marshal(Unmarshal(b)) == b.
package saferesponse

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/GoogleCloudPlatform/safewallet/constants"
	"github.com/fxamacker/cbor/v2"
)

// Format selects a wire encoding.
type Format string

const (
	// JSON is a JSON object with string-keyed maps.
	JSON Format = "json"
	// CBOR is canonical CBOR.
	CBOR Format = "cbor"
)

// ErrMalformed is returned for input that does not parse as a SafeResponse.
var ErrMalformed = errors.New("malformed safe response")

// SafeResponse maps each recovery question index to its question text and to the
// share encrypted under that question's answer.
type SafeResponse struct {
	Questions map[int]string
	Shares    map[int][]byte
	// Integrity names the integrity tag scheme applied to the secret before
	// splitting, or is empty when there is none.
	Integrity string
}

// New returns an empty SafeResponse.
func New() *SafeResponse {
	return &SafeResponse{
		Questions: make(map[int]string),
		Shares:    make(map[int][]byte),
	}
}

// Indices returns the share indices in ascending order.
func (sr *SafeResponse) Indices() []int {
	out := make([]int, 0, len(sr.Shares))
	for i := range sr.Shares {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// QuestionKey returns the serialized key of question i ("Q<i>").
func QuestionKey(i int) string { return constants.QuestionKeyPrefix + strconv.Itoa(i) }

// AnswerKey returns the serialized key of encrypted share i ("A<i>").
// Answers supplied for restore use the same key.
func AnswerKey(i int) string { return constants.AnswerKeyPrefix + strconv.Itoa(i) }

// ParseAnswerKey returns the index named by an "A<i>" key.
func ParseAnswerKey(key string) (int, error) {
	return parseKey(constants.AnswerKeyPrefix, key)
}

func parseKey(prefix, key string) (int, error) {
	digits, ok := strings.CutPrefix(key, prefix)
	if !ok || digits == "" {
		return 0, fmt.Errorf("key %q does not have the form %s<index>", key, prefix)
	}
	// Reject "+1", "01" and friends so every index has exactly one spelling.
	if digits != "0" && (digits[0] < '1' || digits[0] > '9') {
		return 0, fmt.Errorf("key %q has a non-canonical index", key)
	}
	i, err := strconv.Atoi(digits)
	if err != nil || i < 0 || i >= constants.MaxShares {
		return 0, fmt.Errorf("key %q has an invalid index", key)
	}
	return i, nil
}

type jsonSafeResponse struct {
	Answers   map[string]string `json:"answers"`
	Integrity string            `json:"integrity,omitempty"`
	Questions map[string]string `json:"questions"`
}

type cborSafeResponse struct {
	Answers   map[string][]byte `cbor:"answers"`
	Integrity string            `cbor:"integrity,omitempty"`
	Questions map[string]string `cbor:"questions"`
}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	if cborEnc, err = cbor.CanonicalEncOptions().EncMode(); err != nil {
		panic(fmt.Sprintf("cbor encoder: %v", err))
	}
	if cborDec, err = (cbor.DecOptions{DupMapKey: cbor.DupMapKeyEnforcedAPF}).DecMode(); err != nil {
		panic(fmt.Sprintf("cbor decoder: %v", err))
	}
}

// Marshal encodes sr in the given format.
func Marshal(sr *SafeResponse, f Format) ([]byte, error) {
	if err := sr.validate(); err != nil {
		return nil, err
	}
	questions := make(map[string]string, len(sr.Questions))
	for i, q := range sr.Questions {
		questions[QuestionKey(i)] = q
	}

	switch f {
	case JSON, "":
		answers := make(map[string]string, len(sr.Shares))
		for i, s := range sr.Shares {
			answers[AnswerKey(i)] = base64.StdEncoding.EncodeToString(s)
		}
		return json.Marshal(jsonSafeResponse{Answers: answers, Integrity: sr.Integrity, Questions: questions})
	case CBOR:
		answers := make(map[string][]byte, len(sr.Shares))
		for i, s := range sr.Shares {
			answers[AnswerKey(i)] = s
		}
		return cborEnc.Marshal(cborSafeResponse{Answers: answers, Integrity: sr.Integrity, Questions: questions})
	default:
		return nil, fmt.Errorf("unknown safe response format %q", f)
	}
}

// Unmarshal decodes a SafeResponse, detecting the format from the first byte.
func Unmarshal(b []byte) (*SafeResponse, error) {
	f, err := DetectFormat(b)
	if err != nil {
		return nil, err
	}

	var (
		questions map[string]string
		answers   = make(map[string][]byte)
		integrity string
	)
	switch f {
	case JSON:
		var in jsonSafeResponse
		if err := json.Unmarshal(b, &in); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		for k, v := range in.Answers {
			s, err := base64.StdEncoding.DecodeString(v)
			if err != nil {
				return nil, fmt.Errorf("%w: answer %q: %v", ErrMalformed, k, err)
			}
			answers[k] = s
		}
		questions, integrity = in.Questions, in.Integrity
	case CBOR:
		var in cborSafeResponse
		if err := cborDec.Unmarshal(b, &in); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		answers, questions, integrity = in.Answers, in.Questions, in.Integrity
	}

	sr := New()
	sr.Integrity = integrity
	for k, q := range questions {
		i, err := parseKey(constants.QuestionKeyPrefix, k)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		sr.Questions[i] = q
	}
	for k, s := range answers {
		i, err := parseKey(constants.AnswerKeyPrefix, k)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		sr.Shares[i] = s
	}
	if err := sr.validate(); err != nil {
		return nil, err
	}
	return sr, nil
}

// DetectFormat reports which encoding b uses from its first byte. Marshal never
// emits leading whitespace, so none is accepted.
func DetectFormat(b []byte) (Format, error) {
	if len(b) == 0 {
		return "", fmt.Errorf("%w: empty input", ErrMalformed)
	}
	switch {
	case b[0] == '{':
		return JSON, nil
	case b[0]>>5 == 5: // CBOR major type 5 (map).
		return CBOR, nil
	default:
		return "", fmt.Errorf("%w: unrecognized encoding", ErrMalformed)
	}
}

// validate checks that questions and shares cover the same indices.
func (sr *SafeResponse) validate() error {
	if sr == nil {
		return fmt.Errorf("%w: nil", ErrMalformed)
	}
	if len(sr.Shares) == 0 {
		return fmt.Errorf("%w: no shares", ErrMalformed)
	}
	if len(sr.Questions) != len(sr.Shares) {
		return fmt.Errorf("%w: %d questions but %d shares", ErrMalformed, len(sr.Questions), len(sr.Shares))
	}
	for i, s := range sr.Shares {
		if _, ok := sr.Questions[i]; !ok {
			return fmt.Errorf("%w: share %d has no question", ErrMalformed, i)
		}
		if len(s) == 0 {
			return fmt.Errorf("%w: share %d is empty", ErrMalformed, i)
		}
	}
	return nil
}
