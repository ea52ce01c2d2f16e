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

// Package wallet protects a wallet seed phrase with personal recovery questions.
//
// CreateNewWallet splits a freshly generated seed phrase into one Shamir share
// per question, encrypts each share under the lower-cased answer, and seals the
// resulting SafeResponse under the owner's identity. RestoreWallet reverses the
// process with whatever answers are supplied: shares whose answers are wrong are
// dropped, and the rest are combined.
//
// Unless an integrity tag is enabled, supplying fewer correct answers than the
// threshold is not reported as an error. The result is simply a different
// string, and callers that need certainty should check it (see ValidMnemonic).
package wallet

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"sync"

	"github.com/GoogleCloudPlatform/safewallet/constants"
	"github.com/GoogleCloudPlatform/safewallet/wallet/envelope"
	"github.com/GoogleCloudPlatform/safewallet/wallet/fragment"
	"github.com/GoogleCloudPlatform/safewallet/wallet/kdf"
	"github.com/GoogleCloudPlatform/safewallet/wallet/saferesponse"
	"github.com/GoogleCloudPlatform/safewallet/wallet/shares"
	glog "github.com/golang/glog"
)

// RecoveryQA is a recovery question and its answer. Answers are compared
// without regard to letter case.
type RecoveryQA struct {
	Question string `json:"question" yaml:"question"`
	Answer   string `json:"answer" yaml:"answer"`
}

// Wallet creates and restores protected seed phrases. The zero value is ready to
// use with default settings. A Wallet may be shared between goroutines.
type Wallet struct {
	// Envelope seals the SafeResponse. Nil selects an identity passphrase
	// envelope with default parameters.
	Envelope *envelope.Envelope
	// Cipher encrypts individual shares. Nil selects default parameters.
	// Fragments record their own parameters, so restore works regardless.
	Cipher *fragment.Cipher
	// Format is the SafeResponse encoding for new wallets. Restore detects it.
	Format saferesponse.Format
	// IntegrityTag appends a SHA-256 digest to the secret before splitting so
	// that restore reports shares.ErrIntegrityCheckFailed instead of returning
	// a wrong secret.
	IntegrityTag bool
	// Rand is the randomness for share polynomials and generated seed phrases.
	// Nil means crypto/rand.Reader.
	Rand io.Reader
	// NewSecret generates the secret to protect. Nil generates a 12 word BIP39
	// mnemonic from Rand.
	NewSecret func() (string, error)

	closer io.Closer

	mu     sync.Mutex
	secret string
}

func (w *Wallet) rand() io.Reader {
	if w.Rand == nil {
		return rand.Reader
	}
	return w.Rand
}

func (w *Wallet) cipher() *fragment.Cipher {
	if w.Cipher == nil {
		return fragment.New(kdf.Params{})
	}
	return w.Cipher
}

func (w *Wallet) newSecret() (string, error) {
	if w.NewSecret != nil {
		return w.NewSecret()
	}
	return NewMnemonic(w.rand())
}

// CreateNewWallet generates a secret and protects it with the given recovery
// questions, any threshold of which recover it. It returns the sealed blob, which
// is safe to store anywhere.
func (w *Wallet) CreateNewWallet(ctx context.Context, identity string, qas []RecoveryQA, threshold int) (string, error) {
	if err := validateCreate(identity, qas, threshold); err != nil {
		return "", err
	}

	secret, err := w.newSecret()
	if err != nil {
		return "", fmt.Errorf("error generating secret: %w", err)
	}
	if secret == "" {
		return "", fmt.Errorf("generated secret is empty")
	}

	sr := saferesponse.New()
	data := []byte(secret)
	if w.IntegrityTag {
		data = shares.AddIntegrityTag(data)
		sr.Integrity = shares.IntegritySHA256
	}
	split, err := shares.SplitShares(w.rand(), data, len(qas), threshold)
	clear(data)
	if err != nil {
		return "", err
	}

	c := w.cipher()
	for i, qa := range qas {
		encrypted, err := c.Encrypt(split[i], fragment.NormalizeAnswer(qa.Answer))
		clear(split[i])
		if err != nil {
			return "", fmt.Errorf("error encrypting share #%d: %w", i, err)
		}
		sr.Questions[i] = qa.Question
		sr.Shares[i] = encrypted
	}

	payload, err := saferesponse.Marshal(sr, w.Format)
	if err != nil {
		return "", fmt.Errorf("error encoding safe response: %w", err)
	}
	blob, err := w.Envelope.Seal(ctx, identity, payload)
	if err != nil {
		return "", fmt.Errorf("error sealing safe response: %w", err)
	}

	w.mu.Lock()
	w.secret = secret
	w.mu.Unlock()

	glog.Infof("Created safe response with %d shares, threshold %d", len(qas), threshold)
	return blob, nil
}

// RestoreWallet recovers the secret protected by blob. Answers are keyed "A<i>"
// by the zero-based index of their question; keys that are malformed or name no
// question are ignored.
//
// Fragments that do not decrypt under the supplied answer are dropped. Whatever
// remains is combined without checking it against the threshold, so too few
// correct answers yield a wrong secret rather than an error. If no fragment
// decrypts the result is empty. Blobs created with an integrity tag report
// shares.ErrIntegrityCheckFailed in both cases instead.
func (w *Wallet) RestoreWallet(ctx context.Context, identity, blob string, answers map[string]string) (string, error) {
	if blob == "" {
		return "", &ConfigurationError{Op: "restore", Reason: "encrypted safe response is required to recover the wallet"}
	}
	if identity == "" {
		return "", &ConfigurationError{Op: "restore", Reason: "identity is required"}
	}

	payload, err := w.Envelope.Open(ctx, identity, blob)
	if err != nil {
		return "", fmt.Errorf("error opening safe response: %w", err)
	}
	sr, err := saferesponse.Unmarshal(payload)
	if err != nil {
		return "", err
	}

	indices := answeredIndices(sr, answers)
	c := w.cipher()

	// As with unwrapping KEK shares, don't exit early if a fragment fails to
	// decrypt. Collect the ones that succeed and let the combiner handle them.
	var candidates [][]byte
	for _, i := range indices {
		glog.Infof("Attempting to decrypt share #%v", i)
		plain, err := c.Decrypt(sr.Shares[i], fragment.NormalizeAnswer(answers[saferesponse.AnswerKey(i)]))
		if err != nil {
			glog.Warningf("Error decrypting share #%v: %v", i, err)
			continue
		}
		s, err := shares.Decode(plain)
		if err != nil {
			glog.Warningf("Decrypted share #%v is malformed: %v", i, err)
			continue
		}
		if int(s.X) != i+1 {
			glog.Warningf("Decrypted share #%v has point %v, want %v", i, s.X, i+1)
			continue
		}

		glog.Infof("Successfully decrypted share #%v", i)
		candidates = append(candidates, plain)
	}

	if len(candidates) == 0 {
		glog.Warningf("No shares could be decrypted with the supplied answers")
		if sr.Integrity != "" {
			return "", shares.ErrIntegrityCheckFailed
		}
		return "", nil
	}

	secret, err := shares.CombineShares(candidates)
	if err != nil {
		return "", fmt.Errorf("error combining shares: %w", err)
	}

	switch sr.Integrity {
	case "":
	case shares.IntegritySHA256:
		if secret, err = shares.VerifyIntegrityTag(secret); err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("unsupported integrity tag %q", sr.Integrity)
	}
	return string(secret), nil
}

// Close releases clients opened by NewFromConfig.
func (w *Wallet) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}

// answeredIndices returns the indices answered in answers that exist in sr, in
// ascending order.
func answeredIndices(sr *saferesponse.SafeResponse, answers map[string]string) []int {
	for key := range answers {
		i, err := saferesponse.ParseAnswerKey(key)
		if err != nil {
			glog.Warningf("Ignoring answer: %v", err)
			continue
		}
		if _, ok := sr.Shares[i]; !ok {
			glog.Warningf("Ignoring answer %v: no such question", key)
		}
	}

	var indices []int
	for _, i := range sr.Indices() {
		if _, ok := answers[saferesponse.AnswerKey(i)]; ok {
			indices = append(indices, i)
		}
	}
	return indices
}

func validateCreate(identity string, qas []RecoveryQA, threshold int) error {
	reason := ""
	switch {
	case identity == "":
		reason = "identity is required"
	case len(qas) == 0:
		reason = "recovery questions must be a non-empty list of questions and answers"
	case threshold < 1:
		reason = fmt.Sprintf("threshold must be at least 1, got %d", threshold)
	case len(qas) <= threshold:
		reason = fmt.Sprintf("number of recovery questions (%d) must be larger than the threshold (%d)", len(qas), threshold)
	case len(qas) > constants.MaxShares:
		reason = fmt.Sprintf("at most %d recovery questions are supported, got %d", constants.MaxShares, len(qas))
	}
	if reason == "" {
		for i, qa := range qas {
			if qa.Answer == "" {
				reason = fmt.Sprintf("recovery question #%d has an empty answer", i)
				break
			}
		}
	}
	if reason != "" {
		return &ConfigurationError{Op: "create", Reason: reason}
	}
	return nil
}
