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

package wallet

import (
	"fmt"
	"io"
	"strings"

	"github.com/GoogleCloudPlatform/safewallet/constants"
	"github.com/tyler-smith/go-bip39"
)

// NewMnemonic returns a 12 word English BIP39 mnemonic built from entropy read
// from r, or from the operating system if r is nil.
func NewMnemonic(r io.Reader) (string, error) {
	var (
		entropy []byte
		err     error
	)
	if r == nil {
		entropy, err = bip39.NewEntropy(constants.MnemonicEntropyBits)
	} else {
		entropy = make([]byte, constants.MnemonicEntropyBits/8)
		_, err = io.ReadFull(r, entropy)
	}
	if err != nil {
		return "", fmt.Errorf("unable to read entropy: %v", err)
	}
	defer clear(entropy)

	return bip39.NewMnemonic(entropy)
}

// ValidMnemonic reports whether phrase is a BIP39 mnemonic with a valid
// checksum. A restore with too few correct answers almost never yields one.
func ValidMnemonic(phrase string) bool {
	return bip39.IsMnemonicValid(strings.TrimSpace(phrase))
}
