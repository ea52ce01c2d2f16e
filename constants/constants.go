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

// Package constants contains constants shared between the wallet library and its tools.
package constants

// QuestionKeyPrefix prefixes the index of a question in a SafeResponse ("Q0", "Q1", ...).
const QuestionKeyPrefix = "Q"

// AnswerKeyPrefix prefixes the index of an encrypted share in a SafeResponse ("A0", "A1", ...).
// Callers restoring a wallet key their answers the same way.
const AnswerKeyPrefix = "A"

// MaxShares is the largest number of recovery questions a wallet can have. Share
// x-coordinates are 1..N in GF(2^8), and zero is reserved for the secret itself.
const MaxShares = 255

// MnemonicEntropyBits is the entropy of a newly generated BIP39 seed phrase (12 words).
const MnemonicEntropyBits = 128

// DefaultConfigName is the default name for the wallet configuration file.
const DefaultConfigName = "safewallet.yaml"

// Version is the current release, displayed via the `version` subcommand and sent
// as part of the Cloud KMS user agent.
const Version = "0.1.0"

// UserAgentPrefix is the product token used in the Cloud KMS user agent.
const UserAgentPrefix = "SafeWallet/"

// GCPKeyPrefix identifies GCP KMS key URIs, from https://developers.google.com/tink/get-key-uri
const GCPKeyPrefix = "gcp-kms://"
