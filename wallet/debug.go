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

//go:build walletdebug

package wallet

// SeedPhrases returns the secret generated by the most recent successful
// CreateNewWallet call on w, or "" if there was none.
//
// This exposes the unprotected secret and exists for debugging only. It is
// compiled in only with the walletdebug build tag and must never be enabled in
// production builds.
func (w *Wallet) SeedPhrases() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.secret
}
