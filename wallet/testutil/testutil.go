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

// Package testutil provides a fake Cloud KMS client for tests.
package testutil

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"

	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/GoogleCloudPlatform/safewallet/constants"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	wrapperspb "google.golang.org/protobuf/types/known/wrapperspb"
)

var (
	// TestKEKName is a test key name for an enabled symmetric KEK.
	TestKEKName = "projects/test/locations/test/keyRings/test/cryptoKeys/test"
	// TestKEKURI is a test KEK URI corresponding to TestKEKName.
	TestKEKURI = constants.GCPKeyPrefix + TestKEKName

	// TestHSMKEKName is a test key name for an HSM-protected KEK.
	TestHSMKEKName = "projects/test/locations/test/keyRings/test/cryptoKeys/testHsm"
	// TestHSMKEKURI is a test KEK URI corresponding to TestHSMKEKName.
	TestHSMKEKURI = constants.GCPKeyPrefix + TestHSMKEKName

	// TestDisabledKEKName is a test key name whose primary version is disabled.
	TestDisabledKEKName = "projects/test/locations/test/keyRings/test/cryptoKeys/testDisabled"
	// TestSigningKEKName is a test key name for an asymmetric signing key.
	TestSigningKEKName = "projects/test/locations/test/keyRings/test/cryptoKeys/testSigning"
)

func crc32c(data []byte) uint32 {
	t := crc32.MakeTable(crc32.Castagnoli)
	return crc32.Checksum(data, t)
}

// CreateCryptoKey returns the key the fake reports for name.
func CreateCryptoKey(name string) *kmspb.CryptoKey {
	ck := &kmspb.CryptoKey{
		Name:    name,
		Purpose: kmspb.CryptoKey_ENCRYPT_DECRYPT,
		Primary: &kmspb.CryptoKeyVersion{
			Name:            name + "/cryptoKeyVersions/1",
			State:           kmspb.CryptoKeyVersion_ENABLED,
			ProtectionLevel: kmspb.ProtectionLevel_SOFTWARE,
		},
	}

	switch name {
	case TestHSMKEKName:
		ck.Primary.ProtectionLevel = kmspb.ProtectionLevel_HSM
	case TestDisabledKEKName:
		ck.Primary.State = kmspb.CryptoKeyVersion_DISABLED
	case TestSigningKEKName:
		ck.Purpose = kmspb.CryptoKey_ASYMMETRIC_SIGN
	}
	return ck
}

// FakeKeyManagementClient is a fake version of Cloud KMS.
//
// Unless overridden, it "wraps" plaintext by appending the CRC32C of the AAD and
// a byte naming the key, and refuses to unwrap when either does not match.
type FakeKeyManagementClient struct {
	GetCryptoKeyFunc func(context.Context, *kmspb.GetCryptoKeyRequest, ...gax.CallOption) (*kmspb.CryptoKey, error)
	EncryptFunc      func(context.Context, *kmspb.EncryptRequest, ...gax.CallOption) (*kmspb.EncryptResponse, error)
	DecryptFunc      func(context.Context, *kmspb.DecryptRequest, ...gax.CallOption) (*kmspb.DecryptResponse, error)

	// Closed is set by Close.
	Closed bool
}

func keyTag(name string) byte {
	if name == TestHSMKEKName {
		return 'H'
	}
	return 'S'
}

// GetCryptoKey returns CreateCryptoKey(req.Name) unless overridden.
func (f *FakeKeyManagementClient) GetCryptoKey(ctx context.Context, req *kmspb.GetCryptoKeyRequest, opts ...gax.CallOption) (*kmspb.CryptoKey, error) {
	if f.GetCryptoKeyFunc != nil {
		return f.GetCryptoKeyFunc(ctx, req, opts...)
	}

	return CreateCryptoKey(req.GetName()), nil
}

// FakeKMSWrap mimics wrapping unwrapped with the named key and AAD.
func FakeKMSWrap(unwrapped []byte, name string, aad []byte) []byte {
	wrapped := append([]byte{}, unwrapped...)
	wrapped = binary.BigEndian.AppendUint32(wrapped, crc32c(aad))
	return append(wrapped, keyTag(name))
}

// FakeKMSUnwrap reverses FakeKMSWrap, reporting false if the key or AAD differ.
func FakeKMSUnwrap(wrapped []byte, name string, aad []byte) ([]byte, bool) {
	suffix := binary.BigEndian.AppendUint32(nil, crc32c(aad))
	suffix = append(suffix, keyTag(name))
	if !bytes.HasSuffix(wrapped, suffix) {
		return nil, false
	}
	return wrapped[:len(wrapped)-len(suffix)], true
}

// ValidEncryptResponse returns a well-formed response to req.
func ValidEncryptResponse(req *kmspb.EncryptRequest) *kmspb.EncryptResponse {
	wrapped := FakeKMSWrap(req.GetPlaintext(), req.GetName(), req.GetAdditionalAuthenticatedData())

	return &kmspb.EncryptResponse{
		Name:                    req.GetName(),
		Ciphertext:              wrapped,
		CiphertextCrc32C:        wrapperspb.Int64(int64(crc32c(wrapped))),
		VerifiedPlaintextCrc32C: true,
		ProtectionLevel:         CreateCryptoKey(req.GetName()).GetPrimary().GetProtectionLevel(),

		VerifiedAdditionalAuthenticatedDataCrc32C: true,
	}
}

// Encrypt returns ValidEncryptResponse(req) unless overridden.
func (f *FakeKeyManagementClient) Encrypt(ctx context.Context, req *kmspb.EncryptRequest, opts ...gax.CallOption) (*kmspb.EncryptResponse, error) {
	if f.EncryptFunc != nil {
		return f.EncryptFunc(ctx, req, opts...)
	}

	return ValidEncryptResponse(req), nil
}

// Decrypt unwraps ciphertext produced by Encrypt unless overridden. Like Cloud
// KMS, it fails with InvalidArgument when the key or AAD do not match.
func (f *FakeKeyManagementClient) Decrypt(ctx context.Context, req *kmspb.DecryptRequest, opts ...gax.CallOption) (*kmspb.DecryptResponse, error) {
	if f.DecryptFunc != nil {
		return f.DecryptFunc(ctx, req, opts...)
	}

	plaintext, ok := FakeKMSUnwrap(req.GetCiphertext(), req.GetName(), req.GetAdditionalAuthenticatedData())
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "Decryption failed: the ciphertext is invalid.")
	}
	return &kmspb.DecryptResponse{
		Plaintext:       plaintext,
		PlaintextCrc32C: wrapperspb.Int64(int64(crc32c(plaintext))),
	}, nil
}

// Close records that the client was closed.
func (f *FakeKeyManagementClient) Close() error {
	f.Closed = true
	return nil
}
