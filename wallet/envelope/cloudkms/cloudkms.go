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

// Package cloudkms implements an envelope key protector that wraps the data key
// of a sealed blob with a Cloud KMS symmetric key.
package cloudkms

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"strings"

	kms "cloud.google.com/go/kms/apiv1"
	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/GoogleCloudPlatform/safewallet/constants"
	"github.com/GoogleCloudPlatform/safewallet/wallet/envelope"
	glog "github.com/golang/glog"
	"github.com/google/tink/go/subtle/random"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
	wrapperspb "google.golang.org/protobuf/types/known/wrapperspb"
)

// dataKeyBytes is the size of the random key wrapped by Cloud KMS.
const dataKeyBytes = 32

// Client defines an interface compatible with Cloud KMS client.
type Client interface {
	GetCryptoKey(context.Context, *kmspb.GetCryptoKeyRequest, ...gax.CallOption) (*kmspb.CryptoKey, error)
	Encrypt(context.Context, *kmspb.EncryptRequest, ...gax.CallOption) (*kmspb.EncryptResponse, error)
	Decrypt(context.Context, *kmspb.DecryptRequest, ...gax.CallOption) (*kmspb.DecryptResponse, error)
	Close() error
}

func crc32c(data []byte) uint32 {
	t := crc32.MakeTable(crc32.Castagnoli)
	return crc32.Checksum(data, t)
}

// ParseKeyURI returns the Cloud KMS resource name of a "gcp-kms://" URI.
func ParseKeyURI(uri string) (string, error) {
	name, ok := strings.CutPrefix(uri, constants.GCPKeyPrefix)
	if !ok || !strings.HasPrefix(name, "projects/") {
		return "", fmt.Errorf("%q is not a Cloud KMS key URI of the form %sprojects/.../cryptoKeys/...", uri, constants.GCPKeyPrefix)
	}
	return name, nil
}

// CheckKey verifies that the named key can wrap data keys.
func CheckKey(ctx context.Context, client Client, keyName string) error {
	key, err := client.GetCryptoKey(ctx, &kmspb.GetCryptoKeyRequest{Name: keyName})
	if err != nil {
		return fmt.Errorf("error retrieving key %v: %v", keyName, err)
	}
	if key.GetPurpose() != kmspb.CryptoKey_ENCRYPT_DECRYPT {
		return fmt.Errorf("key %v has purpose %v, want %v", keyName, key.GetPurpose(), kmspb.CryptoKey_ENCRYPT_DECRYPT)
	}
	if state := key.GetPrimary().GetState(); state != kmspb.CryptoKeyVersion_ENABLED {
		return fmt.Errorf("primary version of key %v is %v", keyName, state)
	}
	return nil
}

// WrapOpts holds the arguments of WrapKey.
type WrapOpts struct {
	Key     []byte
	KeyName string
	// AAD is bound to the wrapped key and must be supplied again to unwrap it.
	AAD     []byte
	RPCOpts []gax.CallOption
}

// WrapKey encrypts a data key with a Cloud KMS key.
func WrapKey(ctx context.Context, client Client, opts WrapOpts) ([]byte, error) {
	if client == nil {
		return nil, fmt.Errorf("nil client specified")
	}
	req := &kmspb.EncryptRequest{
		Name:                              opts.KeyName,
		Plaintext:                         opts.Key,
		PlaintextCrc32C:                   wrapperspb.Int64(int64(crc32c(opts.Key))),
		AdditionalAuthenticatedData:       opts.AAD,
		AdditionalAuthenticatedDataCrc32C: wrapperspb.Int64(int64(crc32c(opts.AAD))),
	}

	result, err := client.Encrypt(ctx, req, opts.RPCOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt: %v", err)
	}

	if !result.GetVerifiedPlaintextCrc32C() || !result.GetVerifiedAdditionalAuthenticatedDataCrc32C() {
		return nil, fmt.Errorf("Encrypt: request corrupted in-transit")
	}
	if int64(crc32c(result.GetCiphertext())) != result.GetCiphertextCrc32C().GetValue() {
		return nil, fmt.Errorf("Encrypt: response corrupted in-transit")
	}
	return result.GetCiphertext(), nil
}

// UnwrapOpts holds the arguments of UnwrapKey.
type UnwrapOpts struct {
	Wrapped []byte
	KeyName string
	AAD     []byte
	RPCOpts []gax.CallOption
}

// UnwrapKey decrypts a data key wrapped by WrapKey.
func UnwrapKey(ctx context.Context, client Client, opts UnwrapOpts) ([]byte, error) {
	if client == nil {
		return nil, fmt.Errorf("nil client specified")
	}
	req := &kmspb.DecryptRequest{
		Name:                              opts.KeyName,
		Ciphertext:                        opts.Wrapped,
		CiphertextCrc32C:                  wrapperspb.Int64(int64(crc32c(opts.Wrapped))),
		AdditionalAuthenticatedData:       opts.AAD,
		AdditionalAuthenticatedDataCrc32C: wrapperspb.Int64(int64(crc32c(opts.AAD))),
	}

	result, err := client.Decrypt(ctx, req, opts.RPCOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt ciphertext: %v", err)
	}

	if int64(crc32c(result.GetPlaintext())) != result.GetPlaintextCrc32C().GetValue() {
		return nil, fmt.Errorf("Decrypt: response corrupted in-transit")
	}
	return result.GetPlaintext(), nil
}

// Protector is an envelope.KeyProtector that generates a random data key per
// blob and wraps it with a Cloud KMS key, binding the identity as KMS AAD.
type Protector struct {
	Client Client
	// KeyName is the resource name of the key used for new blobs. Blobs
	// record their own key name, so opening does not depend on it.
	KeyName string
	RPCOpts []gax.CallOption
}

func (p *Protector) Kind() envelope.Kind { return envelope.KindCloudKMS }

// NewKey implements envelope.KeyProtector.
func (p *Protector) NewKey(ctx context.Context, identity string) ([]byte, []byte, error) {
	if p.Client == nil || p.KeyName == "" {
		return nil, nil, fmt.Errorf("no Cloud KMS client or key configured")
	}
	if err := CheckKey(ctx, p.Client, p.KeyName); err != nil {
		return nil, nil, err
	}

	key := random.GetRandomBytes(dataKeyBytes)
	wrapped, err := WrapKey(ctx, p.Client, WrapOpts{
		Key:     key,
		KeyName: p.KeyName,
		AAD:     []byte(identity),
		RPCOpts: p.RPCOpts,
	})
	if err != nil {
		return nil, nil, err
	}
	return key, encodeMetadata(p.KeyName, wrapped), nil
}

// RecoverKey implements envelope.KeyProtector.
func (p *Protector) RecoverKey(ctx context.Context, identity string, metadata []byte) ([]byte, error) {
	keyName, wrapped, err := decodeMetadata(metadata)
	if err != nil {
		return nil, err
	}
	if p.KeyName != "" && keyName != p.KeyName {
		glog.Infof("Blob was sealed with %v rather than the configured %v", keyName, p.KeyName)
	}

	key, err := UnwrapKey(ctx, p.Client, UnwrapOpts{
		Wrapped: wrapped,
		KeyName: keyName,
		AAD:     []byte(identity),
		RPCOpts: p.RPCOpts,
	})
	if err != nil {
		return nil, err
	}
	if len(key) != dataKeyBytes {
		return nil, fmt.Errorf("unwrapped key has length %d, expected %d", len(key), dataKeyBytes)
	}
	return key, nil
}

// Metadata is the key name, prefixed by its uint16 length, then the wrapped key.
func encodeMetadata(keyName string, wrapped []byte) []byte {
	out := binary.LittleEndian.AppendUint16(nil, uint16(len(keyName)))
	out = append(out, keyName...)
	return append(out, wrapped...)
}

func decodeMetadata(metadata []byte) (string, []byte, error) {
	if len(metadata) < 2 {
		return "", nil, fmt.Errorf("%w: key metadata too short", envelope.ErrNotSafeResponse)
	}
	n := int(binary.LittleEndian.Uint16(metadata))
	rest := metadata[2:]
	if n == 0 || len(rest) <= n {
		return "", nil, fmt.Errorf("%w: key metadata is truncated", envelope.ErrNotSafeResponse)
	}
	return string(rest[:n]), rest[n:], nil
}

// ClientFactory creates Cloud KMS clients and caches them by credentials.
type ClientFactory struct {
	CredsMap map[string]Client
	Version  string

	newKMSClient func(context.Context, ...option.ClientOption) (*kms.KeyManagementClient, error)
}

// NewClientFactory returns a ClientFactory that labels requests with version.
func NewClientFactory(version string) *ClientFactory {
	return &ClientFactory{
		CredsMap:     make(map[string]Client),
		Version:      version,
		newKMSClient: kms.NewKeyManagementClient,
	}
}

func (m *ClientFactory) createClient(ctx context.Context, credentials string) (Client, error) {
	// Set user agent for Cloud KMS API calls.
	ua := constants.UserAgentPrefix
	if m.Version != "" {
		ua += m.Version
	} else {
		ua += "dev"
	}

	opts := []option.ClientOption{option.WithUserAgent(ua)}

	// If credentials were specified, include them in the options.
	if len(credentials) != 0 {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentials)))
	}

	newClient := m.newKMSClient
	if newClient == nil {
		newClient = kms.NewKeyManagementClient
	}
	return newClient(ctx, opts...)
}

// Client returns a client for the given JSON credentials, creating it on first
// use. Empty credentials mean Application Default Credentials.
func (m *ClientFactory) Client(ctx context.Context, credentials string) (Client, error) {
	if m.CredsMap == nil {
		m.CredsMap = make(map[string]Client)
	}
	client, ok := m.CredsMap[credentials]
	if !ok {
		var err error
		client, err = m.createClient(ctx, credentials)
		if err != nil {
			return nil, fmt.Errorf("error creating new KMS client: %v", err)
		}

		m.CredsMap[credentials] = client
	}

	return client, nil
}

// Close closes every cached client.
func (m *ClientFactory) Close() error {
	for _, client := range m.CredsMap {
		if err := client.Close(); err != nil {
			return err
		}
	}
	return nil
}
