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
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/GoogleCloudPlatform/safewallet/constants"
	"github.com/GoogleCloudPlatform/safewallet/wallet/envelope"
	"github.com/GoogleCloudPlatform/safewallet/wallet/envelope/cloudkms"
	"github.com/GoogleCloudPlatform/safewallet/wallet/fragment"
	"github.com/GoogleCloudPlatform/safewallet/wallet/kdf"
	"github.com/GoogleCloudPlatform/safewallet/wallet/saferesponse"
	glog "github.com/golang/glog"
	"sigs.k8s.io/yaml"
)

// Config is the YAML configuration of a Wallet.
type Config struct {
	// Threshold is the default number of answers required by the CLI.
	Threshold int `json:"threshold,omitempty"`
	// Format is "json" (default) or "cbor".
	Format saferesponse.Format `json:"format,omitempty"`
	// IntegrityTag makes restore fail loudly when too few answers are correct.
	IntegrityTag bool `json:"integrityTag,omitempty"`
	// KDF configures Argon2id for both the shares and the passphrase envelope.
	KDF      kdf.Params     `json:"kdf,omitempty"`
	Envelope EnvelopeConfig `json:"envelope,omitempty"`
}

// EnvelopeConfig selects how the SafeResponse is sealed.
type EnvelopeConfig struct {
	// KMSKeyURI is a "gcp-kms://projects/..." key that wraps the envelope data
	// key. Empty means the key is derived from the identity.
	KMSKeyURI string `json:"kmsKeyUri,omitempty"`
	// Credentials is the path of a JSON credentials file for Cloud KMS. Empty
	// means Application Default Credentials.
	Credentials string `json:"credentials,omitempty"`
}

// DefaultConfigPath returns the location of the default configuration file.
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get config directory location: %v", err)
	}
	return filepath.Join(dir, constants.DefaultConfigName), nil
}

// LoadConfig reads the configuration at path. An empty path reads the default
// file, and a missing default file yields the default configuration.
func LoadConfig(path string) (*Config, error) {
	optional := false
	if path == "" {
		var err error
		if path, err = DefaultConfigPath(); err != nil {
			return nil, err
		}
		optional = true
	}

	yamlBytes, err := os.ReadFile(path)
	if optional && errors.Is(err, fs.ErrNotExist) {
		glog.Infof("No config file at %v, using defaults", path)
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.UnmarshalStrict(yamlBytes, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %v: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %v: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.Threshold < 0 {
		return fmt.Errorf("threshold must not be negative, got %d", c.Threshold)
	}
	switch c.Format {
	case "", saferesponse.JSON, saferesponse.CBOR:
	default:
		return fmt.Errorf("unknown format %q, want %q or %q", c.Format, saferesponse.JSON, saferesponse.CBOR)
	}
	if err := c.KDF.OrDefault().Validate(); err != nil {
		return err
	}
	if c.Envelope.KMSKeyURI != "" {
		if _, err := cloudkms.ParseKeyURI(c.Envelope.KMSKeyURI); err != nil {
			return err
		}
	} else if c.Envelope.Credentials != "" {
		return fmt.Errorf("envelope credentials given without a kmsKeyUri")
	}
	return nil
}

// NewFromConfig returns a Wallet configured by cfg. Callers should Close it.
func NewFromConfig(ctx context.Context, cfg *Config) (*Wallet, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	w := &Wallet{
		Cipher:       fragment.New(cfg.KDF),
		Format:       cfg.Format,
		IntegrityTag: cfg.IntegrityTag,
		Envelope:     &envelope.Envelope{Protector: &envelope.Passphrase{Params: cfg.KDF}},
	}
	if cfg.Envelope.KMSKeyURI == "" {
		return w, nil
	}

	keyName, err := cloudkms.ParseKeyURI(cfg.Envelope.KMSKeyURI)
	if err != nil {
		return nil, err
	}
	var credentials []byte
	if cfg.Envelope.Credentials != "" {
		if credentials, err = os.ReadFile(cfg.Envelope.Credentials); err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
	}

	factory := cloudkms.NewClientFactory(constants.Version)
	client, err := factory.Client(ctx, string(credentials))
	if err != nil {
		return nil, err
	}
	w.Envelope = &envelope.Envelope{Protector: &cloudkms.Protector{Client: client, KeyName: keyName}}
	w.closer = factory
	return w, nil
}
