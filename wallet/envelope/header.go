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

package envelope

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/google/uuid"
)

// Magic begins every sealed blob.
var Magic = [7]byte{'S', 'A', 'F', 'E', 'W', 'L', 'T'}

const (
	formatVersion  = 1
	maxMetadataLen = math.MaxUint16
)

// Header is the fixed-size prefix of a sealed blob.
type Header struct {
	Magic       [7]byte  // len(Magic) == 7
	Version     uint8    // 1 byte
	Kind        Kind     // 1 byte
	BlobID      [16]byte // random UUID
	MetadataLen uint16   // 2 bytes
}

func readHeader(input io.Reader) (*Header, error) {
	var header Header
	if err := binary.Read(input, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: failed to read header: %v", ErrNotSafeResponse, err)
	}

	if !bytes.Equal(header.Magic[:], Magic[:]) {
		return nil, fmt.Errorf("%w: unknown magic %q", ErrNotSafeResponse, header.Magic[:])
	}
	if header.Version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrNotSafeResponse, header.Version)
	}

	return &header, nil
}

func writeHeader(output io.Writer, kind Kind, id uuid.UUID, metadataLen int) error {
	header := Header{
		Magic:       Magic,
		Version:     formatVersion,
		Kind:        kind,
		BlobID:      id,
		MetadataLen: uint16(metadataLen),
	}

	return binary.Write(output, binary.LittleEndian, header)
}
