//
// Copyright (c) 2014-2019 Cesanta Software Limited
// All rights reserved
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
package ihex

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/juju/errors"
	"pgregory.net/rapid"
)

func formatLine(recType uint8, addr uint16, data []byte, csum uint8) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, ":%02X%04X%02X", len(data), addr, recType)
	for _, b := range data {
		fmt.Fprintf(&sb, "%02X", b)
	}
	fmt.Fprintf(&sb, "%02X\n", csum)
	return sb.String()
}

func TestPropertyChecksumAccepted(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		recType := rapid.Uint8().Draw(t, "type")
		addr := rapid.Uint16().Draw(t, "addr")
		data := rapid.SliceOfN(rapid.Byte(), 0, 255).Draw(t, "data")

		line := formatLine(recType, addr, data, Checksum(recType, addr, data))
		_, err := NewDecoder(strings.NewReader(line)).Next()
		if _, ok := errors.Cause(err).(*ChecksumError); ok {
			t.Fatalf("%s: checksum rejected: %s", line, err)
		}
	})
}

func TestPropertyBitFlipDetected(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		recType := rapid.Uint8().Draw(t, "type")
		addr := rapid.Uint16().Draw(t, "addr")
		data := rapid.SliceOfN(rapid.Byte(), 1, 255).Draw(t, "data")
		idx := rapid.IntRange(0, len(data)-1).Draw(t, "idx")
		bit := rapid.IntRange(0, 7).Draw(t, "bit")

		csum := Checksum(recType, addr, data)
		flipped := append([]byte(nil), data...)
		flipped[idx] ^= 1 << uint(bit)
		line := formatLine(recType, addr, flipped, csum)
		_, err := NewDecoder(strings.NewReader(line)).Next()
		if _, ok := errors.Cause(err).(*ChecksumError); !ok {
			t.Fatalf("%s: expected checksum error, got %v", line, err)
		}
	})
}

func TestPropertyRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 20).Draw(t, "n")
		var recs []Record
		for i := 0; i < n; i++ {
			switch rapid.IntRange(0, 9).Draw(t, "kind") {
			case 0:
				recs = append(recs, StartAddrRec{
					Segment: rapid.Uint16().Draw(t, "seg"),
					Offset:  rapid.Uint16().Draw(t, "off"),
				})
			case 1:
				recs = append(recs, StartLinearAddrRec{Entry: rapid.Uint32().Draw(t, "entry")})
			default:
				data := rapid.SliceOfN(rapid.Byte(), 1, 16).Draw(t, "data")
				// Keep the record inside one 64K segment so it maps to a single line.
				addr := rapid.Uint32().Draw(t, "addr")
				if lo := addr & 0xffff; int(lo)+len(data) > 0x10000 {
					addr -= uint32(len(data))
				}
				recs = append(recs, DataRec{Addr: addr, Data: data})
			}
		}
		var buf bytes.Buffer
		if err := Encode(&buf, recs); err != nil {
			t.Fatalf("encode: %s", err)
		}
		got, err := Decode(&buf)
		if err != nil {
			t.Fatalf("decode: %s", err)
		}
		if len(got) != len(recs) {
			t.Fatalf("got %d records, want %d", len(got), len(recs))
		}
		for i := range recs {
			if fmt.Sprintf("%#v", got[i]) != fmt.Sprintf("%#v", recs[i]) {
				t.Fatalf("%d: got %#v, want %#v", i, got[i], recs[i])
			}
		}
	})
}
