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
package blockcodec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncodeLine(t *testing.T) {
	cases := []struct {
		data []byte
		line string
	}{
		{data: []byte{}, line: " "},
		{data: []byte("Cat"), line: "#0V%T"},
		{data: []byte{0, 0, 0}, line: "#    "},
		{data: []byte{1}, line: "! 0  "},
		{data: []byte{0xff, 0xff, 0xff}, line: "#____"},
	}
	for _, c := range cases {
		l, err := EncodeLine(c.data)
		require.NoError(t, err)
		assert.Equalf(t, c.line, l, "%x", c.data)
	}

	_, err := EncodeLine(make([]byte, MaxLineBytes+1))
	assert.Error(t, err)
}

func TestDecodeLine(t *testing.T) {
	cases := []struct {
		line string
		data []byte
		fail bool
	}{
		{line: "#0V%T", data: []byte("Cat")},
		// Zero groups may be sent as backticks.
		{line: "#````", data: []byte{0, 0, 0}},
		// Trailing blanks stripped by the link.
		{line: "! 0", data: []byte{1}},
		{line: "!", data: []byte{0}},
		// Padding beyond the announced length is ignored.
		{line: "! 0  junk", data: []byte{1}},
		{line: "", fail: true},
		{line: "#0V\x01T", fail: true},
		{line: "\x10abc", fail: true},
		{line: "~", fail: true},
	}
	for _, c := range cases {
		data, err := DecodeLine(c.line)
		if c.fail {
			assert.Errorf(t, err, "%q", c.line)
			continue
		}
		require.NoErrorf(t, err, "%q", c.line)
		assert.Equalf(t, c.data, data, "%q", c.line)
	}
}

func TestDecodedLenFormula(t *testing.T) {
	for n := 0; n <= MaxLineBytes; n++ {
		l, err := EncodeLine(make([]byte, n))
		require.NoError(t, err)
		assert.Equal(t, n, DecodedLen(l))
		// The announced length never needs more characters than were sent.
		assert.LessOrEqual(t, (n*4+5)/3, len(l))
	}
}

func TestEncodeBlock(t *testing.T) {
	data := make([]byte, BlockBytes)
	for i := range data {
		data[i] = byte(i)
	}
	lines, err := EncodeBlock(data)
	require.NoError(t, err)
	require.Len(t, lines, LinesPerBlock)
	var got []byte
	for _, l := range lines {
		d, err := DecodeLine(l)
		require.NoError(t, err)
		got = append(got, d...)
	}
	assert.Equal(t, data, got)

	lines, err = EncodeBlock(data[:50])
	require.NoError(t, err)
	assert.Len(t, lines, 2)

	lines, err = EncodeBlock(nil)
	require.NoError(t, err)
	assert.Empty(t, lines)

	_, err = EncodeBlock(make([]byte, BlockBytes+1))
	assert.Error(t, err)
}

func TestChecksum(t *testing.T) {
	assert.Equal(t, uint64(0), Checksum(nil))
	assert.Equal(t, uint64(6), Checksum([]byte{1, 2, 3}))
	// No modulus.
	assert.Equal(t, uint64(BlockBytes*0xff), Checksum(bytes.Repeat([]byte{0xff}, BlockBytes)))
}

func TestPropertyLineRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOfN(rapid.Byte(), 0, MaxLineBytes).Draw(t, "data")
		l, err := EncodeLine(data)
		if err != nil {
			t.Fatalf("encode: %s", err)
		}
		got, err := DecodeLine(l)
		if err != nil {
			t.Fatalf("decode %q: %s", l, err)
		}
		if !bytes.Equal(got, data) {
			t.Fatalf("%q: got %x, want %x", l, got, data)
		}
		for _, c := range []byte(l) {
			if c < 32 || c > 95 {
				t.Fatalf("%q: non-printable character 0x%02x", l, c)
			}
		}
	})
}

func TestPropertyChecksumPermutationInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOfN(rapid.Byte(), 0, BlockBytes).Draw(t, "data")
		perm := rapid.Permutation(data).Draw(t, "perm")
		if Checksum(data) != Checksum(perm) {
			t.Fatalf("checksum changed under permutation")
		}
	})
}
