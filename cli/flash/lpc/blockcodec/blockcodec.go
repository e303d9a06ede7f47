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
// Package blockcodec implements the printable line encoding used by the LPC
// ISP bootloader to move binary data over a text link, and the additive
// checksum that guards each block of lines.
//
// Every 3 raw bytes become 4 characters, each carrying 6 bits offset by 32.
// The first character of a line carries the number of decoded bytes.
package blockcodec

import (
	"strings"

	"github.com/juju/errors"
)

const (
	// MaxLineBytes is the largest number of raw bytes carried by one line.
	MaxLineBytes = 45
	// LinesPerBlock is the number of lines covered by one checksum.
	LinesPerBlock = 20
	// BlockBytes is the largest number of raw bytes covered by one checksum.
	BlockBytes = MaxLineBytes * LinesPerBlock

	charOffset = 32
	maxChar    = charOffset + 64
)

func encodeChar(v byte) byte {
	return (v & 0x3f) + charOffset
}

func decodeChar(c byte) (byte, error) {
	if c < charOffset || c > maxChar {
		return 0, errors.Errorf("invalid character 0x%02x", c)
	}
	return (c - charOffset) & 0x3f, nil
}

// EncodeLine encodes up to MaxLineBytes bytes into a single line.
func EncodeLine(data []byte) (string, error) {
	if len(data) > MaxLineBytes {
		return "", errors.Errorf("line too long (%d > %d)", len(data), MaxLineBytes)
	}
	var sb strings.Builder
	sb.Grow(1 + (len(data)+2)/3*4)
	sb.WriteByte(encodeChar(byte(len(data))))
	for i := 0; i < len(data); i += 3 {
		var g [3]byte
		copy(g[:], data[i:])
		sb.WriteByte(encodeChar(g[0] >> 2))
		sb.WriteByte(encodeChar(g[0]<<4 | g[1]>>4))
		sb.WriteByte(encodeChar(g[1]<<2 | g[2]>>6))
		sb.WriteByte(encodeChar(g[2]))
	}
	return sb.String(), nil
}

// DecodedLen returns the number of bytes announced by the first character of the line.
func DecodedLen(line string) int {
	if len(line) == 0 {
		return 0
	}
	return int((line[0] - charOffset) & 0x3f)
}

// DecodeLine decodes a single line.
// Characters beyond those needed for the announced length are ignored and
// missing trailing characters are taken as zero bits.
func DecodeLine(line string) ([]byte, error) {
	if len(line) == 0 {
		return nil, errors.Errorf("empty line")
	}
	if _, err := decodeChar(line[0]); err != nil {
		return nil, errors.Annotatef(err, "length")
	}
	n := DecodedLen(line)
	if n > MaxLineBytes {
		return nil, errors.Errorf("line too long (%d > %d)", n, MaxLineBytes)
	}
	if nchars := (n*4 + 5) / 3; len(line) > nchars {
		line = line[:nchars]
	}
	body := line[1:]
	res := make([]byte, 0, n+2)
	for i := 0; len(res) < n; i += 4 {
		var v [4]byte
		for j := 0; j < 4; j++ {
			if i+j >= len(body) {
				break
			}
			c, err := decodeChar(body[i+j])
			if err != nil {
				return nil, errors.Annotatef(err, "offset %d", 1+i+j)
			}
			v[j] = c
		}
		res = append(res, v[0]<<2|v[1]>>4, v[1]<<4|v[2]>>2, v[2]<<6|v[3])
	}
	return res[:n], nil
}

// EncodeBlock splits data into encoded lines.
// It is an error to pass more than BlockBytes bytes.
func EncodeBlock(data []byte) ([]string, error) {
	if len(data) > BlockBytes {
		return nil, errors.Errorf("block too long (%d > %d)", len(data), BlockBytes)
	}
	var lines []string
	for i := 0; i < len(data); i += MaxLineBytes {
		end := i + MaxLineBytes
		if end > len(data) {
			end = len(data)
		}
		l, err := EncodeLine(data[i:end])
		if err != nil {
			return nil, errors.Trace(err)
		}
		lines = append(lines, l)
	}
	return lines, nil
}

// Checksum is the plain sum of byte values, as computed by the bootloader.
// It does not depend on the order of the bytes.
func Checksum(data []byte) uint64 {
	var sum uint64
	for _, b := range data {
		sum += uint64(b)
	}
	return sum
}
