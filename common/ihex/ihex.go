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
	"bufio"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/juju/errors"
)

const (
	recData               = 0x00
	recEOF                = 0x01
	recExtSegmentAddr     = 0x02
	recStartSegmentAddr   = 0x03
	recExtLinearAddr      = 0x04
	recStartLinearAddr    = 0x05
	minLineLen            = 11 // ":" + count + addr + type + checksum
	maxRecordPayload      = 0xff
	defaultMaxDataLen     = 16
	extendedAddrFieldSize = 2
	startAddrFieldSize    = 4
	addressSpaceSize      = 1 << 32
)

// Record is one of DataRec, StartAddrRec or StartLinearAddrRec.
type Record interface {
	isRecord()
}

// DataRec is a contiguous block of bytes destined for Addr.
type DataRec struct {
	Addr uint32
	Data []byte
}

// StartAddrRec is the 16-bit segment:offset entry point.
type StartAddrRec struct {
	Segment uint16
	Offset  uint16
}

// StartLinearAddrRec is the 32-bit linear entry point.
type StartLinearAddrRec struct {
	Entry uint32
}

func (DataRec) isRecord()            {}
func (StartAddrRec) isRecord()       {}
func (StartLinearAddrRec) isRecord() {}

func (r DataRec) String() string {
	return fmt.Sprintf("data %d @ 0x%08x", len(r.Data), r.Addr)
}

func (r StartAddrRec) String() string {
	return fmt.Sprintf("start %04x:%04x", r.Segment, r.Offset)
}

func (r StartLinearAddrRec) String() string {
	return fmt.Sprintf("start 0x%08x", r.Entry)
}

// Checksum computes the record checksum over the count, address, type and payload fields.
func Checksum(recType uint8, addr uint16, data []byte) uint8 {
	sum := uint(len(data)) + uint(addr>>8) + uint(addr&0xff) + uint(recType)
	for _, b := range data {
		sum += uint(b)
	}
	return uint8((0x100 - (sum & 0xff)) & 0xff)
}

// Decoder reads records from Intel HEX text, one per line.
type Decoder struct {
	// ByteOrder is used for the multi-byte payload fields of address records.
	ByteOrder binary.ByteOrder

	scanner *bufio.Scanner
	lineNo  int
	base    uint32
	eof     bool
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{
		ByteOrder: binary.LittleEndian,
		scanner:   bufio.NewScanner(r),
	}
}

// Next returns the next record. io.EOF is returned once the end-of-file record is seen.
func (d *Decoder) Next() (Record, error) {
	if d.eof {
		return nil, io.EOF
	}
	for d.scanner.Scan() {
		d.lineNo++
		l := trimLine(d.scanner.Text())
		if len(l) == 0 {
			continue
		}
		rec, err := d.parseLine(l)
		if err != nil {
			return nil, errors.Trace(err)
		}
		if d.eof {
			return nil, io.EOF
		}
		if rec != nil {
			return rec, nil
		}
	}
	if err := d.scanner.Err(); err != nil {
		return nil, errors.Annotatef(err, "line %d", d.lineNo)
	}
	return nil, &InvalidRecordError{Line: d.lineNo, Reason: "unexpected end of data"}
}

func (d *Decoder) parseLine(l string) (Record, error) {
	if l[0] != ':' {
		return nil, &InvalidRecordError{Line: d.lineNo, Reason: "invalid start of the line"}
	}
	if len(l) < minLineLen || len(l)%2 != 1 {
		return nil, &InvalidRecordError{Line: d.lineNo, Reason: fmt.Sprintf("invalid length (%d)", len(l))}
	}
	ld, err := hex.DecodeString(l[1:])
	if err != nil {
		return nil, &InvalidRecordError{Line: d.lineNo, Reason: "error decoding record body"}
	}
	count := int(ld[0])
	if len(ld) != 4+count+1 {
		return nil, &InvalidRecordError{
			Line:   d.lineNo,
			Reason: fmt.Sprintf("count %d does not match record length %d", count, len(ld)),
		}
	}
	addr := uint16(ld[1])<<8 | uint16(ld[2])
	recType := ld[3]
	data := ld[4 : 4+count]
	got := ld[len(ld)-1]
	if want := Checksum(recType, addr, data); want != got {
		return nil, &ChecksumError{Line: d.lineNo, Want: want, Got: got}
	}
	switch recType {
	case recData:
		payload := make([]byte, count)
		copy(payload, data)
		start := uint64(d.base) + uint64(addr)
		if start+uint64(count) > addressSpaceSize {
			return nil, &InvalidRecordError{Line: d.lineNo, Reason: "data runs past the end of the address space"}
		}
		return DataRec{Addr: uint32(start), Data: payload}, nil
	case recEOF:
		d.eof = true
		return nil, nil
	case recExtSegmentAddr:
		if count != extendedAddrFieldSize {
			return nil, &InvalidRecordError{Line: d.lineNo, Reason: "invalid extended segment address"}
		}
		d.base = uint32(d.ByteOrder.Uint16(data)) << 4
	case recStartSegmentAddr:
		if count != startAddrFieldSize || addr != 0 {
			return nil, &InvalidRecordError{Line: d.lineNo, Reason: "invalid start segment address"}
		}
		return StartAddrRec{
			Segment: d.ByteOrder.Uint16(data[0:2]),
			Offset:  d.ByteOrder.Uint16(data[2:4]),
		}, nil
	case recExtLinearAddr:
		if count != extendedAddrFieldSize || addr != 0 {
			return nil, &InvalidRecordError{Line: d.lineNo, Reason: "invalid extended linear address"}
		}
		d.base = uint32(d.ByteOrder.Uint16(data)) << 16
	case recStartLinearAddr:
		if count != startAddrFieldSize || addr != 0 {
			return nil, &InvalidRecordError{Line: d.lineNo, Reason: "invalid start linear address"}
		}
		return StartLinearAddrRec{Entry: d.ByteOrder.Uint32(data)}, nil
	default:
		return nil, &UnsupportedRecordTypeError{Line: d.lineNo, Type: recType}
	}
	return nil, nil
}

func trimLine(l string) string {
	for len(l) > 0 {
		switch l[len(l)-1] {
		case '\r', '\n', ' ', '\t':
			l = l[:len(l)-1]
			continue
		}
		break
	}
	return l
}

// Decode reads all the records up to and including the end-of-file record.
func Decode(r io.Reader) ([]Record, error) {
	return DecodeWithOrder(r, binary.LittleEndian)
}

func DecodeWithOrder(r io.Reader, bo binary.ByteOrder) ([]Record, error) {
	d := NewDecoder(r)
	d.ByteOrder = bo
	var recs []Record
	for {
		rec, err := d.Next()
		if err == io.EOF {
			return recs, nil
		}
		if err != nil {
			return nil, errors.Annotatef(err, "error parsing hex data")
		}
		recs = append(recs, rec)
	}
}
