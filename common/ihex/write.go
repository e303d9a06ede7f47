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
	"fmt"
	"io"

	"github.com/juju/errors"
)

// Encoder writes records as Intel HEX text.
// Close must be called to emit the end-of-file record.
type Encoder struct {
	// MaxDataLen is the maximum payload of an emitted data record, 1 to 255.
	MaxDataLen int
	ByteOrder  binary.ByteOrder

	w      *bufio.Writer
	base   uint32
	closed bool
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{
		MaxDataLen: defaultMaxDataLen,
		ByteOrder:  binary.LittleEndian,
		w:          bufio.NewWriter(w),
	}
}

func (e *Encoder) emit(recType uint8, addr uint16, data []byte) error {
	if _, err := fmt.Fprintf(e.w, ":%02X%04X%02X", len(data), addr, recType); err != nil {
		return errors.Trace(err)
	}
	for _, b := range data {
		if _, err := fmt.Fprintf(e.w, "%02X", b); err != nil {
			return errors.Trace(err)
		}
	}
	_, err := fmt.Fprintf(e.w, "%02X\n", Checksum(recType, addr, data))
	return errors.Trace(err)
}

func (e *Encoder) Encode(rec Record) error {
	if e.closed {
		return errors.Errorf("encoder is closed")
	}
	switch r := rec.(type) {
	case DataRec:
		return errors.Trace(e.encodeData(r))
	case *DataRec:
		return errors.Trace(e.encodeData(*r))
	case StartAddrRec:
		data := make([]byte, 4)
		e.ByteOrder.PutUint16(data[0:2], r.Segment)
		e.ByteOrder.PutUint16(data[2:4], r.Offset)
		return e.emit(recStartSegmentAddr, 0, data)
	case StartLinearAddrRec:
		data := make([]byte, 4)
		e.ByteOrder.PutUint32(data, r.Entry)
		return e.emit(recStartLinearAddr, 0, data)
	default:
		return errors.Errorf("unknown record type %T", rec)
	}
}

func (e *Encoder) encodeData(r DataRec) error {
	maxLen := e.MaxDataLen
	if maxLen <= 0 || maxLen > maxRecordPayload {
		return errors.Errorf("invalid max data length %d", e.MaxDataLen)
	}
	if uint64(r.Addr)+uint64(len(r.Data)) > addressSpaceSize {
		return errors.Errorf("%d bytes @ 0x%08x run past the end of the address space", len(r.Data), r.Addr)
	}
	addr, data := r.Addr, r.Data
	for {
		if upper := addr & 0xffff0000; upper != e.base {
			ela := make([]byte, extendedAddrFieldSize)
			e.ByteOrder.PutUint16(ela, uint16(upper>>16))
			if err := e.emit(recExtLinearAddr, 0, ela); err != nil {
				return errors.Trace(err)
			}
			e.base = upper
		}
		n := len(data)
		if n > maxLen {
			n = maxLen
		}
		// Do not cross into the next 64K segment within one record.
		if toBoundary := 0x10000 - int(addr&0xffff); n > toBoundary {
			n = toBoundary
		}
		if err := e.emit(recData, uint16(addr&0xffff), data[:n]); err != nil {
			return errors.Trace(err)
		}
		data = data[n:]
		if len(data) == 0 {
			return nil
		}
		addr += uint32(n)
	}
}

// Close writes the end-of-file record and flushes the output.
func (e *Encoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	if err := e.emit(recEOF, 0, nil); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(e.w.Flush())
}

// Encode writes recs followed by the end-of-file record.
func Encode(w io.Writer, recs []Record) error {
	return EncodeWithOrder(w, recs, binary.LittleEndian)
}

func EncodeWithOrder(w io.Writer, recs []Record, bo binary.ByteOrder) error {
	e := NewEncoder(w)
	e.ByteOrder = bo
	for _, rec := range recs {
		if err := e.Encode(rec); err != nil {
			return errors.Annotatef(err, "%v", rec)
		}
	}
	return errors.Trace(e.Close())
}
