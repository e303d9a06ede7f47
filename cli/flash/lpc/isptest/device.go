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
// Package isptest provides an in-memory LPC ISP bootloader for tests.
package isptest

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/juju/errors"

	"github.com/mongoose-os/lpcisp/cli/flash/common"
	"github.com/mongoose-os/lpcisp/cli/flash/lpc"
	"github.com/mongoose-os/lpcisp/cli/flash/lpc/blockcodec"
)

const (
	DefaultRAMBase   = 0x10000000
	DefaultRAMSize   = 0x8000
	DefaultUnlockKey = 23130

	codeSuccess        = 0
	codeInvalidCommand = 1
	codeSrcAddrError   = 2
	codeDstAddrError   = 3
	codeSrcNotMapped   = 4
	codeDstNotMapped   = 5
	codeCountError     = 6
	codeInvalidSector  = 7
	codeNotPrepared    = 9
	codeParamError     = 12
	codeCmdLocked      = 15
	codeInvalidCode    = 16
)

type mode int

const (
	modeAutobaud mode = iota
	modeSync
	modeFreq
	modeCommand
	modeWriteData
	modeReadAck
)

// Device implements common.LineReaderWriter on top of simulated device memory.
type Device struct {
	PartID    uint32
	BootMajor int
	BootMinor int
	Serial    [4]uint32
	RAMBase   uint32
	RAM       []byte
	Flash     []byte
	Part      *lpc.Part
	// Makes the next N read chunks go out with a wrong checksum.
	CorruptReads int
	// Corrupts the first N deliveries of every read chunk.
	CorruptPerChunk int
	// Makes the device answer RESEND to the next N write chunks.
	ResendWrites int
	// Return code overrides, by command letter.
	Fail map[string]int
	// Lines sent in response to autobaud, default is "Synchronized".
	AutobaudReply string

	mu       sync.Mutex
	mode     mode
	echo     bool
	unlocked bool
	prepared map[int]bool
	out      []string
	log      []string
	booted   []string

	xferAddr  uint32
	xferLeft  int
	xferChunk []byte
	xferLines int
	xferTries int
}

func NewDevice(part *lpc.Part, partID uint32) *Device {
	d := &Device{
		PartID:    partID,
		BootMajor: 4,
		BootMinor: 1,
		RAMBase:   DefaultRAMBase,
		RAM:       make([]byte, DefaultRAMSize),
		Flash:     make([]byte, part.FlashSize),
		Part:      part,
		Fail:      map[string]int{},
		echo:      true,
		prepared:  map[int]bool{},
	}
	for i := range d.Flash {
		d.Flash[i] = 0xff
	}
	return d
}

// Commands returns the command lines received so far.
func (d *Device) Commands() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.log...)
}

// Booted returns the arguments of successful "G" commands.
func (d *Device) Booted() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.booted...)
}

func (d *Device) Unlocked() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.unlocked
}

func (d *Device) ReadLine() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.out) == 0 {
		return "", errors.Trace(common.ErrTimeout)
	}
	l := d.out[0]
	d.out = d.out[1:]
	return l, nil
}

func (d *Device) WriteRaw(s string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mode == modeAutobaud && s == "?" {
		reply := d.AutobaudReply
		if reply == "" {
			reply = "Synchronized"
		}
		d.send(reply)
		d.mode = modeSync
	}
	return nil
}

func (d *Device) WriteLine(s string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.echo && d.mode != modeWriteData {
		d.send(s)
	}
	switch d.mode {
	case modeSync:
		if s == "Synchronized" {
			d.send("OK")
			d.mode = modeFreq
		}
	case modeFreq:
		if _, err := strconv.Atoi(s); err == nil {
			d.send("OK")
			d.mode = modeCommand
		}
	case modeCommand:
		d.log = append(d.log, s)
		d.command(s)
	case modeWriteData:
		d.writeData(s)
	case modeReadAck:
		d.readAck(s)
	}
	return nil
}

func (d *Device) send(lines ...string) {
	d.out = append(d.out, lines...)
}

func (d *Device) sendCode(code int) {
	d.send(strconv.Itoa(code))
}

func parseArgs(fields []string, n int) ([]uint32, bool) {
	if len(fields) != n {
		return nil, false
	}
	res := make([]uint32, n)
	for i, f := range fields {
		v, err := strconv.ParseUint(f, 10, 32)
		if err != nil {
			return nil, false
		}
		res[i] = uint32(v)
	}
	return res, true
}

func (d *Device) ramRange(addr uint32, n int) bool {
	return addr >= d.RAMBase && int(addr-d.RAMBase)+n <= len(d.RAM)
}

func (d *Device) flashRange(addr uint32, n int) bool {
	return int(addr)+n <= len(d.Flash)
}

func (d *Device) sectorsPrepared(lo, hi int) bool {
	for i := lo; i <= hi; i++ {
		if !d.prepared[i] {
			return false
		}
	}
	return true
}

func (d *Device) command(s string) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		d.sendCode(codeInvalidCommand)
		return
	}
	cmd, args := fields[0], fields[1:]
	if code, ok := d.Fail[cmd]; ok {
		d.sendCode(code)
		return
	}
	switch cmd {
	case "A":
		a, ok := parseArgs(args, 1)
		if !ok || a[0] > 1 {
			d.sendCode(codeParamError)
			return
		}
		d.sendCode(codeSuccess)
		d.echo = a[0] == 1
	case "J":
		d.sendCode(codeSuccess)
		d.send(strconv.FormatUint(uint64(d.PartID), 10))
	case "K":
		d.sendCode(codeSuccess)
		d.send(strconv.Itoa(d.BootMinor), strconv.Itoa(d.BootMajor))
	case "N":
		d.sendCode(codeSuccess)
		for _, w := range d.Serial {
			d.send(strconv.FormatUint(uint64(w), 10))
		}
	case "U":
		a, ok := parseArgs(args, 1)
		if !ok || a[0] != DefaultUnlockKey {
			d.sendCode(codeInvalidCode)
			return
		}
		d.unlocked = true
		d.sendCode(codeSuccess)
	case "W":
		a, ok := parseArgs(args, 2)
		switch {
		case !ok:
			d.sendCode(codeParamError)
		case a[0]%4 != 0:
			d.sendCode(codeDstAddrError)
		case !d.ramRange(a[0], int(a[1])):
			d.sendCode(codeDstNotMapped)
		default:
			d.sendCode(codeSuccess)
			d.xferAddr, d.xferLeft = a[0], int(a[1])
			d.xferChunk, d.xferLines = nil, 0
			d.mode = modeWriteData
		}
	case "R":
		a, ok := parseArgs(args, 2)
		switch {
		case !ok:
			d.sendCode(codeParamError)
		case a[0]%4 != 0:
			d.sendCode(codeSrcAddrError)
		case !d.ramRange(a[0], int(a[1])) && !d.flashRange(a[0], int(a[1])):
			d.sendCode(codeSrcNotMapped)
		default:
			d.sendCode(codeSuccess)
			d.xferAddr, d.xferLeft = a[0], int(a[1])
			d.xferTries = 0
			if d.xferLeft > 0 {
				d.mode = modeReadAck
				d.sendReadChunk()
			}
		}
	case "P", "E":
		a, ok := parseArgs(args, 2)
		switch {
		case !ok:
			d.sendCode(codeParamError)
		case cmd == "E" && !d.unlocked:
			d.sendCode(codeCmdLocked)
		case a[0] > a[1] || int(a[1]) >= len(d.Part.Sectors):
			d.sendCode(codeInvalidSector)
		case cmd == "E" && !d.sectorsPrepared(int(a[0]), int(a[1])):
			d.sendCode(codeNotPrepared)
		default:
			for i := int(a[0]); i <= int(a[1]); i++ {
				if cmd == "P" {
					d.prepared[i] = true
					continue
				}
				sec := d.Part.Sectors[i]
				for j := sec.Start; j < sec.End; j++ {
					d.Flash[j] = 0xff
				}
				delete(d.prepared, i)
			}
			d.sendCode(codeSuccess)
		}
	case "C":
		a, ok := parseArgs(args, 3)
		if !ok {
			d.sendCode(codeParamError)
			return
		}
		dst, src, n := a[0], a[1], int(a[2])
		switch {
		case !d.unlocked:
			d.sendCode(codeCmdLocked)
		case n != 256 && n != 512 && n != 1024 && n != 4096:
			d.sendCode(codeCountError)
		case dst%256 != 0:
			d.sendCode(codeDstAddrError)
		case !d.flashRange(dst, n):
			d.sendCode(codeDstNotMapped)
		case src%4 != 0:
			d.sendCode(codeSrcAddrError)
		case !d.ramRange(src, n):
			d.sendCode(codeSrcNotMapped)
		default:
			lo, hi, err := d.Part.SectorsFor(dst, dst+uint32(n))
			if err != nil || !d.sectorsPrepared(lo, hi) {
				d.sendCode(codeNotPrepared)
				return
			}
			ram := d.RAM[src-d.RAMBase:]
			// Programming can only clear bits.
			for i := 0; i < n; i++ {
				d.Flash[int(dst)+i] &= ram[i]
			}
			for i := lo; i <= hi; i++ {
				delete(d.prepared, i)
			}
			d.sendCode(codeSuccess)
		}
	case "G":
		if len(args) != 2 || (args[1] != "T" && args[1] != "A") {
			d.sendCode(codeParamError)
			return
		}
		if !d.unlocked {
			d.sendCode(codeCmdLocked)
			return
		}
		d.booted = append(d.booted, strings.Join(args, " "))
		d.sendCode(codeSuccess)
	default:
		d.sendCode(codeInvalidCommand)
	}
}

func (d *Device) memory(addr uint32, n int) []byte {
	if d.ramRange(addr, n) {
		return d.RAM[addr-d.RAMBase : int(addr-d.RAMBase)+n]
	}
	return d.Flash[addr : int(addr)+n]
}

func (d *Device) sendReadChunk() {
	n := min(d.xferLeft, blockcodec.BlockBytes)
	chunk := d.memory(d.xferAddr, n)
	lines, _ := blockcodec.EncodeBlock(chunk)
	d.send(lines...)
	csum := blockcodec.Checksum(chunk)
	if d.CorruptReads > 0 {
		d.CorruptReads--
		csum++
	} else if d.xferTries < d.CorruptPerChunk {
		csum++
	}
	d.xferTries++
	d.send(strconv.FormatUint(csum, 10))
}

func (d *Device) readAck(s string) {
	switch s {
	case "OK":
		n := min(d.xferLeft, blockcodec.BlockBytes)
		d.xferAddr += uint32(n)
		d.xferLeft -= n
		d.xferTries = 0
		if d.xferLeft == 0 {
			d.mode = modeCommand
			return
		}
		d.sendReadChunk()
	case "RESEND":
		d.sendReadChunk()
	default:
		d.mode = modeCommand
		d.command(s)
	}
}

func (d *Device) writeData(s string) {
	want := min(d.xferLeft, blockcodec.BlockBytes)
	if len(d.xferChunk) < want && d.xferLines < blockcodec.LinesPerBlock {
		data, err := blockcodec.DecodeLine(s)
		if err != nil {
			panic(fmt.Sprintf("bad data line %q: %s", s, err))
		}
		d.xferChunk = append(d.xferChunk, data...)
		d.xferLines++
		return
	}
	csum, err := strconv.ParseUint(s, 10, 64)
	chunk := d.xferChunk
	d.xferChunk, d.xferLines = nil, 0
	switch {
	case d.ResendWrites > 0:
		d.ResendWrites--
		d.send("RESEND")
	case err != nil || csum != blockcodec.Checksum(chunk) || len(chunk) != want:
		d.send("RESEND")
	default:
		copy(d.RAM[d.xferAddr-d.RAMBase:], chunk)
		d.xferAddr += uint32(len(chunk))
		d.xferLeft -= len(chunk)
		d.send("OK")
		if d.xferLeft == 0 {
			d.mode = modeCommand
		}
	}
}
