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
package isp

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/lpcisp/cli/flash/common"
	"github.com/mongoose-os/lpcisp/cli/flash/lpc/blockcodec"
)

const (
	DefaultAttempts   = 5
	DefaultUnlockCode = 23130

	syncWord   = "Synchronized"
	respOK     = "OK"
	respResend = "RESEND"

	serialNumberWords = 4
)

type State int

const (
	Unsynchronized State = iota
	Synchronized
	EchoDisabled
	Unlocked
)

func (st State) String() string {
	switch st {
	case Unsynchronized:
		return "unsynchronized"
	case Synchronized:
		return "synchronized"
	case EchoDisabled:
		return "echo disabled"
	case Unlocked:
		return "unlocked"
	}
	return fmt.Sprintf("state(%d)", int(st))
}

type SessionOpts struct {
	// Max number of times a single chunk is re-sent on checksum mismatch.
	Attempts int
}

// Session is a conversation with the ISP bootloader.
// It is not safe for concurrent use.
type Session struct {
	lc       common.LineReaderWriter
	state    State
	attempts int
}

func NewSession(lc common.LineReaderWriter, opts *SessionOpts) *Session {
	s := &Session{lc: lc, attempts: DefaultAttempts}
	if opts != nil && opts.Attempts > 0 {
		s.attempts = opts.Attempts
	}
	return s
}

func (s *Session) State() State {
	return s.state
}

// RequireState fails with IllegalStateError if the session has not reached need yet.
func (s *Session) RequireState(op string, need State) error {
	if s.state < need {
		return errors.Trace(&IllegalStateError{Op: op, Have: s.state, Need: need})
	}
	return nil
}

func (s *Session) requireExactState(op string, need State) error {
	if s.state != need {
		return errors.Trace(&IllegalStateError{Op: op, Have: s.state, Need: need})
	}
	return nil
}

func (s *Session) Handshake() error {
	if err := s.requireExactState("handshake", Unsynchronized); err != nil {
		return errors.Trace(err)
	}
	glog.V(1).Infof("Synchronizing...")
	if err := s.lc.WriteRaw("?"); err != nil {
		return errors.Trace(err)
	}
	l, err := s.lc.ReadLine()
	if err != nil {
		return errors.Annotatef(err, "no response to autobaud")
	}
	if !strings.HasSuffix(l, syncWord) {
		return errors.Trace(&SyncError{Stage: 1, Got: l})
	}
	if err := s.lc.WriteLine(syncWord); err != nil {
		return errors.Trace(err)
	}
	if l, err = s.lc.ReadLine(); err != nil {
		return errors.Trace(err)
	} else if l != syncWord {
		return errors.Trace(&SyncError{Stage: 2, Got: l})
	}
	if l, err = s.lc.ReadLine(); err != nil {
		return errors.Trace(err)
	} else if l != respOK {
		return errors.Trace(&SyncError{Stage: 3, Got: l})
	}
	s.state = Synchronized
	return nil
}

func (s *Session) SetCrystalFrequency(khz int) error {
	if err := s.requireExactState("set crystal frequency", Synchronized); err != nil {
		return errors.Trace(err)
	}
	if err := s.lc.WriteLine(strconv.Itoa(khz)); err != nil {
		return errors.Trace(err)
	}
	// Echo is still on at this point.
	if _, err := s.lc.ReadLine(); err != nil {
		return errors.Trace(err)
	}
	l, err := s.lc.ReadLine()
	if err != nil {
		return errors.Trace(err)
	}
	if l != respOK {
		return errors.Trace(&SyncError{Stage: 4, Got: l})
	}
	glog.V(1).Infof("Crystal frequency set to %d kHz", khz)
	return nil
}

func (s *Session) DisableEcho() error {
	const cmd = "A 0"
	if err := s.requireExactState("disable echo", Synchronized); err != nil {
		return errors.Trace(err)
	}
	if err := s.lc.WriteLine(cmd); err != nil {
		return errors.Trace(err)
	}
	l, err := s.lc.ReadLine()
	if err != nil {
		return errors.Trace(err)
	}
	if l == cmd {
		if l, err = s.lc.ReadLine(); err != nil {
			return errors.Trace(err)
		}
		if l != "0" {
			return errors.Trace(&EchoError{Got: l})
		}
	} else if !strings.HasSuffix(l, "0") {
		return errors.Trace(&EchoError{Got: l})
	}
	s.state = EchoDisabled
	return nil
}

// Transact sends a command line and checks the return code that follows.
func (s *Session) Transact(cmd string) error {
	if err := s.RequireState(cmd, EchoDisabled); err != nil {
		return errors.Trace(err)
	}
	glog.V(2).Infof("=> %s", cmd)
	if err := s.lc.WriteLine(cmd); err != nil {
		return errors.Annotatef(err, "%s", cmd)
	}
	l, err := s.lc.ReadLine()
	if err != nil {
		return errors.Annotatef(err, "%s", cmd)
	}
	code, err := strconv.Atoi(strings.TrimSpace(l))
	if err != nil {
		return errors.Trace(protocolErrorf("invalid return code %q for %q", l, cmd))
	}
	glog.V(2).Infof("<= %d", code)
	switch rc := ReturnCode(code); {
	case rc == CmdSuccess:
		return nil
	case rc.Known():
		return errors.Trace(&DeviceError{Cmd: cmd, Code: rc})
	default:
		return errors.Trace(&UnknownReturnCodeError{Cmd: cmd, Code: code})
	}
}

func (s *Session) Unlock(code int) error {
	if err := s.Transact(fmt.Sprintf("U %d", code)); err != nil {
		return errors.Annotatef(err, "failed to unlock")
	}
	s.state = Unlocked
	return nil
}

func (s *Session) readUint(what string, bits int) (uint64, error) {
	l, err := s.lc.ReadLine()
	if err != nil {
		return 0, errors.Annotatef(err, "reading %s", what)
	}
	v, err := strconv.ParseUint(strings.TrimSpace(l), 10, bits)
	if err != nil {
		return 0, errors.Trace(protocolErrorf("invalid %s %q", what, l))
	}
	return v, nil
}

func (s *Session) GetPartID() (uint32, error) {
	if err := s.Transact("J"); err != nil {
		return 0, errors.Trace(err)
	}
	v, err := s.readUint("part id", 32)
	return uint32(v), errors.Trace(err)
}

func (s *Session) GetBootloaderVersion() (major, minor int, err error) {
	if err = s.Transact("K"); err != nil {
		return 0, 0, errors.Trace(err)
	}
	// Minor comes first on the wire.
	mi, err := s.readUint("bootloader minor version", 32)
	if err != nil {
		return 0, 0, errors.Trace(err)
	}
	ma, err := s.readUint("bootloader major version", 32)
	if err != nil {
		return 0, 0, errors.Trace(err)
	}
	return int(ma), int(mi), nil
}

// GetSerialNumber returns the 128-bit device serial number, least significant word first on the wire.
func (s *Session) GetSerialNumber() (*big.Int, error) {
	if err := s.Transact("N"); err != nil {
		return nil, errors.Trace(err)
	}
	sn := new(big.Int)
	for i := 0; i < serialNumberWords; i++ {
		w, err := s.readUint("serial number", 32)
		if err != nil {
			return nil, errors.Trace(err)
		}
		v := new(big.Int).SetUint64(w)
		sn.Add(sn, v.Lsh(v, uint(32*i)))
	}
	return sn, nil
}

func (s *Session) readChunk(maxLen int) ([]byte, error) {
	var chunk []byte
	for n := 0; n < blockcodec.LinesPerBlock && len(chunk) < maxLen; n++ {
		l, err := s.lc.ReadLine()
		if err != nil {
			return nil, errors.Trace(err)
		}
		d, err := blockcodec.DecodeLine(l)
		if err != nil {
			return nil, errors.Trace(protocolErrorf("%s", err))
		}
		chunk = append(chunk, d...)
	}
	if len(chunk) > maxLen {
		return nil, errors.Trace(protocolErrorf("got %d bytes, expected at most %d", len(chunk), maxLen))
	}
	return chunk, nil
}

func (s *Session) readChecksum() (uint64, error) {
	v, err := s.readUint("checksum", 64)
	return v, errors.Trace(err)
}

// ReadBlock reads length bytes of device memory at addr.
func (s *Session) ReadBlock(ctx context.Context, addr, length uint32) ([]byte, error) {
	if err := s.Transact(fmt.Sprintf("R %d %d", addr, length)); err != nil {
		return nil, errors.Trace(err)
	}
	data := make([]byte, 0, length)
	resends := 0
	for len(data) < int(length) {
		if err := ctx.Err(); err != nil {
			return nil, errors.Trace(err)
		}
		chunk, err := s.readChunk(int(length) - len(data))
		if err != nil {
			return nil, errors.Annotatef(err, "reading 0x%x", addr+uint32(len(data)))
		}
		want, err := s.readChecksum()
		if err != nil {
			return nil, errors.Trace(err)
		}
		if got := blockcodec.Checksum(chunk); got != want {
			if resends >= s.attempts {
				return nil, errors.Trace(&ChecksumRetryExhaustedError{Addr: addr + uint32(len(data)), Attempts: resends})
			}
			resends++
			glog.Warningf("Checksum mismatch reading 0x%x (want %d, got %d), retrying", addr+uint32(len(data)), want, got)
			if err := s.lc.WriteLine(respResend); err != nil {
				return nil, errors.Trace(err)
			}
			continue
		}
		if err := s.lc.WriteLine(respOK); err != nil {
			return nil, errors.Trace(err)
		}
		data = append(data, chunk...)
		resends = 0
		glog.V(3).Infof("Read %d/%d @ 0x%x", len(data), length, addr)
	}
	return data, nil
}

// WriteBlock writes data to device RAM at addr.
func (s *Session) WriteBlock(ctx context.Context, addr uint32, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := s.Transact(fmt.Sprintf("W %d %d", addr, len(data))); err != nil {
		return errors.Trace(err)
	}
	resends := 0
	for off := 0; off < len(data); {
		if err := ctx.Err(); err != nil {
			return errors.Trace(err)
		}
		chunk := data[off:min(off+blockcodec.BlockBytes, len(data))]
		lines, err := blockcodec.EncodeBlock(chunk)
		if err != nil {
			return errors.Trace(err)
		}
		for _, l := range lines {
			if err := s.lc.WriteLine(l); err != nil {
				return errors.Trace(err)
			}
		}
		if err := s.lc.WriteLine(strconv.FormatUint(blockcodec.Checksum(chunk), 10)); err != nil {
			return errors.Trace(err)
		}
		resp, err := s.lc.ReadLine()
		if err != nil {
			return errors.Annotatef(err, "writing 0x%x", addr+uint32(off))
		}
		switch resp {
		case respOK:
			off += len(chunk)
			resends = 0
			glog.V(3).Infof("Wrote %d/%d @ 0x%x", off, len(data), addr)
		case respResend:
			if resends >= s.attempts {
				return errors.Trace(&ChecksumRetryExhaustedError{Addr: addr + uint32(off), Attempts: resends})
			}
			resends++
			glog.Warningf("Checksum mismatch writing 0x%x, retrying", addr+uint32(off))
		default:
			return errors.Trace(protocolErrorf("unexpected response to data: %q", resp))
		}
	}
	return nil
}
