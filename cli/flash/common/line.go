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
package common

import (
	"bytes"
	"io"
	"time"

	"github.com/golang/glog"
	"github.com/juju/errors"
)

const (
	// XON/XOFF are used by the bootloader for software flow control.
	// They never occur in the protocol's printable lines, so they can be excised transparently.
	xonChar  = 0x11
	xoffChar = 0x13

	DefaultLineTerminator = "\r\n"
	DefaultLineTimeout    = 2 * time.Second

	readBufSize = 256
)

var ErrTimeout = errors.New("timed out waiting for data from the device")

func IsTimeout(err error) bool {
	return errors.Cause(err) == ErrTimeout
}

// LineReaderWriter is a line-oriented view of the link to the device.
type LineReaderWriter interface {
	// ReadLine returns the next line with the terminator stripped.
	ReadLine() (string, error)
	// WriteLine sends s followed by the line terminator.
	WriteLine(s string) error
	// WriteRaw sends s as is.
	WriteRaw(s string) error
}

type LineChannelOpts struct {
	Terminator          string
	Timeout             time.Duration
	SoftwareFlowControl bool
}

// LineChannel implements LineReaderWriter over a byte stream.
// Reads of 0 bytes or io.EOF from the underlying stream are treated as "no data yet",
// which is how serial ports report an expired inter-character timeout.
type LineChannel struct {
	rw     io.ReadWriter
	opts   LineChannelOpts
	buf    []byte
	paused bool
}

func NewLineChannel(rw io.ReadWriter, opts *LineChannelOpts) *LineChannel {
	lc := &LineChannel{rw: rw}
	if opts != nil {
		lc.opts = *opts
	}
	if lc.opts.Terminator == "" {
		lc.opts.Terminator = DefaultLineTerminator
	}
	if lc.opts.Timeout <= 0 {
		lc.opts.Timeout = DefaultLineTimeout
	}
	return lc
}

func (lc *LineChannel) appendInput(data []byte) {
	if !lc.opts.SoftwareFlowControl {
		lc.buf = append(lc.buf, data...)
		return
	}
	for _, b := range data {
		switch b {
		case xoffChar:
			glog.V(3).Infof("XOFF")
			lc.paused = true
		case xonChar:
			glog.V(3).Infof("XON")
			lc.paused = false
		default:
			lc.buf = append(lc.buf, b)
		}
	}
}

// fill performs reads until at least one byte arrives or the deadline passes.
func (lc *LineChannel) fill(deadline time.Time) error {
	rb := make([]byte, readBufSize)
	for {
		n, err := lc.rw.Read(rb)
		if n > 0 {
			lc.appendInput(rb[:n])
			return nil
		}
		if err != nil && errors.Cause(err) != io.EOF {
			return errors.Annotatef(err, "error reading")
		}
		if !time.Now().Before(deadline) {
			return errors.Trace(ErrTimeout)
		}
	}
}

func (lc *LineChannel) ReadLine() (string, error) {
	deadline := time.Now().Add(lc.opts.Timeout)
	for {
		if i := bytes.IndexByte(lc.buf, '\n'); i >= 0 {
			line := lc.buf[:i]
			lc.buf = lc.buf[i+1:]
			line = bytes.TrimSuffix(line, []byte{'\r'})
			glog.V(4).Infof("<= %q", LimitStr(line, 64))
			return string(line), nil
		}
		if err := lc.fill(deadline); err != nil {
			if len(lc.buf) > 0 {
				glog.V(1).Infof("incomplete line: %q", LimitStr(lc.buf, 64))
			}
			return "", errors.Trace(err)
		}
	}
}

func (lc *LineChannel) write(s string) error {
	if lc.paused {
		deadline := time.Now().Add(lc.opts.Timeout)
		for lc.paused {
			if err := lc.fill(deadline); err != nil {
				return errors.Annotatef(err, "waiting for XON")
			}
		}
	}
	glog.V(4).Infof("=> %q", LimitStr([]byte(s), 64))
	if _, err := io.WriteString(lc.rw, s); err != nil {
		return errors.Annotatef(err, "error writing")
	}
	return nil
}

func (lc *LineChannel) WriteLine(s string) error {
	return errors.Trace(lc.write(s + lc.opts.Terminator))
}

func (lc *LineChannel) WriteRaw(s string) error {
	return errors.Trace(lc.write(s))
}

// Flush discards buffered input as well as any data immediately available from the device.
func (lc *LineChannel) Flush() error {
	lc.buf = nil
	rb := make([]byte, readBufSize)
	for {
		n, err := lc.rw.Read(rb)
		if n == 0 || err != nil {
			if err != nil && errors.Cause(err) != io.EOF {
				return errors.Annotatef(err, "error reading")
			}
			break
		}
		glog.V(4).Infof("flushed %q", LimitStr(rb[:n], 64))
	}
	lc.buf = nil
	return nil
}

func LimitStr(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
