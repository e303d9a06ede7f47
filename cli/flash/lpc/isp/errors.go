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
	"fmt"
)

type ReturnCode int

const (
	CmdSuccess ReturnCode = iota
	InvalidCommand
	SrcAddrError
	DstAddrError
	SrcAddrNotMapped
	DstAddrNotMapped
	CountError
	InvalidSector
	SectorNotBlank
	SectorNotPreparedForWriteOperation
	CompareError
	Busy
	ParamError
	AddrError
	AddrNotMapped
	CmdLocked
	InvalidCode
	InvalidBaudRate
	InvalidStopBit
	CodeReadProtectionEnabled
)

var returnCodeNames = map[ReturnCode]string{
	CmdSuccess:                         "success",
	InvalidCommand:                     "invalid command",
	SrcAddrError:                       "source address error",
	DstAddrError:                       "destination address error",
	SrcAddrNotMapped:                   "source address not mapped",
	DstAddrNotMapped:                   "destination address not mapped",
	CountError:                         "count error",
	InvalidSector:                      "invalid sector",
	SectorNotBlank:                     "sector not blank",
	SectorNotPreparedForWriteOperation: "sector not prepared for write operation",
	CompareError:                       "compare error",
	Busy:                               "busy",
	ParamError:                         "parameter error",
	AddrError:                          "address error",
	AddrNotMapped:                      "address not mapped",
	CmdLocked:                          "command locked",
	InvalidCode:                        "invalid code",
	InvalidBaudRate:                    "invalid baud rate",
	InvalidStopBit:                     "invalid stop bit",
	CodeReadProtectionEnabled:          "code read protection enabled",
}

// Known reports whether rc is in the bootloader's return code table.
func (rc ReturnCode) Known() bool {
	_, ok := returnCodeNames[rc]
	return ok
}

func (rc ReturnCode) String() string {
	if s, ok := returnCodeNames[rc]; ok {
		return s
	}
	return fmt.Sprintf("unknown return code %d", int(rc))
}

type SyncError struct {
	Stage int
	Got   string
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("failed to synchronize (stage %d, got %q)", e.Stage, e.Got)
}

type EchoError struct {
	Got string
}

func (e *EchoError) Error() string {
	return fmt.Sprintf("failed to disable echo (got %q)", e.Got)
}

type ProtocolError struct {
	Msg string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Msg
}

func protocolErrorf(format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Msg: fmt.Sprintf(format, args...)}
}

type ChecksumRetryExhaustedError struct {
	Addr     uint32
	Attempts int
}

func (e *ChecksumRetryExhaustedError) Error() string {
	return fmt.Sprintf("checksum mismatch at 0x%x persisted after %d retries", e.Addr, e.Attempts)
}

// DeviceError is a non-zero return code from the bootloader's table.
type DeviceError struct {
	Cmd  string
	Code ReturnCode
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%q failed: %s (%d)", e.Cmd, e.Code, int(e.Code))
}

type UnknownReturnCodeError struct {
	Cmd  string
	Code int
}

func (e *UnknownReturnCodeError) Error() string {
	return fmt.Sprintf("%q failed: unknown return code %d", e.Cmd, e.Code)
}

type IllegalStateError struct {
	Op   string
	Have State
	Need State
}

func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("%s requires session state %s, have %s", e.Op, e.Need, e.Have)
}
