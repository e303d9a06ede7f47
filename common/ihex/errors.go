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

import "fmt"

// ChecksumError is returned when a record's checksum does not match its contents.
type ChecksumError struct {
	Line int
	Want uint8
	Got  uint8
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("line %d: invalid checksum (want %02x, got %02x)", e.Line, e.Want, e.Got)
}

type UnsupportedRecordTypeError struct {
	Line int
	Type uint8
}

func (e *UnsupportedRecordTypeError) Error() string {
	return fmt.Sprintf("line %d: unsupported record type (0x%02x)", e.Line, e.Type)
}

// InvalidRecordError covers malformed lines and field/length combinations
// that are not allowed for the record type.
type InvalidRecordError struct {
	Line   int
	Reason string
}

func (e *InvalidRecordError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}
