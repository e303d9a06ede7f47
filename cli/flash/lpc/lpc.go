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
package lpc

import (
	"fmt"
	"time"
)

type FlashOpts struct {
	Port                 string
	BaudRate             uint
	HardwareFlowControl  bool
	SoftwareFlowControl  bool
	InvertedControlLines bool
	ResetIntoISP         bool
	Timeout              time.Duration
	CrystalKHz           int
	Attempts             int
	PartName             string
	PartFile             string
	StagingAddr          uint32
	StagingSize          uint32
	PatchChecksum        bool
	BootAfterFlashing    bool
	ChunkSize            uint32
}

// GoMode is the execution mode argument of the "G" command.
type GoMode int

const (
	ThumbMode GoMode = iota
	ARMMode
)

func (m GoMode) String() string {
	switch m {
	case ThumbMode:
		return "T"
	case ARMMode:
		return "A"
	default:
		return fmt.Sprintf("???(%d)", int(m))
	}
}
