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
package flags

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	n, err := parseSize("lpc-staging-size", "", 256)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), n)

	n, err = parseSize("lpc-staging-size", "0xfe00", 256)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xfe00), n)

	n, err = parseSize("lpc-staging-addr", "268435968", 4)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x10000200), n)

	_, err = parseSize("lpc-staging-size", "0xfe10", 256)
	assert.EqualError(t, err, "--lpc-staging-size must be a multiple of 256")
	_, err = parseSize("lpc-staging-addr", "0x10000202", 4)
	assert.Error(t, err)
	_, err = parseSize("lpc-staging-addr", "lots", 4)
	assert.Error(t, err)
}

func TestFlashOptsStaging(t *testing.T) {
	defer func(a, s string) { *StagingAddr, *StagingSize = a, s }(*StagingAddr, *StagingSize)
	*StagingAddr, *StagingSize = "0x2007c000", "0x8000"
	opts, err := FlashOpts("/dev/ttyUSB0")
	require.NoError(t, err)
	assert.Equal(t, uint32(0x2007c000), opts.StagingAddr)
	assert.Equal(t, uint32(0x8000), opts.StagingSize)

	*StagingSize = "100"
	_, err = FlashOpts("/dev/ttyUSB0")
	assert.Error(t, err)
}
