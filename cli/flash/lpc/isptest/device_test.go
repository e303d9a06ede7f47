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
package isptest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mongoose-os/lpcisp/cli/flash/common"
	"github.com/mongoose-os/lpcisp/cli/flash/lpc"
)

func newDevice(t *testing.T) *Device {
	p, err := lpc.BuiltinParts().ByName("LPC1768")
	require.NoError(t, err)
	return NewDevice(p, p.IDs[0])
}

func drain(d *Device) []string {
	var res []string
	for {
		l, err := d.ReadLine()
		if err != nil {
			return res
		}
		res = append(res, l)
	}
}

func do(t *testing.T, d *Device, line string) []string {
	require.NoError(t, d.WriteLine(line))
	return drain(d)
}

func synced(t *testing.T) *Device {
	d := newDevice(t)
	require.NoError(t, d.WriteRaw("?"))
	assert.Equal(t, []string{"Synchronized"}, drain(d))
	assert.Equal(t, []string{"Synchronized", "OK"}, do(t, d, "Synchronized"))
	assert.Equal(t, []string{"12000", "OK"}, do(t, d, "12000"))
	return d
}

func TestNoOutputIsTimeout(t *testing.T) {
	d := newDevice(t)
	_, err := d.ReadLine()
	assert.True(t, common.IsTimeout(err))
}

func TestEchoUntilDisabled(t *testing.T) {
	d := synced(t)
	assert.Equal(t, []string{"J", "0", "637615927"}, do(t, d, "J"))
	assert.Equal(t, []string{"A 0", "0"}, do(t, d, "A 0"))
	assert.Equal(t, []string{"0", "1", "4"}, do(t, d, "K"))
	assert.Equal(t, []string{"J", "A 0", "K"}, d.Commands())
}

func TestLockedCommands(t *testing.T) {
	d := synced(t)
	do(t, d, "A 0")
	assert.Equal(t, []string{"0"}, do(t, d, "P 0 0"))
	assert.Equal(t, []string{"15"}, do(t, d, "E 0 0"))
	assert.Equal(t, []string{"15"}, do(t, d, "C 0 268435968 256"))
	assert.Equal(t, []string{"15"}, do(t, d, "G 0 T"))
	assert.Equal(t, []string{"16"}, do(t, d, "U 1"))
	assert.False(t, d.Unlocked())
	assert.Equal(t, []string{"0"}, do(t, d, "U 23130"))
	assert.True(t, d.Unlocked())
	assert.Equal(t, []string{"0"}, do(t, d, "G 0 T"))
	assert.Equal(t, []string{"0 T"}, d.Booted())
}

func TestCopyNeedsPreparedSectors(t *testing.T) {
	d := synced(t)
	do(t, d, "A 0")
	do(t, d, "U 23130")
	copy(d.RAM[0x200:], []byte{0x0f, 0xf0, 0x55, 0xaa})
	assert.Equal(t, []string{"9"}, do(t, d, "C 0 268435968 256"))
	assert.Equal(t, []string{"6"}, do(t, d, "C 0 268435968 100"))
	assert.Equal(t, []string{"0"}, do(t, d, "P 0 0"))
	assert.Equal(t, []string{"0"}, do(t, d, "C 0 268435968 256"))
	assert.Equal(t, []byte{0x0f, 0xf0, 0x55, 0xaa}, d.Flash[:4])
	// Preparation is consumed by the write.
	assert.Equal(t, []string{"9"}, do(t, d, "E 0 0"))
	assert.Equal(t, []string{"0"}, do(t, d, "P 0 0"))
	assert.Equal(t, []string{"0"}, do(t, d, "E 0 0"))
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, d.Flash[:4])
}

func TestFailOverride(t *testing.T) {
	d := synced(t)
	do(t, d, "A 0")
	d.Fail["J"] = 11
	assert.Equal(t, []string{"11"}, do(t, d, "J"))
	assert.Equal(t, []string{"1"}, do(t, d, "X"))
	assert.Equal(t, []string{"7"}, do(t, d, "P 5 99"))
}
