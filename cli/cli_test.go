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
package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	flag "github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mongoose-os/lpcisp/cli/flags"
	"github.com/mongoose-os/lpcisp/cli/flash/lpc"
	"github.com/mongoose-os/lpcisp/cli/flash/lpc/flasher"
	"github.com/mongoose-os/lpcisp/common/ihex"
	"github.com/mongoose-os/lpcisp/common/ourio"
)

func TestPrintInfo(t *testing.T) {
	p, err := lpc.BuiltinParts().ByName("LPC1768")
	require.NoError(t, err)
	var out bytes.Buffer
	printInfo(&out, &flasher.Info{
		PartID:       0x26013F37,
		Part:         p,
		SerialNumber: big.NewInt(0x1234),
		BootMajor:    4,
		BootMinor:    1,
	})
	assert.Regexp(t, `Part: +LPC1768\n`, out.String())
	assert.Contains(t, out.String(), "0x26013f37")
	assert.Contains(t, out.String(), "00000000000000000000000000001234")
	assert.Contains(t, out.String(), "4.1")
}

func TestPrintParts(t *testing.T) {
	var out bytes.Buffer
	printParts(&out, lpc.BuiltinParts())
	assert.Contains(t, out.String(), "LPC1751")
	assert.Contains(t, out.String(), "0x25001118,0x25001110")
	assert.Contains(t, out.String(), "30 (16x4K + 14x32K)")
}

func TestReadImage(t *testing.T) {
	defer func(old bool) { *flags.IHexBigEndian = old }(*flags.IHexBigEndian)
	fname := filepath.Join(t.TempDir(), "fw.hex")
	require.NoError(t, os.WriteFile(fname, []byte(":020000040001F9\n:0100100000EF\n:00000001FF\n"), 0644))

	recs, err := readImage(fname)
	require.NoError(t, err)
	assert.Equal(t, []ihex.Record{ihex.DataRec{Addr: 0x01000010, Data: []byte{0}}}, recs)

	*flags.IHexBigEndian = true
	assert.Equal(t, binary.BigEndian, ihexByteOrder())
	recs, err = readImage(fname)
	require.NoError(t, err)
	assert.Equal(t, []ihex.Record{ihex.DataRec{Addr: 0x00010010, Data: []byte{0}}}, recs)

	_, err = readImage(filepath.Join(t.TempDir(), "missing.hex"))
	assert.Error(t, err)
}

func TestConfirmFlashYes(t *testing.T) {
	defer func(old bool) { *flags.Yes = old }(*flags.Yes)
	*flags.Yes = true
	assert.True(t, confirmFlash(1024))
}

func TestCheckFlags(t *testing.T) {
	assert.NoError(t, checkFlags(nil))
	err := checkFlags([]string{"port", "no-such-flag"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 error(s) occurred")
	assert.Contains(t, err.Error(), "--no-such-flag is required")
}

func TestExportParts(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "parts.yaml")
	require.NoError(t, flag.CommandLine.Parse([]string{"parts", fname}))
	require.NoError(t, parts(context.Background()))

	pt, err := lpc.LoadPartsFile(fname)
	require.NoError(t, err)
	builtin := lpc.BuiltinParts()
	require.Len(t, pt.Parts, len(builtin.Parts))
	for i, p := range builtin.Parts {
		assert.Equal(t, p.Name, pt.Parts[i].Name)
		assert.Equal(t, p.IDs, pt.Parts[i].IDs)
		assert.Equal(t, p.Sectors, pt.Parts[i].Sectors)
	}

	written, err := ourio.WriteYAMLFileIfDifferent(fname, builtin, 0644)
	require.NoError(t, err)
	assert.False(t, written)
}
