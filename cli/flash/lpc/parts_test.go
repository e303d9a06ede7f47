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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinParts(t *testing.T) {
	pt := BuiltinParts()
	p, err := pt.ByID(0x26013F37)
	require.NoError(t, err)
	assert.Equal(t, "LPC1768", p.Name)
	require.Len(t, p.Sectors, 30)
	assert.Equal(t, Sector{Index: 0, Start: 0, End: 0x1000}, p.Sectors[0])
	assert.Equal(t, Sector{Index: 15, Start: 0xf000, End: 0x10000}, p.Sectors[15])
	assert.Equal(t, Sector{Index: 16, Start: 0x10000, End: 0x18000}, p.Sectors[16])
	assert.Equal(t, Sector{Index: 29, Start: 0x78000, End: 0x80000}, p.Sectors[29])

	p, err = pt.ByName("lpc1751")
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x25001118, 0x25001110}, p.IDs)
	// Truncated to the flash size.
	assert.Len(t, p.Sectors, 8)

	p2, err := pt.ByID(0x25001110)
	require.NoError(t, err)
	assert.Same(t, p, p2)

	_, err = pt.ByID(0x12345678)
	assert.Error(t, err)
	_, err = pt.ByName("LPC2148")
	assert.Error(t, err)
}

func TestSectorsFor(t *testing.T) {
	p, err := BuiltinParts().ByName("LPC1768")
	require.NoError(t, err)
	for _, c := range []struct {
		start, end uint32
		lo, hi     int
	}{
		{0, 1, 0, 0},
		{0, 0x1000, 0, 0},
		{0, 0x1001, 0, 1},
		{0xfff, 0x1001, 0, 1},
		{0x8000, 0x18000, 8, 16},
		{0x10000, 0x80000, 16, 29},
	} {
		lo, hi, err := p.SectorsFor(c.start, c.end)
		require.NoError(t, err)
		assert.Equal(t, c.lo, lo, "0x%x-0x%x", c.start, c.end)
		assert.Equal(t, c.hi, hi, "0x%x-0x%x", c.start, c.end)
	}
	_, _, err = p.SectorsFor(0x100, 0x100)
	assert.Error(t, err)
	_, _, err = p.SectorsFor(0x7ff00, 0x80001)
	assert.Error(t, err)
}

func TestLoadPartsFile(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "parts.yaml")
	require.NoError(t, os.WriteFile(fname, []byte(`
parts:
  - name: LPC1114
    ids: [0x0444102B]
    flash_size: 0x8000
    ram_staging_addr: 0x10000300
    ram_staging_size: 0x1000
    sectors:
      - {count: 8, size: 0x1000}
`), 0644))
	pt, err := LoadPartsFile(fname)
	require.NoError(t, err)
	p, err := pt.ByID(0x0444102B)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x10000300), p.RAMStagingAddr)
	assert.Len(t, p.Sectors, 8)
}

func TestLoadPartsErrors(t *testing.T) {
	for _, c := range []struct {
		name, data, msg string
	}{
		{"empty", "parts: []", "empty"},
		{"unknown field", "parts:\n  - name: X\n    flash: 1\n", "invalid part table"},
		{"no name", "parts:\n  - flash_size: 0x1000\n", "no name"},
		{"short sectors", `parts:
  - name: X
    flash_size: 0x2000
    ram_staging_addr: 0x10000000
    ram_staging_size: 0x100
    sectors: [{count: 1, size: 0x1000}]
`, "sectors cover"},
		{"bad staging", `parts:
  - name: X
    flash_size: 0x1000
    ram_staging_addr: 0x10000001
    ram_staging_size: 0x100
    sectors: [{count: 1, size: 0x1000}]
`, "staging"},
	} {
		t.Run(c.name, func(t *testing.T) {
			_, err := LoadParts([]byte(c.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), c.msg)
		})
	}
}

func TestGoMode(t *testing.T) {
	assert.Equal(t, "T", ThumbMode.String())
	assert.Equal(t, "A", ARMMode.String())
}
