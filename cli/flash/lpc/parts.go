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
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/juju/errors"
	yaml "gopkg.in/yaml.v2"
)

//go:embed parts.yaml
var builtinPartsYAML []byte

// Sector is a flash sector occupying [Start, End).
type Sector struct {
	Index int
	Start uint32
	End   uint32
}

func (s Sector) Size() uint32 {
	return s.End - s.Start
}

type SectorGroup struct {
	Count int    `yaml:"count"`
	Size  uint32 `yaml:"size"`
}

type Part struct {
	Name           string        `yaml:"name"`
	IDs            []uint32      `yaml:"ids"`
	FlashSize      uint32        `yaml:"flash_size"`
	RAMStagingAddr uint32        `yaml:"ram_staging_addr"`
	RAMStagingSize uint32        `yaml:"ram_staging_size"`
	SectorLayout   []SectorGroup `yaml:"sectors"`

	Sectors []Sector `yaml:"-"`
}

type PartTable struct {
	Parts []*Part `yaml:"parts"`
}

func (p *Part) String() string {
	return p.Name
}

func (p *Part) init() error {
	if p.Name == "" {
		return errors.Errorf("part has no name")
	}
	if p.FlashSize == 0 {
		return errors.Errorf("%s: no flash size", p.Name)
	}
	if p.RAMStagingSize == 0 || p.RAMStagingAddr%4 != 0 {
		return errors.Errorf("%s: invalid RAM staging window 0x%x/0x%x", p.Name, p.RAMStagingAddr, p.RAMStagingSize)
	}
	p.Sectors = nil
	addr := uint32(0)
	for _, g := range p.SectorLayout {
		if g.Count <= 0 || g.Size == 0 {
			return errors.Errorf("%s: invalid sector group %+v", p.Name, g)
		}
		for i := 0; i < g.Count && addr < p.FlashSize; i++ {
			p.Sectors = append(p.Sectors, Sector{Index: len(p.Sectors), Start: addr, End: addr + g.Size})
			addr += g.Size
		}
	}
	if addr != p.FlashSize {
		return errors.Errorf("%s: sectors cover 0x%x bytes, flash size is 0x%x", p.Name, addr, p.FlashSize)
	}
	return nil
}

// SectorAt returns the sector containing addr.
func (p *Part) SectorAt(addr uint32) (Sector, error) {
	i := sort.Search(len(p.Sectors), func(i int) bool { return p.Sectors[i].End > addr })
	if i == len(p.Sectors) {
		return Sector{}, errors.Errorf("0x%x is outside of %s flash", addr, p.Name)
	}
	return p.Sectors[i], nil
}

// SectorsFor returns the range of sectors covering [start, end).
func (p *Part) SectorsFor(start, end uint32) (lo, hi int, err error) {
	if end <= start {
		return 0, 0, errors.Errorf("empty range 0x%x-0x%x", start, end)
	}
	first, err := p.SectorAt(start)
	if err != nil {
		return 0, 0, errors.Trace(err)
	}
	last, err := p.SectorAt(end - 1)
	if err != nil {
		return 0, 0, errors.Trace(err)
	}
	return first.Index, last.Index, nil
}

func LoadParts(data []byte) (*PartTable, error) {
	pt := &PartTable{}
	if err := yaml.UnmarshalStrict(data, pt); err != nil {
		return nil, errors.Annotatef(err, "invalid part table")
	}
	if len(pt.Parts) == 0 {
		return nil, errors.Errorf("part table is empty")
	}
	for _, p := range pt.Parts {
		if err := p.init(); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return pt, nil
}

func LoadPartsFile(fname string) (*PartTable, error) {
	data, err := os.ReadFile(fname)
	if err != nil {
		return nil, errors.Trace(err)
	}
	pt, err := LoadParts(data)
	if err != nil {
		return nil, errors.Annotatef(err, "%s", fname)
	}
	return pt, nil
}

func BuiltinParts() *PartTable {
	pt, err := LoadParts(builtinPartsYAML)
	if err != nil {
		panic(fmt.Sprintf("built-in part table: %s", err))
	}
	return pt
}

func (pt *PartTable) ByName(name string) (*Part, error) {
	for _, p := range pt.Parts {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return nil, errors.Errorf("unknown part %q", name)
}

func (pt *PartTable) ByID(id uint32) (*Part, error) {
	for _, p := range pt.Parts {
		for _, pid := range p.IDs {
			if pid == id {
				return p, nil
			}
		}
	}
	return nil, errors.Errorf("unknown part id 0x%08x", id)
}
