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
package flasher

import (
	"context"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/mongoose-os/lpcisp/cli/flash/lpc"
	"github.com/mongoose-os/lpcisp/cli/flash/lpc/isp"
	"github.com/mongoose-os/lpcisp/common/ihex"
)

const (
	commitAlign       = 256
	bootChecksumBytes = 32
	bootChecksumWord  = 7
	dumpRecordLen     = 16
	fillByte          = 0xff

	// Largest single "W" while staging.
	stageChunk = 4096

	DefaultChunkSize = 4096
)

// Sizes accepted by the "C" command, largest first.
var copySizes = []uint32{4096, 1024, 512, 256}

var ErrAborted = errors.New("aborted by user")

// ConfirmFunc is asked before anything is erased, with the number of bytes about to be committed.
type ConfirmFunc func(length uint32) bool

type ProgressFunc func(done, total uint32)

type ProgrammerOpts struct {
	// Override the part's RAM staging window.
	StagingAddr   uint32
	StagingSize   uint32
	PatchChecksum bool
	UnlockCode    int
	Confirm       ConfirmFunc
	Progress      ProgressFunc
}

// Programmer sequences flash operations over an ISP session.
// Each exported operation is a critical section.
type Programmer struct {
	mu   sync.Mutex
	s    *isp.Session
	part *lpc.Part
	opts ProgrammerOpts
}

func NewProgrammer(s *isp.Session, part *lpc.Part, opts *ProgrammerOpts) *Programmer {
	p := &Programmer{s: s, part: part}
	if opts != nil {
		p.opts = *opts
	} else {
		p.opts.PatchChecksum = true
	}
	if p.opts.StagingAddr == 0 {
		p.opts.StagingAddr = part.RAMStagingAddr
	}
	if p.opts.StagingSize == 0 {
		p.opts.StagingSize = part.RAMStagingSize
	}
	if p.opts.UnlockCode == 0 {
		p.opts.UnlockCode = isp.DefaultUnlockCode
	}
	return p
}

func (p *Programmer) Part() *lpc.Part {
	return p.part
}

func (p *Programmer) progress(done, total uint32) {
	if p.opts.Progress != nil {
		p.opts.Progress(done, total)
	}
}

func (p *Programmer) transactUnlocked(cmd string) error {
	if err := p.s.RequireState(cmd, isp.Unlocked); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(p.s.Transact(cmd))
}

func (p *Programmer) prepareSectors(lo, hi int) error {
	return errors.Trace(p.transactUnlocked(fmt.Sprintf("P %d %d", lo, hi)))
}

func (p *Programmer) eraseSectors(lo, hi int) error {
	return errors.Trace(p.transactUnlocked(fmt.Sprintf("E %d %d", lo, hi)))
}

func (p *Programmer) copyRAMToFlash(ram, flash, length uint32) error {
	return errors.Trace(p.transactUnlocked(fmt.Sprintf("C %d %d %d", flash, ram, length)))
}

func (p *Programmer) PrepareSectors(lo, hi int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Trace(p.prepareSectors(lo, hi))
}

func (p *Programmer) EraseSectors(lo, hi int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Trace(p.eraseSectors(lo, hi))
}

func (p *Programmer) CopyRAMToFlash(ram, flash, length uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Trace(p.copyRAMToFlash(ram, flash, length))
}

func (p *Programmer) Go(addr uint32, mode lpc.GoMode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Trace(p.transactUnlocked(fmt.Sprintf("G %d %s", addr, mode)))
}

type span struct {
	start, end uint32
}

// mergeSpans sorts and coalesces overlapping or adjacent spans.
func mergeSpans(spans []span) []span {
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	var res []span
	for _, s := range spans {
		if n := len(res); n > 0 && s.start <= res[n-1].end {
			if s.end > res[n-1].end {
				res[n-1].end = s.end
			}
			continue
		}
		res = append(res, s)
	}
	return res
}

func roundUp(n, align uint32) uint32 {
	return (n + align - 1) / align * align
}

// BootChecksum returns the vector table word that makes words 0-7 sum to zero.
func BootChecksum(vt []byte) uint32 {
	var sum uint32
	for i := 0; i < bootChecksumWord; i++ {
		sum += binary.LittleEndian.Uint32(vt[i*4:])
	}
	return -sum
}

func largestCopySize(n uint32) uint32 {
	for _, s := range copySizes {
		if s <= n {
			return s
		}
	}
	return copySizes[len(copySizes)-1]
}

// ProgramImage stages records in RAM and commits them to flash starting at address 0.
// Flash is not touched until staging, checksum patch and confirmation have succeeded.
func (p *Programmer) ProgramImage(ctx context.Context, recs []ihex.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	staging, window := p.opts.StagingAddr, p.opts.StagingSize
	if staging%4 != 0 {
		return errors.Errorf("staging address 0x%x is not word-aligned", staging)
	}
	var data []ihex.DataRec
	var spans []span
	for _, r := range recs {
		var dr ihex.DataRec
		switch v := r.(type) {
		case ihex.DataRec:
			dr = v
		case *ihex.DataRec:
			dr = *v
		default:
			glog.V(1).Infof("Ignoring %s", r)
			continue
		}
		if len(dr.Data) == 0 {
			continue
		}
		end := uint64(dr.Addr) + uint64(len(dr.Data))
		if end > uint64(window) {
			return errors.Errorf("%d @ 0x%x does not fit in the RAM staging window (%d)", len(dr.Data), dr.Addr, window)
		}
		data = append(data, dr)
		spans = append(spans, span{dr.Addr, uint32(end)})
	}
	if len(data) == 0 {
		return errors.Errorf("image contains no data")
	}
	merged := mergeSpans(spans)
	commitLen := roundUp(merged[len(merged)-1].end, commitAlign)
	if commitLen > window || commitLen > p.part.FlashSize {
		return errors.Errorf("image (%d bytes) does not fit", commitLen)
	}

	// Later records win where they overlap.
	img := make([]byte, commitLen)
	for i := range img {
		img[i] = fillByte
	}
	for _, dr := range data {
		copy(img[dr.Addr:], dr.Data)
	}

	if p.opts.PatchChecksum {
		if merged[0].start == 0 && merged[0].end >= bootChecksumBytes {
			csum := BootChecksum(img[:bootChecksumBytes])
			glog.Infof("Boot checksum: 0x%08x", csum)
			binary.LittleEndian.PutUint32(img[bootChecksumWord*4:], csum)
		} else {
			glog.Warningf("Image does not cover the vector table, not patching boot checksum")
		}
	}

	glog.Infof("Staging %d records (%d spans), commit length %d @ 0x%x", len(data), len(merged), commitLen, staging)
	for off := uint32(0); off < commitLen; {
		n := min(stageChunk, commitLen-off)
		if err := p.s.WriteBlock(ctx, staging+off, img[off:off+n]); err != nil {
			return errors.Annotatef(err, "failed to stage %d @ 0x%x", n, off)
		}
		off += n
		p.progress(off, commitLen)
	}

	if p.opts.Confirm != nil && !p.opts.Confirm(commitLen) {
		return errors.Trace(ErrAborted)
	}

	if p.s.State() < isp.Unlocked {
		if err := p.s.Unlock(p.opts.UnlockCode); err != nil {
			return errors.Trace(err)
		}
	}
	lo, hi, err := p.part.SectorsFor(0, commitLen)
	if err != nil {
		return errors.Trace(err)
	}
	glog.Infof("Erasing sectors %d-%d", lo, hi)
	if err := p.prepareSectors(lo, hi); err != nil {
		return errors.Trace(err)
	}
	if err := p.eraseSectors(lo, hi); err != nil {
		return errors.Trace(err)
	}
	for off := uint32(0); off < commitLen; {
		n := largestCopySize(commitLen - off)
		slo, shi, err := p.part.SectorsFor(off, off+n)
		if err != nil {
			return errors.Trace(err)
		}
		if err := p.prepareSectors(slo, shi); err != nil {
			return errors.Trace(err)
		}
		if err := p.copyRAMToFlash(staging+off, off, n); err != nil {
			return errors.Annotatef(err, "failed to write %d @ 0x%x", n, off)
		}
		off += n
		glog.V(1).Infof("Committed %d/%d", off, commitLen)
	}
	return nil
}

// DumpFlash reads [start, start+length) in chunkSize pieces and returns it as data records.
func (p *Programmer) DumpFlash(ctx context.Context, start, length, chunkSize uint32) ([]ihex.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	if start%4 != 0 || length%4 != 0 || chunkSize%4 != 0 {
		return nil, errors.Errorf("address, length and chunk size must be multiples of 4")
	}
	if uint64(start)+uint64(length) > uint64(p.part.FlashSize) {
		return nil, errors.Errorf("0x%x + %d exceeds flash size (%d)", start, length, p.part.FlashSize)
	}
	var recs []ihex.Record
	for off := uint32(0); off < length; {
		n := min(chunkSize, length-off)
		data, err := p.s.ReadBlock(ctx, start+off, n)
		if err != nil {
			return nil, errors.Annotatef(err, "failed to read %d @ 0x%x", n, start+off)
		}
		for i := 0; i < len(data); i += dumpRecordLen {
			recs = append(recs, ihex.DataRec{
				Addr: start + off + uint32(i),
				Data: data[i:min(i+dumpRecordLen, len(data))],
			})
		}
		off += n
		p.progress(off, length)
	}
	return recs, nil
}
