/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package shm implements the shared-memory manager: a fixed table of
// blocks, page ownership, attach/detach reference counting, and the
// owner-only vs owner-plus-children write-permission model. Grounded on
// spec.md §4.5 and §3's shared-memory data model — original_source's own
// sharedm.c only survived as an unfinished stub (shm_init plus incomplete,
// buggy sys_shm_open/attach/close bodies), so the field names and
// constants it confirms (id, owner, flags, ref_count, size, pages) are
// trusted, but the operational semantics below follow spec.md directly
// rather than the stub.
package shm

import (
	"errors"
	"sync"
)

var (
	ErrTableFull    = errors.New("shm: no free shared-memory slot")
	ErrNotFound     = errors.New("shm: no such shared-memory id")
	ErrBadPageCount = errors.New("shm: page count out of range")
	ErrBadFlag      = errors.New("shm: flag must be 0 or 1")
	ErrAccessDenied = errors.New("shm: process may not attach this block")
	ErrNotAttached  = errors.New("shm: process has not attached this block")
)

// Flag selects the write-permission model for a block, per spec.md §3.
type Flag int

const (
	// OwnerWriteOnly: only the owning process may write; attachers other
	// than the owner get a read-only mapping.
	OwnerWriteOnly Flag = 0
	// OwnerAndChildrenWrite: the owner and its direct children (parent
	// pid checked at attach time) may write; grandchildren get read-only.
	OwnerAndChildrenWrite Flag = 1
)

// Page is one page-sized unit of a shared block. Real memory protection
// has no analogue in this simulation; a Page is just the byte buffer
// every attacher sees the same backing array for.
type Page = []byte

const pageSize = 4096

// Block is one shared-memory-table slot.
type Block struct {
	ID        int
	Owner     int // pid that created the block
	Flag      Flag
	RefCount  int // live attach count; -1 means the slot is free
	Size      int // bytes requested at shm_open
	Pages     []Page
	attachers map[int]bool // pid -> write permission granted at attach time
}

// Manager is the shared-memory table: spec.md leaves its capacity and
// per-block page cap as configuration, realized here via maxBlocks and
// maxPagesPerBlock (SPEC_FULL §10.2's MAXSHM / MAXSHMPBLOCK).
type Manager struct {
	mu               sync.Mutex
	blocks           []*Block
	maxPagesPerBlock int
}

// NewManager builds a shared-memory table with maxBlocks slots, each
// capped at maxPagesPerBlock pages.
func NewManager(maxBlocks, maxPagesPerBlock int) *Manager {
	m := &Manager{
		blocks:           make([]*Block, maxBlocks),
		maxPagesPerBlock: maxPagesPerBlock,
	}
	for i := range m.blocks {
		m.blocks[i] = &Block{ID: i, RefCount: -1}
	}
	return m
}

// Open implements shm_open(id, size, flag): claims slot id (or the first
// free slot if id < 0), sizing it to hold enough pages for size bytes,
// and records owner/flag. RefCount starts at 0 — Open only creates the
// block, it does not implicitly attach the caller (spec.md §4.5: open and
// attach are separate operations).
func (m *Manager) Open(owner, id, size int, flag Flag) (int, error) {
	if flag != OwnerWriteOnly && flag != OwnerAndChildrenWrite {
		return -1, ErrBadFlag
	}
	npages := (size + pageSize - 1) / pageSize
	if npages <= 0 {
		npages = 1
	}
	if npages > m.maxPagesPerBlock {
		return -1, ErrBadPageCount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var b *Block
	if id >= 0 {
		if id >= len(m.blocks) {
			return -1, ErrNotFound
		}
		if m.blocks[id].RefCount != -1 {
			return -1, errors.New("shm: id already in use")
		}
		b = m.blocks[id]
	} else {
		for _, cand := range m.blocks {
			if cand.RefCount == -1 {
				b = cand
				break
			}
		}
		if b == nil {
			return -1, ErrTableFull
		}
	}

	pages := make([]Page, npages)
	for i := range pages {
		pages[i] = make(Page, pageSize)
	}
	b.Owner = owner
	b.Flag = flag
	b.Size = size
	b.Pages = pages
	b.RefCount = 0
	b.attachers = make(map[int]bool)
	return b.ID, nil
}

// Attach implements shm_attach(id, pid): grants pid a mapping onto the
// block's pages, bumping RefCount on the first attach by that pid, and
// decides the write permission spec.md §4.5 names: the owner always gets
// read+write; under OwnerWriteOnly a non-owner still attaches, but
// read-only; under OwnerAndChildrenWrite a non-owner attaches read+write
// only if parentPid names the block's owner, and is denied outright
// otherwise (the stub's own shmattach panics "access denied" on this
// path — spec.md §9's documented release-of-an-unheld-lock bug — this
// returns a clean error with no lock side effects instead).
func (m *Manager) Attach(id, pid, parentPid int) ([]Page, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.find(id)
	if err != nil {
		return nil, false, err
	}
	canWrite := b.Owner == pid
	if !canWrite && b.Flag == OwnerAndChildrenWrite {
		if parentPid != b.Owner {
			return nil, false, ErrAccessDenied
		}
		canWrite = true
	}
	if _, attached := b.attachers[pid]; !attached {
		b.RefCount++
	}
	b.attachers[pid] = canWrite
	return b.Pages, canWrite, nil
}

// CanWrite reports whether pid may write through its attach to id, per
// the permission Attach granted it at attach time.
func (m *Manager) CanWrite(id, pid int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.find(id)
	if err != nil {
		return false, err
	}
	canWrite, attached := b.attachers[pid]
	if !attached {
		return false, ErrNotAttached
	}
	return canWrite, nil
}

// Close implements shm_close(id, pid): detaches pid and decrements
// RefCount, freeing the slot once it reaches zero. Faithfully reproduces
// the documented limitation in spec.md §9: Close only removes pid's own
// attachment bookkeeping — it does not force-unmap the block from any
// other process that is still attached, so a process can keep reading
// and (if permitted) writing through pages whose owner has already
// closed its own handle. This is a known, intentionally-kept limitation,
// not the separate shm_attach locking bug, which is not reproduced.
func (m *Manager) Close(id, pid int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.find(id)
	if err != nil {
		return err
	}
	if _, ok := b.attachers[pid]; !ok {
		return ErrNotAttached
	}
	delete(b.attachers, pid)
	b.RefCount--
	if b.RefCount <= 0 {
		b.RefCount = -1
		b.Pages = nil
		b.attachers = nil
	}
	return nil
}

func (m *Manager) find(id int) (*Block, error) {
	if id < 0 || id >= len(m.blocks) {
		return nil, ErrNotFound
	}
	b := m.blocks[id]
	if b.RefCount == -1 {
		return nil, ErrNotFound
	}
	return b, nil
}

// Snapshot returns a shallow copy of every in-use block's metadata (not
// its page contents) for introspection.
func (m *Manager) Snapshot() []Block {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Block, 0, len(m.blocks))
	for _, b := range m.blocks {
		if b.RefCount != -1 {
			out = append(out, *b)
		}
	}
	return out
}
