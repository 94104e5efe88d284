package calc

import (
	"fmt"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const defaultProgramCacheSize = 4096

// ProgramCache holds compiled programs by key. it is used only from the
// goroutine driving recalculation; workers receive programs already looked
// up.
type ProgramCache struct {
	lru *simplelru.LRU[uint64, *Program]
}

func NewProgramCache(size int) (*ProgramCache, error) {
	if size <= 0 {
		size = defaultProgramCacheSize
	}
	lru, err := simplelru.NewLRU[uint64, *Program](size, nil)
	if err != nil {
		return nil, fmt.Errorf("program cache: %w", err)
	}
	return &ProgramCache{lru: lru}, nil
}

func (pc *ProgramCache) Get(key uint64) (*Program, bool) {
	return pc.lru.Get(key)
}

func (pc *ProgramCache) Add(p *Program) {
	pc.lru.Add(p.Key, p)
}

func (pc *ProgramCache) Len() int {
	return pc.lru.Len()
}

// Purge drops every program, for when sheet or name bindings change
func (pc *ProgramCache) Purge() {
	pc.lru.Purge()
}
