// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package chunker

import (
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// parserPools lazily builds one sync.Pool per language, mirroring the
// teacher's TreeSitterParser: tree-sitter parsers are not safe for
// concurrent use, so each chunking call borrows one from its language's
// pool and returns it when done.
type parserPools struct {
	once  sync.Once
	pools map[string]*sync.Pool
}

var globalPools = &parserPools{}

func (p *parserPools) init() {
	p.once.Do(func() {
		p.pools = make(map[string]*sync.Pool, len(languageRegistry))
		for id, spec := range languageRegistry {
			spec := spec
			p.pools[id] = &sync.Pool{
				New: func() any {
					parser := sitter.NewParser()
					parser.SetLanguage(spec.grammar())
					return parser
				},
			}
		}
	})
}

// borrow returns a ready-to-use parser for languageID and a release func.
func (p *parserPools) borrow(languageID string) (*sitter.Parser, func(), bool) {
	p.init()
	pool, ok := p.pools[languageID]
	if !ok {
		return nil, nil, false
	}
	parser, _ := pool.Get().(*sitter.Parser)
	return parser, func() { pool.Put(parser) }, true
}
