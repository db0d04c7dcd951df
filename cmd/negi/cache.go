package main

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/negilang/negi/pkg/bytecode"
	"github.com/negilang/negi/pkg/scope"
)

// compiledUnit is what one program cache entry holds: a compiled command
// stream plus the symbol table pkg/vm needs to run it. Both come back out
// of pkg/compiler.Compile together, so they're cached together.
type compiledUnit struct {
	prog   *bytecode.Program
	scopes *scope.Scopes
}

// programCache is an in-process LRU of compiledUnit keyed by a digest of
// the source text. A REPL session or a batch run over a fixed corpus of
// .negi fixtures commonly re-evaluates the same snippet; this skips
// lexing, parsing and codegen on a repeat.
//
// It never holds disk-serialized .nbc bytes — those are a separate,
// explicit "negi compile" artifact. This cache only ever shortcuts the
// in-process compile step.
type programCache struct {
	cache *lru.Cache[string, compiledUnit]
}

// newProgramCache builds a cache holding up to size compiled units.
func newProgramCache(size int) *programCache {
	c, err := lru.New[string, compiledUnit](size)
	if err != nil {
		// Only returned by golang-lru for a non-positive size; the
		// --cache-size flag defaults to 64 but is passed through unchecked.
		panic(err)
	}
	return &programCache{cache: c}
}

// key digests src so the cache never has to hold the source text itself
// alongside the compiled form.
func (pc *programCache) key(src string) string {
	sum := sha256.Sum256([]byte(src))
	return hex.EncodeToString(sum[:])
}

// get returns the cached unit for src and whether it was present.
func (pc *programCache) get(src string) (compiledUnit, bool) {
	return pc.cache.Get(pc.key(src))
}

// put stores the compiled unit for src, evicting the least-recently-used
// entry if the cache is already at capacity.
func (pc *programCache) put(src string, unit compiledUnit) {
	pc.cache.Add(pc.key(src), unit)
}
