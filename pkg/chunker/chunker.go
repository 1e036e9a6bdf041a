// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package chunker

import (
	"context"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/kraklabs/idxsync/pkg/hasher"
)

// Chunk segments source into an ordered, gap-free, non-overlapping list of
// Chunks. It never returns an error to the caller: parser init failure or
// per-file parse failure downgrades to fallback line-window chunking, and
// an oversized leaf with no qualifying child is emitted whole rather than
// dropped. Chunking is best-effort by design.
func Chunk(source []byte, languageID, relativePath string, cfg Config) []Chunk {
	spec, ok := lookupLanguage(languageID)
	if !ok {
		return fallbackChunk(source, languageID, relativePath, cfg)
	}

	parser, release, ok := globalPools.borrow(languageID)
	if !ok {
		return fallbackChunk(source, languageID, relativePath, cfg)
	}
	defer release()

	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil || tree == nil {
		return fallbackChunk(source, languageID, relativePath, cfg)
	}
	root := tree.RootNode()
	if root == nil {
		return fallbackChunk(source, languageID, relativePath, cfg)
	}

	w := &walker{
		source:     source,
		spec:       spec,
		cfg:        cfg,
		languageID: languageID,
		relPath:    relativePath,
	}
	w.walk(root, "")

	chunks := w.chunks
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Reference.LineStart < chunks[j].Reference.LineStart
	})

	if len(chunks) == 0 {
		return fallbackChunk(source, languageID, relativePath, cfg)
	}

	return fillGaps(source, languageID, relativePath, cfg, chunks)
}

// walker accumulates chunks while traversing the AST in document order.
type walker struct {
	source     []byte
	spec       languageSpec
	cfg        Config
	languageID string
	relPath    string
	chunks     []Chunk
}

func (w *walker) walk(node *sitter.Node, parentName string) {
	kind, isSemanticUnit := w.spec.kindOf[node.Type()]
	if !isSemanticUnit {
		w.descendChildren(node, parentName)
		return
	}

	start, end := trimRange(w.source, int(node.StartByte()), int(node.EndByte()))
	size := end - start

	switch {
	case size < w.cfg.MinChunkSize:
		newParent := w.extractName(node)
		if newParent == "" {
			newParent = parentName
		}
		w.descendChildren(node, newParent)

	case size <= w.cfg.MaxChunkSize:
		w.emit(node, kind, parentName, start, end)

	default:
		before := len(w.chunks)
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			if _, ok := w.spec.kindOf[child.Type()]; ok {
				w.walk(child, w.extractNameOr(node, parentName))
			}
		}
		if len(w.chunks) == before {
			// No qualifying child: tolerate the oversize rather than
			// lose the node.
			w.emit(node, kind, parentName, start, end)
		}
	}
}

func (w *walker) extractNameOr(node *sitter.Node, fallback string) string {
	if n := w.extractName(node); n != "" {
		return n
	}
	return fallback
}

func (w *walker) descendChildren(node *sitter.Node, parentName string) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		w.walk(node.NamedChild(i), parentName)
	}
}

func (w *walker) emit(node *sitter.Node, kind Kind, parentName string, start, end int) {
	text := w.source[start:end]
	lineStart, lineEnd := lineRange(w.source, start, end)

	meta := Metadata{Parent: parentName}
	name := w.extractName(node)
	meta.Async = w.isAsync(node)
	if name != "" {
		meta.Exported = w.spec.exportedFn(name)
	}
	if kind == KindFunction || kind == KindMethod {
		params, ret := w.extractSignature(node)
		meta.Parameters = params
		meta.ReturnType = ret
	}

	w.chunks = append(w.chunks, Chunk{
		Hash:       hasher.ContentDigest(text),
		Kind:       kind,
		Name:       name,
		LanguageID: w.languageID,
		Reference: Reference{
			RelativePath: w.relPath,
			LineStart:    lineStart,
			LineEnd:      lineEnd,
			CharStart:    start,
			CharEnd:      end,
		},
		CharCount: end - start,
		Metadata:  meta,
	})
}

// extractName prefers the "name" field, falling back to "identifier", with
// the arrow-function-assigned-to-a-variable-declarator special case: the
// declarator's name is used instead of the (missing) function name. An
// export wrapper node (no name field of its own, one named child) simply
// falls through to its child via the normal descent path, so no special
// case is needed here for that.
func (w *walker) extractName(node *sitter.Node) string {
	if n := node.ChildByFieldName("name"); n != nil {
		return string(w.source[n.StartByte():n.EndByte()])
	}
	if node.Type() == "arrow_function" || node.Type() == "func_literal" {
		if parent := node.Parent(); parent != nil && parent.Type() == "variable_declarator" {
			if n := parent.ChildByFieldName("name"); n != nil {
				return string(w.source[n.StartByte():n.EndByte()])
			}
		}
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "identifier" || child.Type() == "type_identifier" {
			return string(w.source[child.StartByte():child.EndByte()])
		}
	}
	return ""
}

func (w *walker) isAsync(node *sitter.Node) bool {
	if len(w.spec.asyncNodeTypes) == 0 {
		return false
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if w.spec.asyncNodeTypes[child.Type()] {
			return true
		}
	}
	return false
}

// extractSignature returns a best-effort parameter list and return type
// string for function-like nodes. For Go it delegates to the adapted
// goparams splitter on the raw parameter-list text; for other languages it
// returns the raw per-parameter text verbatim (good enough for search
// metadata, which never re-parses it).
func (w *walker) extractSignature(node *sitter.Node) (params []string, returnType string) {
	paramsNode := node.ChildByFieldName("parameters")
	if paramsNode != nil {
		raw := string(w.source[paramsNode.StartByte():paramsNode.EndByte()])
		if w.languageID == "go" {
			for _, p := range parseGoParams(raw) {
				params = append(params, p.Name+" "+p.Type)
			}
		} else {
			params = splitParamList(raw)
		}
	}
	if resultNode := node.ChildByFieldName("result"); resultNode != nil {
		returnType = string(w.source[resultNode.StartByte():resultNode.EndByte()])
	}
	if retNode := node.ChildByFieldName("return_type"); retNode != nil {
		returnType = string(w.source[retNode.StartByte():retNode.EndByte()])
	}
	return params, returnType
}

// trimRange trims ASCII whitespace from both ends of source[start:end] and
// returns the adjusted, still-valid byte range. The hashed/stored range is
// always this trimmed range, so readChunk(reference) round-trips to the
// same hash (see DESIGN.md Open Question decision #1).
func trimRange(source []byte, start, end int) (int, int) {
	for start < end && isSpaceByte(source[start]) {
		start++
	}
	for end > start && isSpaceByte(source[end-1]) {
		end--
	}
	return start, end
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// lineRange converts a byte offset range into a 1-indexed, end-inclusive
// line range.
func lineRange(source []byte, start, end int) (lineStart, lineEnd int) {
	lineStart = 1 + countNewlines(source[:start])
	if end > start {
		lineEnd = 1 + countNewlines(source[:end-1])
	} else {
		lineEnd = lineStart
	}
	return lineStart, lineEnd
}

func countNewlines(b []byte) int {
	n := 0
	for _, c := range b {
		if c == '\n' {
			n++
		}
	}
	return n
}

func splitParamList(raw string) []string {
	raw = trimOuterParens(raw)
	if raw == "" {
		return nil
	}
	var out []string
	depth := 0
	start := 0
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case '(', '[', '{', '<':
			depth++
		case ')', ']', '}', '>':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, trimSpaceASCII(raw[start:i]))
				start = i + 1
			}
		}
	}
	if tail := trimSpaceASCII(raw[start:]); tail != "" {
		out = append(out, tail)
	}
	return out
}

func trimOuterParens(s string) string {
	s = trimSpaceASCII(s)
	if len(s) >= 2 && s[0] == '(' && s[len(s)-1] == ')' {
		return trimSpaceASCII(s[1 : len(s)-1])
	}
	return s
}

func trimSpaceASCII(s string) string {
	start := 0
	for start < len(s) && isSpaceByte(s[start]) {
		start++
	}
	end := len(s)
	for end > start && isSpaceByte(s[end-1]) {
		end--
	}
	return s[start:end]
}
