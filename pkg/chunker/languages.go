// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package chunker

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// languageSpec is the per-language data table the chunker walks against.
// The chunker never branches on language identity beyond selecting a spec:
// the semantic-unit set and kind map are both data, per the "dynamic
// dispatch on AST parsers" design note.
type languageSpec struct {
	grammar func() *sitter.Language

	// kindOf maps an AST node type to a chunk Kind. Node types absent
	// from this map are not semantic units and are only ever considered
	// via descent into named children.
	kindOf map[string]Kind

	// asyncNodeTypes marks node types whose presence as a direct child
	// (named or anonymous) means the enclosing function/method is async.
	asyncNodeTypes map[string]bool

	// exportedFn decides Metadata.Exported from a node's extracted name.
	exportedFn func(name string) bool
}

func exportedByGoCase(name string) bool {
	if name == "" {
		return false
	}
	r := name[0]
	return r >= 'A' && r <= 'Z'
}

func exportedAlways(string) bool { return true } // dynamic languages: visibility isn't name-encoded; treat as exported by default

var goSpec = languageSpec{
	grammar: golang.GetLanguage,
	kindOf: map[string]Kind{
		"function_declaration": KindFunction,
		"method_declaration":   KindMethod,
		"type_spec":            KindType,
		"interface_type":       KindInterface,
		"struct_type":          KindStruct,
	},
	exportedFn: exportedByGoCase,
}

var pythonSpec = languageSpec{
	grammar: python.GetLanguage,
	kindOf: map[string]Kind{
		"function_definition": KindFunction,
		"class_definition":    KindClass,
	},
	asyncNodeTypes: map[string]bool{"async": true},
	exportedFn:     exportedAlways,
}

var javascriptSpec = languageSpec{
	grammar: javascript.GetLanguage,
	kindOf: map[string]Kind{
		"function_declaration":     KindFunction,
		"method_definition":        KindMethod,
		"class_declaration":        KindClass,
		"arrow_function":           KindFunction,
		"function":                 KindFunction,
		"generator_function_declaration": KindFunction,
	},
	asyncNodeTypes: map[string]bool{"async": true},
	exportedFn:     exportedAlways,
}

var typescriptSpec = languageSpec{
	grammar: typescript.GetLanguage,
	kindOf: map[string]Kind{
		"function_declaration": KindFunction,
		"method_definition":    KindMethod,
		"class_declaration":    KindClass,
		"interface_declaration": KindInterface,
		"type_alias_declaration": KindType,
		"enum_declaration":     KindEnum,
		"arrow_function":       KindFunction,
	},
	asyncNodeTypes: map[string]bool{"async": true},
	exportedFn:     exportedAlways,
}

var languageRegistry = map[string]languageSpec{
	"go":         goSpec,
	"python":     pythonSpec,
	"javascript": javascriptSpec,
	"typescript": typescriptSpec,
	"tsx":        typescriptSpec,
}

// lookupLanguage returns the spec for a languageId and whether one exists.
func lookupLanguage(languageID string) (languageSpec, bool) {
	spec, ok := languageRegistry[languageID]
	return spec, ok
}
