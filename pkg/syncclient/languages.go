// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package syncclient

// extensionLanguages is the deterministic file-extension -> languageId
// table driving chunker dispatch; unknown extensions fall back to the
// chunker's line-window mode.
var extensionLanguages = map[string]string{
	".go":  "go",
	".py":  "python",
	".js":  "javascript",
	".jsx": "javascript",
	".ts":  "typescript",
	".tsx": "tsx",
}

// languageForExtension resolves a file extension (with leading dot) to a
// chunker languageId, or "" if no grammar is known for it.
func languageForExtension(ext string) string {
	return extensionLanguages[ext]
}

// trackedExtensions lists every extension the default scan includes. The
// watch command builds its watcher bridge without an extension allow-list
// and does not use this list.
func trackedExtensions() []string {
	exts := make([]string, 0, len(extensionLanguages))
	for ext := range extensionLanguages {
		exts = append(exts, ext)
	}
	return exts
}
