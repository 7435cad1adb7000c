// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package slug turns titles and uploaded file names into safe path segments.
package slug

import (
	"path"
	"regexp"
	"strings"
)

var (
	// unsafe matches anything that isn't a lowercase letter, digit or hyphen.
	unsafe = regexp.MustCompile(`[^a-z0-9-]+`)
	// multipleHyphens collapses consecutive hyphens into one.
	multipleHyphens = regexp.MustCompile(`-{2,}`)
)

// Generate creates a lowercase hyphenated slug. Runs of whitespace,
// underscores and dots become one hyphen; other symbols are dropped.
// Example: "Hello, World! 2026" -> "hello-world-2026"
func Generate(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '_' || r == '.'
	}), "-")
	s = unsafe.ReplaceAllString(s, "")
	s = multipleHyphens.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Filename slugs the base name of an upload and keeps a cleaned extension.
// A name with nothing usable left becomes "file".
// Example: "../My Cover Photo.PNG" -> "my-cover-photo.png"
func Filename(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	ext := path.Ext(name)
	base := Generate(strings.TrimSuffix(name, ext))
	ext = unsafe.ReplaceAllString(strings.ToLower(strings.TrimPrefix(ext, ".")), "")

	if base == "" {
		base = "file"
	}
	if ext == "" {
		return base
	}
	return base + "." + ext
}
