// SPDX-License-Identifier: Apache-2.0

// Package migrations embeds the versioned SQL files that build the Postgres
// schema. Files are named NNN_description.sql and applied in version order.
package migrations

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"
)

//go:embed *.sql
var embedded embed.FS

// File is one embedded migration.
type File struct {
	Version  int
	Name     string
	SQL      string
	Checksum string
}

// Ordered returns the embedded migrations sorted by version.
func Ordered() ([]File, error) {
	return load(embedded)
}

func load(fsys fs.FS) ([]File, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, err
	}

	files := make([]File, 0, len(names))
	seen := make(map[int]string, len(names))
	for _, name := range names {
		version, err := parseVersion(name)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migration version %d used by both %s and %s", version, prev, name)
		}
		seen[version] = name

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		sum := sha256.Sum256(body)
		files = append(files, File{
			Version:  version,
			Name:     name,
			SQL:      string(body),
			Checksum: hex.EncodeToString(sum[:]),
		})
	}

	slices.SortFunc(files, func(a, b File) int { return a.Version - b.Version })
	return files, nil
}

// parseVersion reads the numeric prefix of NNN_description.sql.
func parseVersion(name string) (int, error) {
	stem := strings.TrimSuffix(path.Base(name), ".sql")
	prefix, desc, ok := strings.Cut(stem, "_")
	if !ok || desc == "" {
		return 0, fmt.Errorf("migration %s: want NNN_description.sql", name)
	}
	version, err := strconv.Atoi(prefix)
	if err != nil || version <= 0 {
		return 0, fmt.Errorf("migration %s: invalid version prefix %q", name, prefix)
	}
	return version, nil
}
