package assets

import (
	"embed"
	"io/fs"
	"sort"
	"strings"
)

//go:embed migrations/*.sql boards/*.yaml
var FS embed.FS

// Migration is one embedded SQL file, applied in Name order.
type Migration struct {
	Name string
	SQL  string
}

// Migrations returns the embedded *.sql files sorted by name.
func Migrations() ([]Migration, error) {
	entries, err := fs.ReadDir(FS, "migrations")
	if err != nil {
		return nil, err
	}
	var out []Migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(strings.ToLower(e.Name()), ".sql") {
			continue
		}
		b, err := FS.ReadFile("migrations/" + e.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, Migration{Name: e.Name(), SQL: string(b)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// ClassicBoard returns the YAML definition of the reference board.
func ClassicBoard() ([]byte, error) {
	return FS.ReadFile("boards/classic.yaml")
}
