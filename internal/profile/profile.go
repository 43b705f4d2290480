// Package profile manages the persistent shell-startup file (for example
// ~/.bashrc) that rovprep uses to hold the registry credential, the alias
// and the logo render line.
//
// A Profile is a snapshot of the file taken by Open. Mutations write the
// file atomically and refresh the snapshot. Entries are only ever added or
// replaced, never deleted.
package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"
)

// BackupSuffix is appended to the profile path for the copy taken before
// an in-place substitution.
const BackupSuffix = ".bak"

const maxLinks = 40

var ErrInvalidName = errors.New("invalid variable name")

var (
	exportRE = regexp.MustCompile(`^\s*export\s+([A-Za-z_][A-Za-z0-9_]*)=(.*)$`)
	nameRE   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Mutation describes what SetExport did to the file.
type Mutation int

const (
	Appended Mutation = iota
	Replaced
)

func (m Mutation) String() string {
	if m == Replaced {
		return "replaced"
	}
	return "appended"
}

type Profile struct {
	fs    afero.Fs
	path  string
	lines []string
	mode  os.FileMode
}

// Open reads the profile at path. A missing file reads as an empty profile;
// it is created on the first mutation.
func Open(fs afero.Fs, path string) (*Profile, error) {
	p := &Profile{fs: fs, path: path, mode: 0o644}
	if err := p.reload(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Profile) Path() string {
	return p.path
}

// BackupPath is where the pre-substitution copy of the profile is kept.
func (p *Profile) BackupPath() string {
	return p.path + BackupSuffix
}

// Lines returns a copy of the current lines, without line terminators.
func (p *Profile) Lines() []string {
	out := make([]string, len(p.lines))
	copy(out, p.lines)
	return out
}

// Contains reports whether any line contains marker.
func (p *Profile) Contains(marker string) bool {
	for _, l := range p.lines {
		if strings.Contains(l, marker) {
			return true
		}
	}
	return false
}

// AppendOnce appends line unless a line containing marker is already
// present. It reports whether the file was modified.
func (p *Profile) AppendOnce(marker, line string) (bool, error) {
	if marker == "" {
		marker = line
	}
	if p.Contains(marker) {
		return false, nil
	}
	if err := p.write(append(p.Lines(), line)); err != nil {
		return false, err
	}
	return true, nil
}

// Export returns the value assigned to name by an export line, if any.
func (p *Profile) Export(name string) (string, bool) {
	for _, l := range p.lines {
		if n, v, ok := parseExport(l); ok && n == name {
			return v, true
		}
	}
	return "", false
}

// HasExport reports whether an export line for name exists.
func (p *Profile) HasExport(name string) bool {
	_, ok := p.Export(name)
	return ok
}

// Exports returns every exported variable. When a name is exported more
// than once the last assignment wins, as it would in a shell.
func (p *Profile) Exports() map[string]string {
	out := map[string]string{}
	for _, l := range p.lines {
		if n, v, ok := parseExport(l); ok {
			out[n] = v
		}
	}
	return out
}

// Resolve returns the value name is exported with after the parameter
// expansion a shell would apply when sourcing the profile. Single-quoted
// values are taken literally; $NAME and ${NAME} in double-quoted and bare
// values are looked up through getenv, usually os.Getenv. When name is
// exported more than once the last assignment wins.
func (p *Profile) Resolve(name string, getenv func(string) string) (string, bool) {
	raw, found := "", false
	for _, l := range p.lines {
		m := exportRE.FindStringSubmatch(l)
		if m != nil && m[1] == name {
			raw, found = strings.TrimSpace(m[2]), true
		}
	}
	if !found {
		return "", false
	}
	return expand(raw, getenv), true
}

// SetExport makes the profile hold exactly one `export name="value"` line.
// A new line is appended when none exists. Otherwise the first existing
// line is replaced in place, any duplicates are dropped, and the previous
// file content is kept at BackupPath.
func (p *Profile) SetExport(name, value string) (Mutation, error) {
	if !nameRE.MatchString(name) {
		return Appended, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	line := ExportLine(name, value)

	if !p.HasExport(name) {
		return Appended, p.write(append(p.Lines(), line))
	}

	if err := p.backup(); err != nil {
		return Replaced, err
	}

	next := make([]string, 0, len(p.lines))
	replaced := false
	for _, l := range p.lines {
		if n, _, ok := parseExport(l); ok && n == name {
			if !replaced {
				next = append(next, line)
				replaced = true
			}
			continue
		}
		next = append(next, l)
	}
	return Replaced, p.write(next)
}

// ExportLine renders the canonical export line for name. The value is
// double quoted with the characters the shell would expand escaped.
func ExportLine(name, value string) string {
	return fmt.Sprintf("export %s=%s", name, shellQuote(value))
}

func shellQuote(v string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range v {
		switch r {
		case '\\', '"', '$', '`':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

func parseExport(line string) (name, value string, ok bool) {
	m := exportRE.FindStringSubmatch(line)
	if m == nil {
		return "", "", false
	}
	return m[1], unquote(strings.TrimSpace(m[2])), true
}

func unquote(v string) string {
	if len(v) >= 2 {
		switch {
		case v[0] == '"' && v[len(v)-1] == '"':
			return unescape(v[1 : len(v)-1])
		case v[0] == '\'' && v[len(v)-1] == '\'':
			return v[1 : len(v)-1]
		}
	}
	return v
}

func unescape(v string) string {
	var b strings.Builder
	escaped := false
	for _, r := range v {
		if escaped {
			switch r {
			case '\\', '"', '$', '`':
			default:
				b.WriteByte('\\')
			}
			b.WriteRune(r)
			escaped = false
			continue
		}
		if r == '\\' {
			escaped = true
			continue
		}
		b.WriteRune(r)
	}
	if escaped {
		b.WriteByte('\\')
	}
	return b.String()
}

func expand(v string, getenv func(string) string) string {
	if len(v) >= 2 && v[0] == '\'' && v[len(v)-1] == '\'' {
		return v[1 : len(v)-1]
	}
	quoted := len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"'
	if quoted {
		v = v[1 : len(v)-1]
	}

	// Escaped characters are copied as is; the runs between them go
	// through os.Expand.
	var b strings.Builder
	run := 0
	for i := 0; i < len(v)-1; i++ {
		if v[i] != '\\' {
			continue
		}
		b.WriteString(os.Expand(v[run:i], getenv))
		next := v[i+1]
		if quoted && !strings.ContainsRune("\\\"$`", rune(next)) {
			b.WriteByte('\\')
		}
		b.WriteByte(next)
		i++
		run = i + 1
	}
	b.WriteString(os.Expand(v[run:], getenv))
	return b.String()
}

func (p *Profile) reload() error {
	fi, err := p.fs.Stat(p.path)
	if errors.Is(err, os.ErrNotExist) {
		p.lines = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not stat profile %s: %w", p.path, err)
	}
	p.mode = fi.Mode().Perm()

	b, err := afero.ReadFile(p.fs, p.path)
	if err != nil {
		return fmt.Errorf("could not read profile %s: %w", p.path, err)
	}
	content := strings.TrimSuffix(string(b), "\n")
	if content == "" {
		p.lines = nil
		return nil
	}
	p.lines = strings.Split(content, "\n")
	return nil
}

// target follows symbolic links from the profile path, as kept by dotfile
// managers, so a write replaces the linked file and leaves the link alone.
// Filesystems without link support use the path as is.
func (p *Profile) target() (string, error) {
	lstater, ok := p.fs.(afero.Lstater)
	if !ok {
		return p.path, nil
	}
	reader, ok := p.fs.(afero.LinkReader)
	if !ok {
		return p.path, nil
	}

	path := p.path
	for i := 0; i < maxLinks; i++ {
		fi, lstatCalled, err := lstater.LstatIfPossible(path)
		if errors.Is(err, os.ErrNotExist) {
			return path, nil
		}
		if err != nil {
			return "", fmt.Errorf("could not stat profile %s: %w", path, err)
		}
		if !lstatCalled || fi.Mode()&os.ModeSymlink == 0 {
			return path, nil
		}
		dest, err := reader.ReadlinkIfPossible(path)
		if err != nil {
			return "", fmt.Errorf("could not resolve profile link %s: %w", path, err)
		}
		if !filepath.IsAbs(dest) {
			dest = filepath.Join(filepath.Dir(path), dest)
		}
		path = dest
	}
	return "", fmt.Errorf("could not resolve profile %s: too many links", p.path)
}

func (p *Profile) backup() error {
	b, err := afero.ReadFile(p.fs, p.path)
	if err != nil {
		return fmt.Errorf("could not read profile for backup: %w", err)
	}
	if err := afero.WriteFile(p.fs, p.BackupPath(), b, p.mode); err != nil {
		return fmt.Errorf("could not write profile backup %s: %w", p.BackupPath(), err)
	}
	return nil
}

// write replaces the file with lines through a temporary file in the same
// directory, so readers never observe a partially written profile.
func (p *Profile) write(lines []string) error {
	target, err := p.target()
	if err != nil {
		return err
	}
	dir := filepath.Dir(target)
	if err := p.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("could not create %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(p.fs, dir, "."+filepath.Base(target)+"-*")
	if err != nil {
		return fmt.Errorf("could not create temporary profile: %w", err)
	}
	tmpName := tmp.Name()

	content := strings.Join(lines, "\n")
	if len(lines) > 0 {
		content += "\n"
	}
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		_ = p.fs.Remove(tmpName)
		return fmt.Errorf("could not write temporary profile: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = p.fs.Remove(tmpName)
		return fmt.Errorf("could not close temporary profile: %w", err)
	}
	if err := p.fs.Chmod(tmpName, p.mode); err != nil {
		_ = p.fs.Remove(tmpName)
		return fmt.Errorf("could not set profile permissions: %w", err)
	}
	if err := p.fs.Rename(tmpName, target); err != nil {
		_ = p.fs.Remove(tmpName)
		return fmt.Errorf("could not replace profile %s: %w", p.path, err)
	}

	p.lines = lines
	return nil
}
