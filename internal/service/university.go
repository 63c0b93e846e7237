package service

import (
	"sort"
	"strings"

	"patchdb/internal/config"
	"patchdb/internal/models"
)

// UniversityDirectory is the immutable list of known universities, keyed by code.
type UniversityDirectory struct {
	list   []config.University
	byCode map[string]config.University
}

// NewUniversityDirectory indexes universities by upper-cased code.
func NewUniversityDirectory(universities []config.University) *UniversityDirectory {
	d := &UniversityDirectory{byCode: make(map[string]config.University, len(universities))}
	for _, u := range universities {
		d.byCode[strings.ToUpper(u.Code)] = u
		d.list = append(d.list, u)
	}
	sort.Slice(d.list, func(i, j int) bool { return d.list[i].Name < d.list[j].Name })
	return d
}

// All returns every university sorted by name.
func (d *UniversityDirectory) All() []config.University {
	out := make([]config.University, len(d.list))
	copy(out, d.list)
	return out
}

// Get returns the university with code.
func (d *UniversityDirectory) Get(code string) (config.University, error) {
	u, ok := d.byCode[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return config.University{}, models.NewNotFoundError("University", code)
	}
	return u, nil
}

// Valid reports whether code names a known university.
func (d *UniversityDirectory) Valid(code string) bool {
	_, ok := d.byCode[strings.ToUpper(strings.TrimSpace(code))]
	return ok
}

// Canonical returns the code as stored in the directory.
func (d *UniversityDirectory) Canonical(code string) (string, error) {
	u, ok := d.byCode[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return "", models.NewBadRequestError(models.ErrIDInvalidUniversityCode, "Unknown university code "+code)
	}
	return u.Code, nil
}

// ValidProgram reports whether program is offered by the university. Universities
// without a program list accept any program.
func (d *UniversityDirectory) ValidProgram(code, program string) bool {
	u, ok := d.byCode[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return false
	}
	if len(u.Programs) == 0 {
		return true
	}
	for _, p := range u.Programs {
		if strings.EqualFold(p, strings.TrimSpace(program)) {
			return true
		}
	}
	return false
}
