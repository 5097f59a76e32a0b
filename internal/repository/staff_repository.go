package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path"

	"github.com/noah-isme/asterism/pkg/storage"
)

// ErrRosterNotFound is returned when a course has no staff.json.
var ErrRosterNotFound = errors.New("staff roster not found")

// StaffRepository reads <course>/staff.json from the courses tree. The file
// holds a JSON array of usernames.
type StaffRepository struct {
	courses *storage.LocalStorage
}

// NewStaffRepository constructs a StaffRepository over the courses tree.
func NewStaffRepository(courses *storage.LocalStorage) *StaffRepository {
	return &StaffRepository{courses: courses}
}

// Roster returns the usernames listed as staff of course.
func (r *StaffRepository) Roster(ctx context.Context, course string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := r.courses.ReadFile(path.Join(course, "staff.json"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrRosterNotFound
		}
		return nil, err
	}
	var usernames []string
	if err := json.Unmarshal(raw, &usernames); err != nil {
		return nil, fmt.Errorf("parse staff roster for %s: %w", course, err)
	}
	return usernames, nil
}
