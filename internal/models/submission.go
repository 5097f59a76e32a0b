package models

import "time"

// Topic groups change events for one exercise.
type Topic struct {
	Course   string `json:"course"`
	Section  string `json:"section"`
	Exercise string `json:"exercise"`
}

// String renders the topic as course/section/exercise.
func (t Topic) String() string {
	return t.Course + "/" + t.Section + "/" + t.Exercise
}

// FileKey addresses one file of an exercise, independent of the student.
type FileKey struct {
	Topic
	File string `json:"file"`
}

// Submission is the latest pushed content of a file for one student.
type Submission struct {
	Username  string    `json:"username"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// ChangeEvent is emitted once per successful save. It is never persisted.
type ChangeEvent struct {
	Topic    Topic  `json:"-"`
	File     string `json:"file"`
	Username string `json:"username"`
	Content  string `json:"content"`
}
