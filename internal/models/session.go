package models

import "github.com/golang-jwt/jwt/v5"

// SessionClaims is the payload of the browser session cookie.
type SessionClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// ExerciseFile is one source file of an exercise as handed to students.
type ExerciseFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
	Marked  bool   `json:"marked"`
}

// ExerciseDescriptor is returned to staff viewing an exercise.
type ExerciseDescriptor struct {
	Course    string         `json:"course"`
	Section   string         `json:"section"`
	Exercise  string         `json:"exercise"`
	BundleURL string         `json:"bundle_url"`
	Files     []ExerciseFile `json:"files"`
}
