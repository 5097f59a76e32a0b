package dto

// SectionURI identifies a course section from the path.
type SectionURI struct {
	Course  string `uri:"course" binding:"required,course"`
	Section string `uri:"section" binding:"required,slug"`
}

// LinkURI is the path of the start and await link endpoints.
type LinkURI struct {
	SectionURI
	Ticket string `uri:"uuid" binding:"required,slug,max=128"`
}

// ExerciseURI names one exercise of a section.
type ExerciseURI struct {
	SectionURI
	Exercise string `uri:"exercise" binding:"required,slug"`
}

// ScriptURI is the path of client push and pull requests.
type ScriptURI struct {
	ExerciseURI
	File  string `uri:"file" binding:"required,filename"`
	Token string `uri:"token" binding:"required,usertoken"`
}

// ExerciseFileURI names one file of an exercise.
type ExerciseFileURI struct {
	ExerciseURI
	File string `uri:"file" binding:"required,filename"`
}

// BundleURI is the path of a signed exercise bundle. Archive is <exercise>.zip.
type BundleURI struct {
	Signature string `uri:"signature" binding:"required,signature"`
	SectionURI
	Archive string `uri:"archive" binding:"required,endswith=.zip"`
}

// ExportQuery selects the export format.
type ExportQuery struct {
	Format string `form:"format" binding:"omitempty,oneof=csv pdf"`
}

// DevLoginURI is the path of the development session issuer.
type DevLoginURI struct {
	Username string `uri:"username" binding:"required,username"`
}

// LinkStarted is returned once a browser confirms a link.
type LinkStarted struct {
	Course   string `json:"course"`
	Section  string `json:"section"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

// SessionIssued is returned by the development login endpoint.
type SessionIssued struct {
	Username  string `json:"username"`
	ExpiresAt string `json:"expires_at"`
}
