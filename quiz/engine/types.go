package engine

import "time"

// Role identifies one of the two participants of a session.
type Role string

const (
	RoleExaminer Role = "examiner"
	RoleLearner  Role = "learner"
)

// ValidRole reports whether s names a known role.
func ValidRole(s string) bool {
	return Role(s) == RoleExaminer || Role(s) == RoleLearner
}

// GradeStatus is the examiner's qualitative judgment of a spoken answer.
type GradeStatus string

const (
	GradeOK   GradeStatus = "ok"
	GradeMeh  GradeStatus = "meh"
	GradeFail GradeStatus = "fail"
)

// Valid reports whether g is one of the three known grade statuses.
func (g GradeStatus) Valid() bool {
	return g == GradeOK || g == GradeMeh || g == GradeFail
}

// PDFInfo describes one uploaded study document. Only metadata is kept;
// text extraction happens on the client side.
type PDFInfo struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// State is the serializable session state the engine operates on.
type State struct {
	PDFs         []PDFInfo           `json:"pdfs"`
	Questions    []string            `json:"questions"`
	CurrentIndex int                 `json:"current_index"`
	Revealed     bool                `json:"revealed"`
	Grades       map[int]GradeStatus `json:"grades"`
}

// NewState returns an empty session state.
func NewState() *State {
	return &State{
		PDFs:      []PDFInfo{},
		Questions: []string{},
		Grades:    make(map[int]GradeStatus),
	}
}

// Learner view statuses.
const (
	StatusLocked    = "locked"
	StatusRevealed  = "revealed"
	StatusCompleted = "completed"
)

// LearnerView is the projection served to the learner role. Question text is
// only present while the current question is revealed.
type LearnerView struct {
	Status   string `json:"status"`
	Index    int    `json:"index"`
	Question string `json:"question,omitempty"`
	Total    int    `json:"total"`
}

// Snapshot is the full session projection served to the examiner role.
type Snapshot struct {
	SessionID    string              `json:"session_id"`
	Questions    []string            `json:"questions"`
	CurrentIndex int                 `json:"current_index"`
	Revealed     bool                `json:"revealed"`
	Grades       map[int]GradeStatus `json:"grades"`
	PDFs         []PDFInfo           `json:"pdfs"`
}
