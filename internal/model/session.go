package model

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"time"
)

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
)

// Difficulty levels accepted on session problems (stored lowercase).
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

type Decision string

const (
	DecisionMoveForward Decision = "move_forward"
	DecisionOnHold      Decision = "on_hold"
	DecisionRejected    Decision = "rejected"
)

// Valid reports whether d is one of the known decisions.
func (d Decision) Valid() bool {
	switch d {
	case DecisionMoveForward, DecisionOnHold, DecisionRejected:
		return true
	}
	return false
}

// Role is a connected user's role within a session.
type Role string

const (
	RoleHost        Role = "host"
	RoleParticipant Role = "participant"
	RoleNone        Role = ""
)

// Problem is one entry of a session's fixed problem list.
type Problem struct {
	Title      string `json:"title" bson:"title"`
	Difficulty string `json:"difficulty" bson:"difficulty"`
}

// Timing records how long a problem was active. EndTime and Duration stay nil
// while the problem is the active one.
type Timing struct {
	ProblemID string     `json:"problemId" bson:"problemId"`
	StartTime time.Time  `json:"startTime" bson:"startTime"`
	EndTime   *time.Time `json:"endTime" bson:"endTime"`
	Duration  *int64     `json:"duration" bson:"duration"` // seconds
}

// Open reports whether the entry has not been closed yet.
func (t Timing) Open() bool {
	return t.EndTime == nil
}

// Session is one hosted interview between a host and at most one participant.
type Session struct {
	ID          string        `json:"id" bson:"_id,omitempty"`
	Problems    []Problem     `json:"problems" bson:"problems"`
	Problem     string        `json:"problem" bson:"problem"`       // active problem title
	Difficulty  string        `json:"difficulty" bson:"difficulty"` // active problem difficulty
	Host        string        `json:"host" bson:"host"`
	Participant string        `json:"participant,omitempty" bson:"participant"`
	Status      SessionStatus `json:"status" bson:"status"`
	RoomID      string        `json:"roomId" bson:"roomId"`

	// Host-authored evaluation
	Notes           string    `json:"notes,omitempty" bson:"notes"`
	Rating          int       `json:"rating,omitempty" bson:"rating"`
	Tags            []string  `json:"tags,omitempty" bson:"tags"`
	Decision        *Decision `json:"decision,omitempty" bson:"decision"`
	TimeTaken       int       `json:"timeTaken" bson:"timeTaken"` // minutes
	TestCasesPassed string    `json:"testCasesPassed,omitempty" bson:"testCasesPassed"`

	Timings   []Timing          `json:"timings" bson:"timings"`
	SavedCode map[string]string `json:"savedCode,omitempty" bson:"savedCode"`

	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// FindProblem returns the list entry with the given title.
func (s *Session) FindProblem(title string) (Problem, bool) {
	for _, p := range s.Problems {
		if p.Title == title {
			return p, true
		}
	}
	return Problem{}, false
}

// OpenTiming returns the index of the open timing entry, or -1.
func (s *Session) OpenTiming() int {
	for i := len(s.Timings) - 1; i >= 0; i-- {
		if s.Timings[i].Open() {
			return i
		}
	}
	return -1
}

// RoleOf returns the role userID holds in the session.
func (s *Session) RoleOf(userID string) Role {
	switch {
	case userID == "":
		return RoleNone
	case userID == s.Host:
		return RoleHost
	case userID == s.Participant:
		return RoleParticipant
	}
	return RoleNone
}

// VisibleTo returns the session as userID may see it. Only the host sees the
// evaluation, and only members see saved code. The receiver is not modified.
func (s *Session) VisibleTo(userID string) *Session {
	role := s.RoleOf(userID)
	if role == RoleHost {
		return s
	}
	c := *s
	c.Notes, c.Rating, c.Tags, c.Decision, c.TestCasesPassed = "", 0, nil, nil, ""
	if role == RoleNone {
		c.SavedCode = nil
	}
	return &c
}

// IsActive reports whether the session still accepts live actions.
func (s *Session) IsActive() bool {
	return s.Status == SessionActive
}

// CodeFor returns the checkpointed code for a problem title.
func (s *Session) CodeFor(title string) (string, bool) {
	code, ok := s.SavedCode[ProblemKey(title)]
	return code, ok
}

var (
	nonSlug   = regexp.MustCompile(`[^a-z0-9]+`)
	canonical = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)
)

// Slug lowercases title and joins its ASCII alphanumeric runs with dashes.
// Distinct titles may share a slug, and a title without ASCII letters or
// digits has an empty one.
func Slug(title string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(title), "-"), "-")
}

// ProblemKey derives the identifier used for savedCode keys and code
// endpoints. A title that is already a key maps to itself; any other title
// gets its slug suffixed with a hash of the raw title, so every non-empty
// title has a distinct key made of [a-z0-9-] only.
func ProblemKey(title string) string {
	if title == "" || canonical.MatchString(title) {
		return title
	}
	h := fnv.New32a()
	h.Write([]byte(title))
	sum := fmt.Sprintf("%08x", h.Sum32())
	if slug := Slug(title); slug != "" {
		return slug + "-" + sum
	}
	return sum
}

// TotalMinutes sums entry durations and rounds to whole minutes.
func TotalMinutes(timings []Timing) int {
	var total int64
	for _, t := range timings {
		if t.Duration != nil {
			total += *t.Duration
		}
	}
	return int((total + 30) / 60) // half up
}

// SessionUpdate is a partial update of the evaluation fields. Nil fields are
// left untouched.
type SessionUpdate struct {
	Notes           *string   `json:"notes,omitempty"`
	Rating          *int      `json:"rating,omitempty" validate:"omitempty,min=0,max=5"`
	Tags            *[]string `json:"tags,omitempty"`
	TimeTaken       *int      `json:"timeTaken,omitempty" validate:"omitempty,min=0"`
	TestCasesPassed *string   `json:"testCasesPassed,omitempty"`
}

// Empty reports whether no field is set.
func (u SessionUpdate) Empty() bool {
	return u.Notes == nil && u.Rating == nil && u.Tags == nil && u.TimeTaken == nil && u.TestCasesPassed == nil
}

// NotesBundle is the host-only evaluation view of a session.
type NotesBundle struct {
	Notes           string    `json:"notes"`
	Rating          int       `json:"rating"`
	Tags            []string  `json:"tags"`
	Decision        *Decision `json:"decision"`
	TimeTaken       int       `json:"timeTaken"`
	TestCasesPassed string    `json:"testCasesPassed"`
	Timings         []Timing  `json:"timings"`
}

// NotesBundle extracts the evaluation fields.
func (s *Session) NotesBundle() *NotesBundle {
	return &NotesBundle{
		Notes:           s.Notes,
		Rating:          s.Rating,
		Tags:            s.Tags,
		Decision:        s.Decision,
		TimeTaken:       s.TimeTaken,
		TestCasesPassed: s.TestCasesPassed,
		Timings:         s.Timings,
	}
}

// SessionView is a session with host and participant denormalized.
type SessionView struct {
	*Session
	Host        *UserSummary `json:"host"`
	Participant *UserSummary `json:"participant,omitempty"`
}

// Checkpoint describes the outgoing-problem write of a problem switch.
type Checkpoint struct {
	Title string    // problem being left; must still be the active one
	Code  *string   // nil keeps any previously saved code
	At    time.Time // closes the open timing entry
}
