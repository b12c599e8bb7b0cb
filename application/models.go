package application

import "time"

// Status is the lifecycle state of an application. Transitions are monotonic:
// in_progress -> submitted -> claimed -> scored -> approved|denied.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusSubmitted  Status = "submitted"
	StatusClaimed    Status = "claimed"
	StatusScored     Status = "scored"
	StatusApproved   Status = "approved"
	StatusDenied     Status = "denied"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusDenied
}

// Decision is the review outcome recorded alongside a reason.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionDenied   Decision = "denied"
)

// Application is the domain representation of one applicant's interview and
// review record. It mirrors the applications table plus its ordered answers.
type Application struct {
	ID          string
	ApplicantID string
	Status      Status
	ReviewerID  *string
	Score       *int
	Scale       *int
	Decision    *Decision
	Reason      *string
	Answers     []Answer
	CreatedAt   time.Time
	SubmittedAt *time.Time
	DecidedAt   *time.Time
}

// Answer is one entry of the ordered, append-only answer sequence.
type Answer struct {
	Index int
	Body  string
}

// NextIndex returns the index the next answer must carry.
func (a Application) NextIndex() int {
	return len(a.Answers)
}

// OwnedBy reports whether reviewerID matches the stored reviewer.
func (a Application) OwnedBy(reviewerID string) bool {
	return a.ReviewerID != nil && *a.ReviewerID == reviewerID
}

// Event is one row of the append-only transition journal.
type Event struct {
	ID            int64
	ApplicationID string
	Seq           int
	Type          string
	ActorID       *string
	Payload       []byte
	CreatedAt     time.Time
}

const (
	EventCreated  = "APPLICATION_CREATED"
	EventAnswered = "ANSWER_APPENDED"
	EventSubmit   = "APPLICATION_SUBMITTED"
	EventClaimed  = "APPLICATION_CLAIMED"
	EventScored   = "APPLICATION_SCORED"
	EventDecided  = "APPLICATION_DECIDED"
)
