// Package types contains shared data structures used across the dashboard.
//
//nolint:revive // "types" is a standard Go package name for shared data structures
package types

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Identity is an Azure DevOps user or group.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	UniqueName  string `json:"uniqueName"` // usually the email address
}

// Matches reports whether two identities refer to the same user.
// Unique names are compared case-insensitively; ids are used when either unique name is missing.
func (i Identity) Matches(other Identity) bool {
	if i.UniqueName != "" && other.UniqueName != "" {
		return strings.EqualFold(i.UniqueName, other.UniqueName)
	}
	return i.ID != "" && i.ID == other.ID
}

// Vote is a reviewer's vote on a pull request.
type Vote int

// Vote values as defined by Azure DevOps.
const (
	VoteRejected                Vote = -10
	VoteWaitingOnAuthor         Vote = -5
	VoteNone                    Vote = 0
	VoteApprovedWithSuggestions Vote = 5
	VoteApproved                Vote = 10
)

func (v Vote) String() string {
	switch {
	case v == VoteNone:
		return "no vote"
	case v == VoteWaitingOnAuthor:
		return "waiting on author"
	case v == VoteApprovedWithSuggestions:
		return "approved with suggestions"
	case v < 0:
		return "rejected"
	default:
		return "approved"
	}
}

// Reviewer is a reviewer listed on a pull request along with their vote.
type Reviewer struct {
	Identity
	Vote       Vote `json:"vote"`
	IsRequired bool `json:"isRequired"`
}

// CommitRef references a commit.
type CommitRef struct {
	CommitID string `json:"commitId"`
	URL      string `json:"url"`
}

// RepositoryRef references a git repository.
type RepositoryRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// PullRequest represents an Azure DevOps pull request.
type PullRequest struct {
	CreatedAt             time.Time     `json:"creationDate"`
	LastMergeCommit       *CommitRef    `json:"lastMergeCommit,omitempty"`
	LastMergeSourceCommit *CommitRef    `json:"lastMergeSourceCommit,omitempty"`
	Author                Identity      `json:"createdBy"`
	Repository            RepositoryRef `json:"repository"`
	Title                 string        `json:"title"`
	Status                string        `json:"status"`
	TargetBranch          string        `json:"targetRefName"`
	URL                   string        `json:"url"`
	Reviewers             []Reviewer    `json:"reviewers"`
	ID                    int           `json:"pullRequestId"`
	Draft                 bool          `json:"isDraft"`
}

// PropertyValue is an Azure DevOps typed property value: {"$type": "...", "$value": ...}.
type PropertyValue struct {
	Type  string          `json:"$type"`
	Value json.RawMessage `json:"$value"`
}

// String returns the value as a string, unquoting JSON strings.
func (p PropertyValue) String() string {
	if len(p.Value) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(p.Value, &s); err == nil {
		return s
	}
	return string(p.Value)
}

// Int returns the value as an integer. Values may be encoded as numbers or numeric strings.
func (p PropertyValue) Int() (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(p.String()))
	if err != nil {
		return 0, false
	}
	return n, true
}

// CommentType distinguishes user comments from system-generated ones.
type CommentType string

// CommentType values.
const (
	CommentTypeText       CommentType = "text"
	CommentTypeSystem     CommentType = "system"
	CommentTypeCodeChange CommentType = "codeChange"
)

// Comment is a single comment within a discussion thread.
type Comment struct {
	PublishedAt time.Time   `json:"publishedDate"`
	Author      Identity    `json:"author"`
	Content     string      `json:"content"`
	Type        CommentType `json:"commentType"`
	ID          int         `json:"id"`
	Deleted     bool        `json:"isDeleted"`
}

// ThreadKind classifies a thread by its structured properties.
type ThreadKind string

// ThreadKind values.
const (
	ThreadKindComment         ThreadKind = "comment"
	ThreadKindVoteUpdate      ThreadKind = "voteUpdate"
	ThreadKindReviewersUpdate ThreadKind = "reviewersUpdate"
	ThreadKindVoteReset       ThreadKind = "voteReset"
)

// Thread property names used by Azure DevOps for system threads.
const (
	PropThreadType = "CodeReviewThreadType"
	PropVotedBy    = "CodeReviewVotedByIdentity"
	PropVoteResult = "CodeReviewVoteResult"
)

// Thread is a pull request discussion thread.
type Thread struct {
	PublishedAt time.Time                `json:"publishedDate"`
	Properties  map[string]PropertyValue `json:"properties"`
	Identities  map[string]Identity      `json:"identities"`
	Comments    []Comment                `json:"comments"`
	ID          int                      `json:"id"`
	Deleted     bool                     `json:"isDeleted"`
}

// Kind derives the thread kind from its properties.
// A thread without properties is a plain comment thread.
func (t *Thread) Kind() ThreadKind {
	p, ok := t.Properties[PropThreadType]
	if !ok {
		return ThreadKindComment
	}
	switch p.String() {
	case "VoteUpdate":
		return ThreadKindVoteUpdate
	case "ReviewersUpdate":
		return ThreadKindReviewersUpdate
	case "ResetAllVotes", "ResetMultipleVotes":
		return ThreadKindVoteReset
	default:
		return ThreadKindComment
	}
}

// Voter returns the identity that cast the vote of a vote-update thread.
func (t *Thread) Voter() (Identity, bool) {
	p, ok := t.Properties[PropVotedBy]
	if !ok {
		return Identity{}, false
	}
	id, ok := t.Identities[p.String()]
	return id, ok
}

// VoteResult returns the vote recorded by a vote-update thread.
func (t *Thread) VoteResult() (Vote, bool) {
	p, ok := t.Properties[PropVoteResult]
	if !ok {
		return VoteNone, false
	}
	n, ok := p.Int()
	return Vote(n), ok
}

// ChangedItem is the item touched by a change.
type ChangedItem struct {
	Path     string `json:"path"`
	IsFolder bool   `json:"isFolder"`
}

// Change is a single entry of a commit's change list.
type Change struct {
	ChangeType string      `json:"changeType"`
	Item       ChangedItem `json:"item"`
}

// StatusState is the state of a commit status entry.
type StatusState string

// StatusState values.
const (
	StatusNotSet             StatusState = "notSet"
	StatusPending            StatusState = "pending"
	StatusSucceeded          StatusState = "succeeded"
	StatusPartiallySucceeded StatusState = "partiallySucceeded"
	StatusFailed             StatusState = "failed"
	StatusError              StatusState = "error"
	StatusNotApplicable      StatusState = "notApplicable"
)

// StatusContext names the producer of a commit status.
type StatusContext struct {
	Name  string `json:"name"`
	Genre string `json:"genre"`
}

// CommitStatus is a build or policy status posted against a commit.
type CommitStatus struct {
	CreatedAt   time.Time     `json:"creationDate"`
	Context     StatusContext `json:"context"`
	State       StatusState   `json:"state"`
	Description string        `json:"description"`
	TargetURL   string        `json:"targetUrl"`
	ID          int           `json:"id"`
}

// Iteration is a pull request update (push).
type Iteration struct {
	CreatedAt    time.Time  `json:"createdDate"`
	SourceCommit *CommitRef `json:"sourceRefCommit,omitempty"`
	Description  string     `json:"description"`
	ID           int        `json:"id"`
}

// WorkItem is a work item linked to a pull request.
type WorkItem struct {
	Type     string
	Title    string
	State    string
	Severity string
	ID       int
}

// Employee is an entry of the employee directory feed.
type Employee struct {
	Email          string `json:"email"`
	Country        string `json:"country"`
	EmploymentType string `json:"employmentType"`
}

// Absence is an entry of the out-of-office feed.
type Absence struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Email string    `json:"email"`
}

// Covers reports whether the absence includes t.
func (a Absence) Covers(t time.Time) bool {
	return !t.Before(a.Start) && t.Before(a.End)
}

// Section is the review-status bucket a pull request row is sorted into.
type Section string

// Section values.
const (
	SectionNone              Section = ""
	SectionBlocking          Section = "blocking"
	SectionPending           Section = "pending"
	SectionBlockedByOthers   Section = "blocked"
	SectionDraft             Section = "drafts"
	SectionWaitingOnAuthor   Section = "waiting"
	SectionRejected          Section = "rejected"
	SectionApproved          Section = "approved"
	SectionApprovedNotable   Section = "approved-notable"
	SectionCreatedByMeActive Section = "created-active"
	SectionCreatedByMeDraft  Section = "created-drafts"
)

// Sections lists the sections in display order.
var Sections = []Section{
	SectionBlocking,
	SectionPending,
	SectionBlockedByOthers,
	SectionApprovedNotable,
	SectionDraft,
	SectionWaitingOnAuthor,
	SectionRejected,
	SectionApproved,
	SectionCreatedByMeActive,
	SectionCreatedByMeDraft,
}

// Title returns the human readable section header.
func (s Section) Title() string {
	switch s {
	case SectionBlocking:
		return "Blocking"
	case SectionPending:
		return "Incomplete"
	case SectionBlockedByOthers:
		return "Incomplete but blocked"
	case SectionDraft:
		return "Drafts"
	case SectionWaitingOnAuthor:
		return "Completed as Waiting on Author"
	case SectionRejected:
		return "Completed as Rejected"
	case SectionApproved:
		return "Completed as Approved / Approved with Suggestions"
	case SectionApprovedNotable:
		return "Completed as Approved / Approved with Suggestions (with notable activity)"
	case SectionCreatedByMeActive:
		return "Created by me"
	case SectionCreatedByMeDraft:
		return "Created by me (drafts)"
	default:
		return "Unsorted"
	}
}

// ListContext is the dashboard list a row was rendered in.
type ListContext string

// ListContext values.
const (
	ContextAssignedToMe ListContext = "assigned"
	ContextCreatedByMe  ListContext = "created"
)
