// Package provider defines the normalized representation of inbound webhook
// events.
package provider

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/simplesurance/trymerger/internal/logfields"
)

// Repository is a snapshot of the repository an event originated from.
type Repository struct {
	ID            int64
	Name          string
	FullName      string
	Owner         string
	DefaultBranch string
}

type Event struct {
	JSON     []byte
	Provider string

	// Github hook fields, if the value is not available they are empty
	// strings.
	DeliveryID string
	EventType  string
	// Repository is nil if the event is not related to a repository.
	Repository *Repository
	// PullRequestNr is 0 if it's not available
	PullRequestNr int
	CommentBody   string
	CommentAuthor string
}

func (e *Event) String() string {
	return fmt.Sprintf("%s (deliveryID: %s)", e.EventType, e.DeliveryID)
}

func (e *Event) LogFields() []zap.Field {
	fields := make([]zap.Field, 0, 4) // cap == max. size of fields we append

	if e.DeliveryID != "" {
		fields = append(fields, logfields.DeliveryID(e.DeliveryID))
	}

	// EventType is not added as logfield, information is not needed

	if e.Repository != nil {
		fields = append(fields, logfields.Repository(e.Repository.FullName))
	}

	if e.PullRequestNr != 0 {
		fields = append(fields, logfields.PullRequest(e.PullRequestNr))
	}

	if e.CommentAuthor != "" {
		fields = append(fields, zap.String("github.comment_author", e.CommentAuthor))
	}

	return fields
}
