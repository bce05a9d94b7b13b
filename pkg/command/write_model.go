package command

import (
	"time"

	"github.com/plaenen/iamcore/pkg/domain"
)

// WriteModel is the base every aggregate write-model embeds. It is a pure
// function of the event stream: replaying the same events always yields the
// same state. Write-models never read projection tables.
type WriteModel struct {
	AggregateID       string
	InstanceID        string
	ResourceOwner     string
	ProcessedSequence uint64
	ChangeDate        time.Time

	// Events are staged for the next Reduce call.
	Events []*domain.Event
}

// AppendEvents stages events for reduction.
func (wm *WriteModel) AppendEvents(events ...*domain.Event) {
	wm.Events = append(wm.Events, events...)
}

// Reduce folds the staged events into the base fields and clears the stage.
// Embedding models switch over the staged events first, then call this.
func (wm *WriteModel) Reduce() error {
	for _, event := range wm.Events {
		wm.ProcessedSequence = event.AggregateVersion
		wm.ChangeDate = event.CreatedAt
		if wm.ResourceOwner == "" {
			wm.ResourceOwner = event.Owner
		}
		if wm.InstanceID == "" {
			wm.InstanceID = event.InstanceID
		}
	}
	wm.Events = wm.Events[:0]
	return nil
}

// command builds a write intent for the model's aggregate with the
// optimistic-concurrency precondition set to the loaded version.
func (wm *WriteModel) command(aggregateType, eventType, creator string, payload any, constraints ...*domain.UniqueConstraint) *domain.Command {
	cmd := &domain.Command{
		InstanceID:        wm.InstanceID,
		Owner:             wm.ResourceOwner,
		AggregateType:     aggregateType,
		AggregateID:       wm.AggregateID,
		EventType:         eventType,
		Revision:          1,
		Payload:           payload,
		Creator:           creator,
		UniqueConstraints: constraints,
	}
	cmd.ExpectVersion(wm.ProcessedSequence)
	return cmd
}
