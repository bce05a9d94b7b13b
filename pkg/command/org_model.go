package command

import (
	"github.com/plaenen/iamcore/pkg/domain"
	"github.com/plaenen/iamcore/pkg/eventstore"
)

// OrgWriteModel reduces the org aggregate for command validation.
type OrgWriteModel struct {
	WriteModel

	Name  string
	State domain.OrgState
}

func NewOrgWriteModel(orgID, instanceID string) *OrgWriteModel {
	return &OrgWriteModel{
		WriteModel: WriteModel{
			AggregateID:   orgID,
			InstanceID:    instanceID,
			ResourceOwner: orgID,
		},
	}
}

// Query loads the whole aggregate stream so the processed sequence equals
// the aggregate's current version; unknown event types are no-ops in Reduce.
func (wm *OrgWriteModel) Query() *eventstore.SearchQueryBuilder {
	return eventstore.NewSearchQueryBuilder(wm.InstanceID).
		AggregateTypes(domain.OrgAggregateType).
		AggregateIDs(wm.AggregateID)
}

func (wm *OrgWriteModel) Reduce() error {
	for _, event := range wm.Events {
		switch domain.NormalizeEventType(event.EventType) {
		case domain.OrgAddedType:
			var payload domain.OrgAddedPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			wm.Name = payload.Name
			wm.State = domain.OrgStateActive
		case domain.OrgChangedType:
			var payload domain.OrgChangedPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			wm.Name = payload.Name
		case domain.OrgDeactivatedType:
			wm.State = domain.OrgStateInactive
		case domain.OrgReactivatedType:
			wm.State = domain.OrgStateActive
		}
	}
	return wm.WriteModel.Reduce()
}

// OrgMemberWriteModel reduces the membership of one user in an org.
type OrgMemberWriteModel struct {
	WriteModel

	UserID   string
	IsMember bool
	Roles    []string
}

func NewOrgMemberWriteModel(orgID, userID, instanceID string) *OrgMemberWriteModel {
	return &OrgMemberWriteModel{
		WriteModel: WriteModel{
			AggregateID:   orgID,
			InstanceID:    instanceID,
			ResourceOwner: orgID,
		},
		UserID: userID,
	}
}

func (wm *OrgMemberWriteModel) Query() *eventstore.SearchQueryBuilder {
	return eventstore.NewSearchQueryBuilder(wm.InstanceID).
		AggregateTypes(domain.OrgAggregateType).
		AggregateIDs(wm.AggregateID)
}

func (wm *OrgMemberWriteModel) Reduce() error {
	for _, event := range wm.Events {
		switch domain.NormalizeEventType(event.EventType) {
		case domain.OrgMemberAddedType:
			var payload domain.OrgMemberAddedPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			if payload.UserID != wm.UserID {
				continue
			}
			wm.IsMember = true
			wm.Roles = payload.Roles
		case domain.OrgMemberRemovedType:
			var payload domain.OrgMemberRemovedPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			if payload.UserID != wm.UserID {
				continue
			}
			wm.IsMember = false
			wm.Roles = nil
		}
	}
	return wm.WriteModel.Reduce()
}
