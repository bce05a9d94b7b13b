package command

import (
	"github.com/plaenen/iamcore/pkg/domain"
	"github.com/plaenen/iamcore/pkg/eventstore"
)

// ProjectWriteModel reduces the project aggregate for command validation.
type ProjectWriteModel struct {
	WriteModel

	Name  string
	State domain.ProjectState
}

func NewProjectWriteModel(projectID, orgID, instanceID string) *ProjectWriteModel {
	return &ProjectWriteModel{
		WriteModel: WriteModel{
			AggregateID:   projectID,
			InstanceID:    instanceID,
			ResourceOwner: orgID,
		},
	}
}

func (wm *ProjectWriteModel) Query() *eventstore.SearchQueryBuilder {
	return eventstore.NewSearchQueryBuilder(wm.InstanceID).
		AggregateTypes(domain.ProjectAggregateType).
		AggregateIDs(wm.AggregateID)
}

func (wm *ProjectWriteModel) Reduce() error {
	for _, event := range wm.Events {
		switch domain.NormalizeEventType(event.EventType) {
		case domain.ProjectAddedType:
			var payload domain.ProjectAddedPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			wm.Name = payload.Name
			wm.State = domain.ProjectStateActive
		case domain.ProjectChangedType:
			var payload domain.ProjectChangedPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			wm.Name = payload.Name
		case domain.ProjectDeactivatedType:
			wm.State = domain.ProjectStateInactive
		case domain.ProjectReactivatedType:
			wm.State = domain.ProjectStateActive
		case domain.ProjectRemovedType:
			wm.State = domain.ProjectStateRemoved
		}
	}
	return wm.WriteModel.Reduce()
}

// ApplicationWriteModel reduces one application entity inside a project.
// The aggregate is still the project; the model filters on the app id
// carried in the payloads.
type ApplicationWriteModel struct {
	WriteModel

	AppID        string
	Name         string
	ClientID     string
	HasOIDC      bool
	AppState     domain.AppState
	ProjectState domain.ProjectState
}

func NewApplicationWriteModel(projectID, appID, orgID, instanceID string) *ApplicationWriteModel {
	return &ApplicationWriteModel{
		WriteModel: WriteModel{
			AggregateID:   projectID,
			InstanceID:    instanceID,
			ResourceOwner: orgID,
		},
		AppID: appID,
	}
}

func (wm *ApplicationWriteModel) Query() *eventstore.SearchQueryBuilder {
	return eventstore.NewSearchQueryBuilder(wm.InstanceID).
		AggregateTypes(domain.ProjectAggregateType).
		AggregateIDs(wm.AggregateID)
}

func (wm *ApplicationWriteModel) Reduce() error {
	for _, event := range wm.Events {
		switch domain.NormalizeEventType(event.EventType) {
		case domain.ProjectAddedType:
			wm.ProjectState = domain.ProjectStateActive
		case domain.ProjectDeactivatedType:
			wm.ProjectState = domain.ProjectStateInactive
		case domain.ProjectReactivatedType:
			wm.ProjectState = domain.ProjectStateActive
		case domain.ProjectRemovedType:
			wm.ProjectState = domain.ProjectStateRemoved
			wm.AppState = domain.AppStateRemoved
		case domain.ApplicationAddedType:
			var payload domain.ApplicationAddedPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			if payload.AppID != wm.AppID {
				continue
			}
			wm.Name = payload.Name
			wm.AppState = domain.AppStateActive
		case domain.ApplicationChangedType:
			var payload domain.ApplicationChangedPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			if payload.AppID != wm.AppID {
				continue
			}
			wm.Name = payload.Name
		case domain.ApplicationRemovedType:
			var payload domain.ApplicationRemovedPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			if payload.AppID != wm.AppID {
				continue
			}
			wm.AppState = domain.AppStateRemoved
			wm.HasOIDC = false
		case domain.ApplicationOIDCConfigAddedType:
			var payload domain.ApplicationOIDCConfigAddedPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			if payload.AppID != wm.AppID {
				continue
			}
			wm.ClientID = payload.ClientID
			wm.HasOIDC = true
		}
	}
	return wm.WriteModel.Reduce()
}
