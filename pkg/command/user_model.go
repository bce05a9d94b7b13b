package command

import (
	"github.com/plaenen/iamcore/pkg/domain"
	"github.com/plaenen/iamcore/pkg/eventstore"
)

// UserWriteModel reduces the user aggregate for command validation.
type UserWriteModel struct {
	WriteModel

	Username    string
	FirstName   string
	LastName    string
	Email       string
	EncodedHash string
	State       domain.UserState
}

func NewUserWriteModel(userID, orgID, instanceID string) *UserWriteModel {
	return &UserWriteModel{
		WriteModel: WriteModel{
			AggregateID:   userID,
			InstanceID:    instanceID,
			ResourceOwner: orgID,
		},
	}
}

func (wm *UserWriteModel) Query() *eventstore.SearchQueryBuilder {
	return eventstore.NewSearchQueryBuilder(wm.InstanceID).
		AggregateTypes(domain.UserAggregateType).
		AggregateIDs(wm.AggregateID)
}

func (wm *UserWriteModel) Reduce() error {
	for _, event := range wm.Events {
		switch domain.NormalizeEventType(event.EventType) {
		case domain.HumanAddedType:
			var payload domain.HumanAddedPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			wm.Username = payload.Username
			wm.FirstName = payload.FirstName
			wm.LastName = payload.LastName
			wm.Email = payload.Email
			wm.EncodedHash = payload.EncodedHash
			wm.State = domain.UserStateActive
		case domain.HumanProfileChangedType:
			var payload domain.HumanProfileChangedPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			wm.FirstName = payload.FirstName
			wm.LastName = payload.LastName
		case domain.HumanEmailChangedType:
			var payload domain.HumanEmailChangedPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			wm.Email = payload.Email
		case domain.UserUsernameChangedType:
			var payload domain.UsernameChangedPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			wm.Username = payload.Username
		case domain.UserLockedType:
			wm.State = domain.UserStateLocked
		case domain.UserUnlockedType:
			wm.State = domain.UserStateActive
		case domain.UserRemovedType:
			wm.State = domain.UserStateRemoved
		}
	}
	return wm.WriteModel.Reduce()
}
