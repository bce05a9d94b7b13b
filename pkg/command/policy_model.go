package command

import (
	"slices"

	"github.com/plaenen/iamcore/pkg/domain"
	"github.com/plaenen/iamcore/pkg/eventstore"
)

// policyScope binds a policy write-model to either an org aggregate or the
// instance aggregate. Event types differ per scope, the payloads do not.
type policyScope struct {
	aggregateType string
	aggregateID   string
	resourceOwner string

	labelAdded   string
	labelChanged string
	labelRemoved string

	loginAdded   string
	loginChanged string
	loginRemoved string

	secondFactorAdded   string
	secondFactorRemoved string
	idpProviderAdded    string
	idpProviderRemoved  string
}

func orgPolicyScope(orgID string) policyScope {
	return policyScope{
		aggregateType: domain.OrgAggregateType,
		aggregateID:   orgID,
		resourceOwner: orgID,

		labelAdded:   domain.OrgLabelPolicyAddedType,
		labelChanged: domain.OrgLabelPolicyChangedType,
		labelRemoved: domain.OrgLabelPolicyRemovedType,

		loginAdded:   domain.OrgLoginPolicyAddedType,
		loginChanged: domain.OrgLoginPolicyChangedType,
		loginRemoved: domain.OrgLoginPolicyRemovedType,

		secondFactorAdded:   domain.OrgLoginPolicySecondFactorAddedType,
		secondFactorRemoved: domain.OrgLoginPolicySecondFactorRemovedType,
		idpProviderAdded:    domain.OrgLoginPolicyIDPProviderAddedType,
		idpProviderRemoved:  domain.OrgLoginPolicyIDPProviderRemovedType,
	}
}

func instancePolicyScope(instanceID string) policyScope {
	return policyScope{
		aggregateType: domain.InstanceAggregateType,
		aggregateID:   instanceID,
		resourceOwner: instanceID,

		labelAdded:   domain.InstanceLabelPolicyAddedType,
		labelChanged: domain.InstanceLabelPolicyChangedType,

		loginAdded:   domain.InstanceLoginPolicyAddedType,
		loginChanged: domain.InstanceLoginPolicyChangedType,

		secondFactorAdded:   domain.InstanceLoginPolicySecondFactorAddedType,
		secondFactorRemoved: domain.InstanceLoginPolicySecondFactorRemovedType,
		idpProviderAdded:    domain.InstanceLoginPolicyIDPProviderAddedType,
		idpProviderRemoved:  domain.InstanceLoginPolicyIDPProviderRemovedType,
	}
}

// LabelPolicyWriteModel reduces a label policy in its scope's aggregate.
type LabelPolicyWriteModel struct {
	WriteModel

	scope policyScope

	Exists              bool
	PrimaryColor        string
	BackgroundColor     string
	HideLoginNameSuffix bool
}

func NewLabelPolicyWriteModel(scope policyScope, instanceID string) *LabelPolicyWriteModel {
	return &LabelPolicyWriteModel{
		WriteModel: WriteModel{
			AggregateID:   scope.aggregateID,
			InstanceID:    instanceID,
			ResourceOwner: scope.resourceOwner,
		},
		scope: scope,
	}
}

func (wm *LabelPolicyWriteModel) Query() *eventstore.SearchQueryBuilder {
	return eventstore.NewSearchQueryBuilder(wm.InstanceID).
		AggregateTypes(wm.scope.aggregateType).
		AggregateIDs(wm.AggregateID)
}

func (wm *LabelPolicyWriteModel) Reduce() error {
	for _, event := range wm.Events {
		switch domain.NormalizeEventType(event.EventType) {
		case wm.scope.labelAdded, wm.scope.labelChanged:
			var payload domain.LabelPolicyPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			wm.Exists = true
			wm.PrimaryColor = payload.PrimaryColor
			wm.BackgroundColor = payload.BackgroundColor
			wm.HideLoginNameSuffix = payload.HideLoginNameSuffix
		case wm.scope.labelRemoved:
			wm.Exists = false
			wm.PrimaryColor = ""
			wm.BackgroundColor = ""
			wm.HideLoginNameSuffix = false
		}
	}
	return wm.WriteModel.Reduce()
}

// LoginPolicyWriteModel reduces a login policy and its second-factor and IDP
// provider sub-entities.
type LoginPolicyWriteModel struct {
	WriteModel

	scope policyScope

	Exists                bool
	AllowUsernamePassword bool
	AllowRegister         bool
	AllowExternalIDP      bool
	ForceMFA              bool
	SecondFactors         []domain.SecondFactorType
	IDPProviders          []string
}

func NewLoginPolicyWriteModel(scope policyScope, instanceID string) *LoginPolicyWriteModel {
	return &LoginPolicyWriteModel{
		WriteModel: WriteModel{
			AggregateID:   scope.aggregateID,
			InstanceID:    instanceID,
			ResourceOwner: scope.resourceOwner,
		},
		scope: scope,
	}
}

func (wm *LoginPolicyWriteModel) Query() *eventstore.SearchQueryBuilder {
	return eventstore.NewSearchQueryBuilder(wm.InstanceID).
		AggregateTypes(wm.scope.aggregateType).
		AggregateIDs(wm.AggregateID)
}

func (wm *LoginPolicyWriteModel) Reduce() error {
	for _, event := range wm.Events {
		switch domain.NormalizeEventType(event.EventType) {
		case wm.scope.loginAdded, wm.scope.loginChanged:
			var payload domain.LoginPolicyPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			wm.Exists = true
			wm.AllowUsernamePassword = payload.AllowUsernamePassword
			wm.AllowRegister = payload.AllowRegister
			wm.AllowExternalIDP = payload.AllowExternalIDP
			wm.ForceMFA = payload.ForceMFA
		case wm.scope.loginRemoved:
			wm.Exists = false
			wm.SecondFactors = nil
			wm.IDPProviders = nil
		case wm.scope.secondFactorAdded:
			var payload domain.LoginPolicySecondFactorPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			if !slices.Contains(wm.SecondFactors, payload.FactorType) {
				wm.SecondFactors = append(wm.SecondFactors, payload.FactorType)
			}
		case wm.scope.secondFactorRemoved:
			var payload domain.LoginPolicySecondFactorPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			wm.SecondFactors = slices.DeleteFunc(wm.SecondFactors, func(t domain.SecondFactorType) bool {
				return t == payload.FactorType
			})
		case wm.scope.idpProviderAdded:
			var payload domain.LoginPolicyIDPProviderPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			if !slices.Contains(wm.IDPProviders, payload.IDPConfigID) {
				wm.IDPProviders = append(wm.IDPProviders, payload.IDPConfigID)
			}
		case wm.scope.idpProviderRemoved:
			var payload domain.LoginPolicyIDPProviderPayload
			if err := event.Unmarshal(&payload); err != nil {
				return err
			}
			wm.IDPProviders = slices.DeleteFunc(wm.IDPProviders, func(id string) bool {
				return id == payload.IDPConfigID
			})
		}
	}
	return wm.WriteModel.Reduce()
}
