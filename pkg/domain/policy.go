package domain

// The instance aggregate carries instance-wide defaults, among them the
// default policies orgs inherit from.
const InstanceAggregateType = "instance"

// Label policy event types, org-scoped and instance-default.
const (
	OrgLabelPolicyAddedType   = "org.policy.label.added"
	OrgLabelPolicyChangedType = "org.policy.label.changed"
	OrgLabelPolicyRemovedType = "org.policy.label.removed"

	InstanceLabelPolicyAddedType   = "instance.policy.label.added"
	InstanceLabelPolicyChangedType = "instance.policy.label.changed"
)

// Login policy event types, org-scoped and instance-default.
const (
	OrgLoginPolicyAddedType   = "org.policy.login.added"
	OrgLoginPolicyChangedType = "org.policy.login.changed"
	OrgLoginPolicyRemovedType = "org.policy.login.removed"

	OrgLoginPolicySecondFactorAddedType   = "org.policy.login.secondfactor.added"
	OrgLoginPolicySecondFactorRemovedType = "org.policy.login.secondfactor.removed"
	OrgLoginPolicyIDPProviderAddedType    = "org.policy.login.idpprovider.added"
	OrgLoginPolicyIDPProviderRemovedType  = "org.policy.login.idpprovider.removed"

	InstanceLoginPolicyAddedType   = "instance.policy.login.added"
	InstanceLoginPolicyChangedType = "instance.policy.login.changed"

	InstanceLoginPolicySecondFactorAddedType   = "instance.policy.login.secondfactor.added"
	InstanceLoginPolicySecondFactorRemovedType = "instance.policy.login.secondfactor.removed"
	InstanceLoginPolicyIDPProviderAddedType    = "instance.policy.login.idpprovider.added"
	InstanceLoginPolicyIDPProviderRemovedType  = "instance.policy.login.idpprovider.removed"
)

// SecondFactorType enumerates supported second factors.
type SecondFactorType int8

const (
	SecondFactorTypeUnspecified SecondFactorType = iota
	SecondFactorTypeOTP
	SecondFactorTypeU2F
)

type LabelPolicyPayload struct {
	PrimaryColor        string `json:"primaryColor"`
	BackgroundColor     string `json:"backgroundColor"`
	HideLoginNameSuffix bool   `json:"hideLoginNameSuffix"`
}

type LoginPolicyPayload struct {
	AllowUsernamePassword bool `json:"allowUsernamePassword"`
	AllowRegister         bool `json:"allowRegister"`
	AllowExternalIDP      bool `json:"allowExternalIdp"`
	ForceMFA              bool `json:"forceMfa"`
}

type LoginPolicySecondFactorPayload struct {
	FactorType SecondFactorType `json:"mfaType"`
}

type LoginPolicyIDPProviderPayload struct {
	IDPConfigID string `json:"idpConfigId"`
	Name        string `json:"name,omitempty"`
}
