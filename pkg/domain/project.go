package domain

// Aggregate and event types of the project aggregate. Applications are
// entities inside the project aggregate, not aggregates of their own.
const (
	ProjectAggregateType = "project"

	ProjectAddedType       = "project.added"
	ProjectChangedType     = "project.changed"
	ProjectDeactivatedType = "project.deactivated"
	ProjectReactivatedType = "project.reactivated"
	ProjectRemovedType     = "project.removed"

	ApplicationAddedType           = "project.application.added"
	ApplicationChangedType         = "project.application.changed"
	ApplicationRemovedType         = "project.application.removed"
	ApplicationOIDCConfigAddedType = "project.application.config.oidc.added"
)

// ProjectState is the lifecycle state of a project.
type ProjectState int8

const (
	ProjectStateUnspecified ProjectState = iota
	ProjectStateActive
	ProjectStateInactive
	ProjectStateRemoved
)

// Exists reports whether the project is present in any live state.
func (s ProjectState) Exists() bool {
	return s == ProjectStateActive || s == ProjectStateInactive
}

// AppState is the lifecycle state of an application entity.
type AppState int8

const (
	AppStateUnspecified AppState = iota
	AppStateActive
	AppStateRemoved
)

type ProjectAddedPayload struct {
	Name string `json:"name"`
}

type ProjectChangedPayload struct {
	Name string `json:"name"`
}

type ApplicationAddedPayload struct {
	AppID string `json:"appId"`
	Name  string `json:"name"`
}

type ApplicationChangedPayload struct {
	AppID string `json:"appId"`
	Name  string `json:"name"`
}

type ApplicationRemovedPayload struct {
	AppID string `json:"appId"`
}

// ApplicationOIDCConfigAddedPayload carries the OIDC client credentials.
// The client secret is stored encrypted, never in plain text.
type ApplicationOIDCConfigAddedPayload struct {
	AppID        string          `json:"appId"`
	ClientID     string          `json:"clientId"`
	ClientSecret *EncryptedValue `json:"clientSecret,omitempty"`
	RedirectURIs []string        `json:"redirectUris,omitempty"`
}

// EncryptedValue is ciphertext produced by the crypto keeper together with
// the key id needed to decrypt it again.
type EncryptedValue struct {
	Algorithm string `json:"algorithm"`
	KeyID     string `json:"keyId"`
	Crypted   []byte `json:"crypted"`
}
