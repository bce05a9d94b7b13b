package domain

// Aggregate and event types of the org aggregate.
const (
	OrgAggregateType = "org"

	OrgAddedType         = "org.added"
	OrgChangedType       = "org.changed"
	OrgDeactivatedType   = "org.deactivated"
	OrgReactivatedType   = "org.reactivated"
	OrgMemberAddedType   = "org.member.added"
	OrgMemberRemovedType = "org.member.removed"
)

// OrgNameUniqueType namespaces the org-name claim inside an instance.
const OrgNameUniqueType = "org_names"

// OrgState is the lifecycle state of an org.
type OrgState int8

const (
	OrgStateUnspecified OrgState = iota
	OrgStateActive
	OrgStateInactive
	OrgStateRemoved
)

// Exists reports whether the org is present in any live state.
func (s OrgState) Exists() bool {
	return s == OrgStateActive || s == OrgStateInactive
}

type OrgAddedPayload struct {
	Name string `json:"name"`
}

type OrgChangedPayload struct {
	Name string `json:"name"`
}

type OrgMemberAddedPayload struct {
	UserID string   `json:"userId"`
	Roles  []string `json:"roles,omitempty"`
}

type OrgMemberRemovedPayload struct {
	UserID string `json:"userId"`
}
