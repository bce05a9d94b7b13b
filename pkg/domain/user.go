package domain

// Aggregate and event types of the user aggregate.
const (
	UserAggregateType = "user"

	HumanAddedType          = "user.human.added"
	HumanProfileChangedType = "user.human.profile.changed"
	HumanEmailChangedType   = "user.human.email.changed"
	UserUsernameChangedType = "user.username.changed"
	UserLockedType          = "user.locked"
	UserUnlockedType        = "user.unlocked"
	UserRemovedType         = "user.removed"
)

// UsernameUniqueType namespaces the username claim. The claimed field is
// "<orgID>:<username>" so usernames are unique per org.
const UsernameUniqueType = "usernames"

// UsernameUniqueField builds the claimed value for a username in an org.
func UsernameUniqueField(orgID, username string) string {
	return orgID + ":" + username
}

// UserState is the lifecycle state of a user.
type UserState int8

const (
	UserStateUnspecified UserState = iota
	UserStateActive
	UserStateLocked
	UserStateRemoved
)

// Exists reports whether the user is present in any live state.
func (s UserState) Exists() bool {
	return s == UserStateActive || s == UserStateLocked
}

type HumanAddedPayload struct {
	Username    string `json:"userName"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Email       string `json:"email"`
	EncodedHash string `json:"encodedHash,omitempty"`
}

type HumanProfileChangedPayload struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type HumanEmailChangedPayload struct {
	Email string `json:"email"`
}

type UsernameChangedPayload struct {
	Username string `json:"userName"`
}

// UserRemovedPayload carries the last username so reducers and constraint
// bookkeeping do not need to replay the stream.
type UserRemovedPayload struct {
	Username string `json:"userName"`
}
