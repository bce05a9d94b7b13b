package tables

import (
	"github.com/plaenen/iamcore/pkg/domain"
	"github.com/plaenen/iamcore/pkg/projection"
)

// LabelPoliciesHandler projects org and instance label policy events into
// one table; is_default marks the instance rows.
type LabelPoliciesHandler struct{}

func NewLabelPoliciesHandler() *LabelPoliciesHandler { return &LabelPoliciesHandler{} }

func (*LabelPoliciesHandler) Name() string { return "label_policies" }

func (*LabelPoliciesHandler) AggregateTypes() []string {
	return []string{domain.OrgAggregateType, domain.InstanceAggregateType}
}

func (*LabelPoliciesHandler) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS label_policies (
			instance_id TEXT NOT NULL,
			aggregate_id TEXT NOT NULL,
			is_default SMALLINT NOT NULL,
			primary_color TEXT NOT NULL DEFAULT '',
			background_color TEXT NOT NULL DEFAULT '',
			hide_login_name_suffix SMALLINT NOT NULL DEFAULT 0,
			changed_at BIGINT NOT NULL,
			sequence BIGINT NOT NULL,
			PRIMARY KEY (instance_id, aggregate_id)
		)`,
	}
}

func (h *LabelPoliciesHandler) Reduce(event *domain.Event) ([]projection.Statement, error) {
	switch domain.NormalizeEventType(event.EventType) {
	case domain.OrgLabelPolicyAddedType, domain.OrgLabelPolicyChangedType:
		return labelUpsert(event, false)
	case domain.InstanceLabelPolicyAddedType, domain.InstanceLabelPolicyChangedType:
		return labelUpsert(event, true)
	case domain.OrgLabelPolicyRemovedType:
		return []projection.Statement{{
			SQL:  `DELETE FROM label_policies WHERE instance_id = ? AND aggregate_id = ?`,
			Args: []any{event.InstanceID, event.AggregateID},
		}}, nil
	}
	return nil, nil
}

func labelUpsert(event *domain.Event, isDefault bool) ([]projection.Statement, error) {
	var payload domain.LabelPolicyPayload
	if err := event.Unmarshal(&payload); err != nil {
		return nil, err
	}
	return []projection.Statement{{
		SQL: `INSERT INTO label_policies (instance_id, aggregate_id, is_default, primary_color, background_color, hide_login_name_suffix, changed_at, sequence)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (instance_id, aggregate_id) DO UPDATE SET
				primary_color = excluded.primary_color,
				background_color = excluded.background_color,
				hide_login_name_suffix = excluded.hide_login_name_suffix,
				changed_at = excluded.changed_at, sequence = excluded.sequence`,
		Args: []any{
			event.InstanceID, event.AggregateID, boolVal(isDefault),
			payload.PrimaryColor, payload.BackgroundColor, boolVal(payload.HideLoginNameSuffix),
			event.CreatedAt.UnixMicro(), event.AggregateVersion,
		},
	}}, nil
}

// LoginPoliciesHandler projects login policy events, including the
// second-factor and IDP link sub-entities, into three tables.
type LoginPoliciesHandler struct{}

func NewLoginPoliciesHandler() *LoginPoliciesHandler { return &LoginPoliciesHandler{} }

func (*LoginPoliciesHandler) Name() string { return "login_policies" }

func (*LoginPoliciesHandler) AggregateTypes() []string {
	return []string{domain.OrgAggregateType, domain.InstanceAggregateType}
}

func (*LoginPoliciesHandler) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS login_policies (
			instance_id TEXT NOT NULL,
			aggregate_id TEXT NOT NULL,
			is_default SMALLINT NOT NULL,
			allow_username_password SMALLINT NOT NULL DEFAULT 0,
			allow_register SMALLINT NOT NULL DEFAULT 0,
			allow_external_idp SMALLINT NOT NULL DEFAULT 0,
			force_mfa SMALLINT NOT NULL DEFAULT 0,
			changed_at BIGINT NOT NULL,
			sequence BIGINT NOT NULL,
			PRIMARY KEY (instance_id, aggregate_id)
		)`,
		`CREATE TABLE IF NOT EXISTS login_policy_factors (
			instance_id TEXT NOT NULL,
			aggregate_id TEXT NOT NULL,
			factor_type SMALLINT NOT NULL,
			PRIMARY KEY (instance_id, aggregate_id, factor_type)
		)`,
		`CREATE TABLE IF NOT EXISTS login_policy_idp_links (
			instance_id TEXT NOT NULL,
			aggregate_id TEXT NOT NULL,
			idp_config_id TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (instance_id, aggregate_id, idp_config_id)
		)`,
	}
}

func (h *LoginPoliciesHandler) Reduce(event *domain.Event) ([]projection.Statement, error) {
	switch domain.NormalizeEventType(event.EventType) {
	case domain.OrgLoginPolicyAddedType, domain.OrgLoginPolicyChangedType:
		return loginUpsert(event, false)
	case domain.InstanceLoginPolicyAddedType, domain.InstanceLoginPolicyChangedType:
		return loginUpsert(event, true)
	case domain.OrgLoginPolicyRemovedType:
		return []projection.Statement{
			{
				SQL:  `DELETE FROM login_policies WHERE instance_id = ? AND aggregate_id = ?`,
				Args: []any{event.InstanceID, event.AggregateID},
			},
			{
				SQL:  `DELETE FROM login_policy_factors WHERE instance_id = ? AND aggregate_id = ?`,
				Args: []any{event.InstanceID, event.AggregateID},
			},
			{
				SQL:  `DELETE FROM login_policy_idp_links WHERE instance_id = ? AND aggregate_id = ?`,
				Args: []any{event.InstanceID, event.AggregateID},
			},
		}, nil
	case domain.OrgLoginPolicySecondFactorAddedType, domain.InstanceLoginPolicySecondFactorAddedType:
		var payload domain.LoginPolicySecondFactorPayload
		if err := event.Unmarshal(&payload); err != nil {
			return nil, err
		}
		return []projection.Statement{{
			SQL: `INSERT INTO login_policy_factors (instance_id, aggregate_id, factor_type)
				VALUES (?, ?, ?)
				ON CONFLICT (instance_id, aggregate_id, factor_type) DO NOTHING`,
			Args: []any{event.InstanceID, event.AggregateID, int(payload.FactorType)},
		}}, nil
	case domain.OrgLoginPolicySecondFactorRemovedType, domain.InstanceLoginPolicySecondFactorRemovedType:
		var payload domain.LoginPolicySecondFactorPayload
		if err := event.Unmarshal(&payload); err != nil {
			return nil, err
		}
		return []projection.Statement{{
			SQL:  `DELETE FROM login_policy_factors WHERE instance_id = ? AND aggregate_id = ? AND factor_type = ?`,
			Args: []any{event.InstanceID, event.AggregateID, int(payload.FactorType)},
		}}, nil
	case domain.OrgLoginPolicyIDPProviderAddedType, domain.InstanceLoginPolicyIDPProviderAddedType:
		var payload domain.LoginPolicyIDPProviderPayload
		if err := event.Unmarshal(&payload); err != nil {
			return nil, err
		}
		return []projection.Statement{{
			SQL: `INSERT INTO login_policy_idp_links (instance_id, aggregate_id, idp_config_id, name)
				VALUES (?, ?, ?, ?)
				ON CONFLICT (instance_id, aggregate_id, idp_config_id) DO UPDATE SET name = excluded.name`,
			Args: []any{event.InstanceID, event.AggregateID, payload.IDPConfigID, payload.Name},
		}}, nil
	case domain.OrgLoginPolicyIDPProviderRemovedType, domain.InstanceLoginPolicyIDPProviderRemovedType:
		var payload domain.LoginPolicyIDPProviderPayload
		if err := event.Unmarshal(&payload); err != nil {
			return nil, err
		}
		return []projection.Statement{{
			SQL:  `DELETE FROM login_policy_idp_links WHERE instance_id = ? AND aggregate_id = ? AND idp_config_id = ?`,
			Args: []any{event.InstanceID, event.AggregateID, payload.IDPConfigID},
		}}, nil
	}
	return nil, nil
}

func loginUpsert(event *domain.Event, isDefault bool) ([]projection.Statement, error) {
	var payload domain.LoginPolicyPayload
	if err := event.Unmarshal(&payload); err != nil {
		return nil, err
	}
	return []projection.Statement{{
		SQL: `INSERT INTO login_policies (instance_id, aggregate_id, is_default, allow_username_password, allow_register, allow_external_idp, force_mfa, changed_at, sequence)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (instance_id, aggregate_id) DO UPDATE SET
				allow_username_password = excluded.allow_username_password,
				allow_register = excluded.allow_register,
				allow_external_idp = excluded.allow_external_idp,
				force_mfa = excluded.force_mfa,
				changed_at = excluded.changed_at, sequence = excluded.sequence`,
		Args: []any{
			event.InstanceID, event.AggregateID, boolVal(isDefault),
			boolVal(payload.AllowUsernamePassword), boolVal(payload.AllowRegister),
			boolVal(payload.AllowExternalIDP), boolVal(payload.ForceMFA),
			event.CreatedAt.UnixMicro(), event.AggregateVersion,
		},
	}}, nil
}

// boolVal stores booleans as 0/1 so the same schema works on both backends.
func boolVal(b bool) int {
	if b {
		return 1
	}
	return 0
}
