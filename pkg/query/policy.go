package query

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/plaenen/iamcore/pkg/authz"
	"github.com/plaenen/iamcore/pkg/domain"
)

// LabelPolicy is the resolved branding of an org. IsDefault reports whether
// the row came from the instance default (or the builtin) instead of an org
// override.
type LabelPolicy struct {
	AggregateID         string    `json:"aggregateId,omitempty"`
	IsDefault           bool      `json:"isDefault"`
	PrimaryColor        string    `json:"primaryColor"`
	BackgroundColor     string    `json:"backgroundColor"`
	HideLoginNameSuffix bool      `json:"hideLoginNameSuffix"`
	ChangedAt           time.Time `json:"changedAt,omitempty"`
}

// builtinLabelPolicy applies when neither the org nor the instance configured
// branding.
func builtinLabelPolicy() *LabelPolicy {
	return &LabelPolicy{
		IsDefault:       true,
		PrimaryColor:    "#5469d4",
		BackgroundColor: "#fafafa",
	}
}

// ActiveLabelPolicy resolves the label policy for an org: the org override
// wins, then the instance default, then the builtin.
func (q *Queries) ActiveLabelPolicy(ctx context.Context, orgID string) (*LabelPolicy, error) {
	instanceID, err := authz.InstanceIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	policy, err := q.labelPolicyByAggregate(ctx, instanceID, orgID)
	if err == nil {
		return policy, nil
	}
	if !domain.IsNotFound(err) {
		return nil, err
	}

	policy, err = q.labelPolicyByAggregate(ctx, instanceID, instanceID)
	if err == nil {
		return policy, nil
	}
	if !domain.IsNotFound(err) {
		return nil, err
	}
	return builtinLabelPolicy(), nil
}

func (q *Queries) labelPolicyByAggregate(ctx context.Context, instanceID, aggregateID string) (*LabelPolicy, error) {
	query := q.db.Rebind(`SELECT aggregate_id, is_default, primary_color, background_color, hide_login_name_suffix, changed_at
		FROM label_policies WHERE instance_id = ? AND aggregate_id = ?`)
	row := q.db.QueryRowContext(ctx, query, instanceID, aggregateID)

	var (
		policy    LabelPolicy
		isDefault int16
		hide      int16
		changedAt int64
	)
	err := row.Scan(&policy.AggregateID, &isDefault, &policy.PrimaryColor, &policy.BackgroundColor, &hide, &changedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound(err, "QUERY-lblNf", "label policy not found")
	}
	if err != nil {
		return nil, domain.NewUnavailable(err, "QUERY-lblLd", "unable to load label policy")
	}
	policy.IsDefault = isDefault == 1
	policy.HideLoginNameSuffix = hide == 1
	policy.ChangedAt = time.UnixMicro(changedAt).UTC()
	return &policy, nil
}

// IDPLink is one identity provider linked to a login policy.
type IDPLink struct {
	IDPConfigID string `json:"idpConfigId"`
	Name        string `json:"name,omitempty"`
}

// LoginPolicy is the resolved login configuration of an org, including its
// second factors and linked identity providers.
type LoginPolicy struct {
	AggregateID           string                    `json:"aggregateId,omitempty"`
	IsDefault             bool                      `json:"isDefault"`
	AllowUsernamePassword bool                      `json:"allowUsernamePassword"`
	AllowRegister         bool                      `json:"allowRegister"`
	AllowExternalIDP      bool                      `json:"allowExternalIdp"`
	ForceMFA              bool                      `json:"forceMfa"`
	SecondFactors         []domain.SecondFactorType `json:"secondFactors,omitempty"`
	IDPLinks              []IDPLink                 `json:"idpLinks,omitempty"`
	ChangedAt             time.Time                 `json:"changedAt,omitempty"`
}

// builtinLoginPolicy applies when neither the org nor the instance configured
// a login policy: username/password only.
func builtinLoginPolicy() *LoginPolicy {
	return &LoginPolicy{
		IsDefault:             true,
		AllowUsernamePassword: true,
	}
}

// ActiveLoginPolicy resolves the login policy for an org: the org override
// wins, then the instance default, then the builtin. Factors and IDP links
// belong to the policy that won.
func (q *Queries) ActiveLoginPolicy(ctx context.Context, orgID string) (*LoginPolicy, error) {
	instanceID, err := authz.InstanceIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	policy, err := q.loginPolicyByAggregate(ctx, instanceID, orgID)
	if domain.IsNotFound(err) {
		policy, err = q.loginPolicyByAggregate(ctx, instanceID, instanceID)
	}
	if domain.IsNotFound(err) {
		return builtinLoginPolicy(), nil
	}
	if err != nil {
		return nil, err
	}

	if err := q.loadLoginPolicyChildren(ctx, instanceID, policy); err != nil {
		return nil, err
	}
	return policy, nil
}

func (q *Queries) loginPolicyByAggregate(ctx context.Context, instanceID, aggregateID string) (*LoginPolicy, error) {
	query := q.db.Rebind(`SELECT aggregate_id, is_default, allow_username_password, allow_register, allow_external_idp, force_mfa, changed_at
		FROM login_policies WHERE instance_id = ? AND aggregate_id = ?`)
	row := q.db.QueryRowContext(ctx, query, instanceID, aggregateID)

	var (
		policy    LoginPolicy
		flags     [5]int16
		changedAt int64
	)
	err := row.Scan(&policy.AggregateID, &flags[0], &flags[1], &flags[2], &flags[3], &flags[4], &changedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound(err, "QUERY-lgnNf", "login policy not found")
	}
	if err != nil {
		return nil, domain.NewUnavailable(err, "QUERY-lgnLd", "unable to load login policy")
	}
	policy.IsDefault = flags[0] == 1
	policy.AllowUsernamePassword = flags[1] == 1
	policy.AllowRegister = flags[2] == 1
	policy.AllowExternalIDP = flags[3] == 1
	policy.ForceMFA = flags[4] == 1
	policy.ChangedAt = time.UnixMicro(changedAt).UTC()
	return &policy, nil
}

func (q *Queries) loadLoginPolicyChildren(ctx context.Context, instanceID string, policy *LoginPolicy) error {
	factors := q.db.Rebind(`SELECT factor_type FROM login_policy_factors
		WHERE instance_id = ? AND aggregate_id = ? ORDER BY factor_type`)
	rows, err := q.db.QueryContext(ctx, factors, instanceID, policy.AggregateID)
	if err != nil {
		return domain.NewUnavailable(err, "QUERY-lgnFc", "unable to load second factors")
	}
	defer rows.Close()
	for rows.Next() {
		var factor int16
		if err := rows.Scan(&factor); err != nil {
			return domain.NewUnavailable(err, "QUERY-lgnFs", "unable to scan second factor")
		}
		policy.SecondFactors = append(policy.SecondFactors, domain.SecondFactorType(factor))
	}
	if err := rows.Err(); err != nil {
		return domain.NewUnavailable(err, "QUERY-lgnFr", "unable to load second factors")
	}

	links := q.db.Rebind(`SELECT idp_config_id, name FROM login_policy_idp_links
		WHERE instance_id = ? AND aggregate_id = ? ORDER BY idp_config_id`)
	linkRows, err := q.db.QueryContext(ctx, links, instanceID, policy.AggregateID)
	if err != nil {
		return domain.NewUnavailable(err, "QUERY-lgnIp", "unable to load idp links")
	}
	defer linkRows.Close()
	for linkRows.Next() {
		var link IDPLink
		if err := linkRows.Scan(&link.IDPConfigID, &link.Name); err != nil {
			return domain.NewUnavailable(err, "QUERY-lgnIs", "unable to scan idp link")
		}
		policy.IDPLinks = append(policy.IDPLinks, link)
	}
	if err := linkRows.Err(); err != nil {
		return domain.NewUnavailable(err, "QUERY-lgnIr", "unable to load idp links")
	}
	return nil
}
