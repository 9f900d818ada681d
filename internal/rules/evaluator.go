// Package rules decides whether a proposed AI action may skip human approval.
package rules

import (
	"sort"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/governor/internal/models"
)

// Condition names understood by EvaluateConditions.
const (
	CondRiskLevelLTE = "risk_level_lte"
	CondActionTypeIn = "action_type_in"
	CondScopeEq      = "scope_eq"
	CondSignalIn     = "signal_in"
	CondTimeWindow   = "time_window"
)

// TimeWindowAnytime is the only time_window value that matches.
const TimeWindowAnytime = "anytime"

// Proposal describes an action the assistant wants to take, as seen by the rules.
type Proposal struct {
	ActionType   models.ActionType `json:"actionType"`
	RiskLevel    models.RiskLevel  `json:"riskLevel"`
	Scope        models.Scope      `json:"scope"`
	OriginSignal string            `json:"originSignal"`
}

type conditionHandler func(param any, p Proposal) bool

var handlers = map[string]conditionHandler{
	CondRiskLevelLTE: riskLevelLTE,
	CondActionTypeIn: actionTypeIn,
	CondScopeEq:      scopeEq,
	CondSignalIn:     signalIn,
	CondTimeWindow:   timeWindow,
}

// KnownCondition reports whether name has a handler.
func KnownCondition(name string) bool {
	_, ok := handlers[name]
	return ok
}

// EvaluateConditions returns true only if every condition matches p.
// An empty set matches. An unknown condition name fails the whole evaluation.
func EvaluateConditions(conditions map[string]any, p Proposal, orgID string) bool {
	// evaluate in a stable order so logs are deterministic
	names := make([]string, 0, len(conditions))
	for name := range conditions {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		h, ok := handlers[name]
		if !ok {
			log.Warn().Str("org_id", orgID).Str("condition", name).Msg("unknown auto-approval condition")
			return false
		}
		if !h(conditions[name], p) {
			return false
		}
	}

	return true
}

func riskLevelLTE(param any, p Proposal) bool {
	s, ok := asString(param)
	if !ok {
		return false
	}
	threshold := models.RiskLevel(s)
	if !threshold.Valid() || !p.RiskLevel.Valid() {
		return false
	}
	return p.RiskLevel.Rank() <= threshold.Rank()
}

func actionTypeIn(param any, p Proposal) bool {
	list, ok := asStringList(param)
	if !ok {
		return false
	}
	for _, v := range list {
		if models.ActionType(v) == p.ActionType {
			return true
		}
	}
	return false
}

func scopeEq(param any, p Proposal) bool {
	s, ok := asString(param)
	if !ok {
		return false
	}
	return models.Scope(s) == p.Scope
}

func signalIn(param any, p Proposal) bool {
	list, ok := asStringList(param)
	if !ok {
		return false
	}
	for _, v := range list {
		if v == p.OriginSignal {
			return true
		}
	}
	return false
}

// timeWindow is a placeholder: no real windows are implemented yet.
func timeWindow(param any, _ Proposal) bool {
	s, ok := asString(param)
	return ok && s == TimeWindowAnytime
}

func asString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case models.RiskLevel:
		return string(s), true
	case models.Scope:
		return string(s), true
	}
	return "", false
}

// asStringList accepts []string or a []any made only of strings, which is
// what JSON and YAML decoding produce.
func asStringList(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		return list, true
	case []models.ActionType:
		out := make([]string, len(list))
		for i, t := range list {
			out[i] = string(t)
		}
		return out, true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}
