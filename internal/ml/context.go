package ml

import "fmt"

// ContextKind selects the ensemble weighting profile for a prediction.
type ContextKind int

const (
	ContextStandard ContextKind = iota
	ContextInjuryReturn
	ContextNewTeam
	ContextBackToBack
	ContextEliteDefense
)

func (k ContextKind) String() string {
	switch k {
	case ContextStandard:
		return "standard"
	case ContextInjuryReturn:
		return "injury_return"
	case ContextNewTeam:
		return "new_team"
	case ContextBackToBack:
		return "back_to_back"
	case ContextEliteDefense:
		return "elite_defense"
	}
	return fmt.Sprintf("context(%d)", int(k))
}

// RiskFactors are the situational flags known for a player's game. Several
// can hold at once; every one that holds widens the interval.
type RiskFactors struct {
	InjuryReturn bool `json:"injury_return"`
	NewTeam      bool `json:"new_team"`
	BackToBack   bool `json:"back_to_back"`
	EliteDefense bool `json:"elite_defense"`
}

// Any reports whether at least one risk factor applies.
func (r RiskFactors) Any() bool {
	return r.InjuryReturn || r.NewTeam || r.BackToBack || r.EliteDefense
}

// Context is the prediction context: the profile kind plus the full set of
// risk factors that produced it.
type Context struct {
	Kind  ContextKind
	Risks RiskFactors
}

// ContextFor picks the profile kind by priority: injury return, new team,
// back-to-back, elite defense, then standard.
func ContextFor(r RiskFactors) Context {
	kind := ContextStandard
	switch {
	case r.InjuryReturn:
		kind = ContextInjuryReturn
	case r.NewTeam:
		kind = ContextNewTeam
	case r.BackToBack:
		kind = ContextBackToBack
	case r.EliteDefense:
		kind = ContextEliteDefense
	}
	return Context{Kind: kind, Risks: r}
}

// Profile is the weight split between the two base models.
type Profile struct {
	Name     string
	GBM      float64
	Sequence float64
}

// ProfileFor returns the weighting profile for ctx. Every kind is listed
// explicitly; an unrecognised kind is an error.
func ProfileFor(ctx Context) (Profile, error) {
	switch ctx.Kind {
	case ContextStandard:
		return Profile{Name: ctx.Kind.String(), GBM: 0.60, Sequence: 0.40}, nil
	case ContextInjuryReturn:
		return Profile{Name: ctx.Kind.String(), GBM: 0.35, Sequence: 0.65}, nil
	case ContextNewTeam:
		return Profile{Name: ctx.Kind.String(), GBM: 0.45, Sequence: 0.55}, nil
	case ContextBackToBack:
		return Profile{Name: ctx.Kind.String(), GBM: 0.55, Sequence: 0.45}, nil
	case ContextEliteDefense:
		return Profile{Name: ctx.Kind.String(), GBM: 0.65, Sequence: 0.35}, nil
	default:
		return Profile{}, fmt.Errorf("no weighting profile for %s", ctx.Kind)
	}
}
