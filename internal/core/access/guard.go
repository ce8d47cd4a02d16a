// Package access holds the single authorization surface of the core.
//
// Authorize is a pure decision over (Actor, Operation, Target, Facts). Guard
// wraps it and resolves the researcher relationship facts through a
// RelationshipLookup before deciding.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mobistudy/mobistudy-api/internal/core/domain"
)

// Operation is one of the guarded mutations or reads.
type Operation string

const (
	OpReadParticipant   Operation = "readParticipant"
	OpListParticipants  Operation = "listParticipants"
	OpWriteParticipant  Operation = "writeParticipant"
	OpWriteEnrollment   Operation = "writeEnrollment"
	OpWriteTaskConsent  Operation = "writeTaskConsent"
	OpDeleteParticipant Operation = "deleteParticipant"
	OpReadStats         Operation = "readStats"
	OpReadHealthData    Operation = "readHealthData"
	OpSubmitHealthData  Operation = "submitHealthData"
)

// Actor is the authenticated caller.
type Actor struct {
	Role domain.Role
	Key  string
}

// Target names what an operation addresses. Participant targets are identified
// by their owning user key, and optionally their participant key.
type Target struct {
	UserKey        string
	ParticipantKey string
	StudyKey       string
	TeamKey        string
}

// Facts are the relationship lookups that only matter for researchers.
type Facts struct {
	// TeamMember: the researcher belongs to a team tied to Target.StudyKey or Target.TeamKey.
	TeamMember bool
	// Linked: the researcher shares at least one study with the target participant.
	Linked bool
}

// Scope tells the caller which participants an allowed actor may see.
type Scope int

const (
	ScopeNone Scope = iota
	// ScopeSelf limits results to the actor's own participant data.
	ScopeSelf
	// ScopeTeams limits results to studies run by the researcher's teams.
	ScopeTeams
	// ScopeAll imposes no limit.
	ScopeAll
)

// Decision is the outcome of Authorize.
type Decision struct {
	Allowed bool
	Scope   Scope
	Reason  string
}

func allow(scope Scope) Decision { return Decision{Allowed: true, Scope: scope} }

func deny(reason string) Decision { return Decision{Reason: reason} }

// Authorize decides whether actor may perform op on target. It never fails:
// unknown roles and malformed targets are denied.
func Authorize(actor Actor, op Operation, target Target, facts Facts) Decision {
	if actor.Key == "" {
		return deny("missing actor identity")
	}

	switch actor.Role {
	case domain.RoleAdmin:
		return allow(ScopeAll)
	case domain.RoleParticipant:
		return authorizeParticipant(actor, op, target)
	case domain.RoleResearcher:
		return authorizeResearcher(op, target, facts)
	default:
		return deny("unknown role")
	}
}

func authorizeParticipant(actor Actor, op Operation, target Target) Decision {
	switch op {
	case OpListParticipants, OpReadStats:
		return deny("participants cannot list participants or read statistics")
	case OpReadParticipant, OpWriteParticipant, OpWriteEnrollment, OpWriteTaskConsent,
		OpDeleteParticipant, OpReadHealthData, OpSubmitHealthData:
		if target.UserKey == "" || target.UserKey != actor.Key {
			return deny("participants can only act on themselves")
		}
		return allow(ScopeSelf)
	default:
		return deny("unknown operation")
	}
}

func authorizeResearcher(op Operation, target Target, facts Facts) Decision {
	switch op {
	case OpListParticipants:
		if target.StudyKey == "" && target.TeamKey == "" {
			return allow(ScopeTeams)
		}
		if !facts.TeamMember {
			return deny("researcher is not a member of a team running the study")
		}
		return allow(ScopeTeams)
	case OpReadStats, OpReadHealthData:
		if target.StudyKey == "" {
			return deny("a study is required")
		}
		if !facts.TeamMember {
			return deny("researcher is not a member of a team running the study")
		}
		return allow(ScopeTeams)
	case OpReadParticipant:
		if target.UserKey == "" && target.ParticipantKey == "" {
			return deny("missing participant")
		}
		if !facts.Linked {
			return deny("researcher has no study in common with the participant")
		}
		return allow(ScopeTeams)
	case OpWriteParticipant, OpWriteEnrollment, OpWriteTaskConsent, OpDeleteParticipant, OpSubmitHealthData:
		return deny("researchers cannot modify participants")
	default:
		return deny("unknown operation")
	}
}

// ParticipantRef identifies a participant by user key, participant key, or both.
type ParticipantRef struct {
	UserKey        string
	ParticipantKey string
}

// RelationshipLookup answers the team and study-sharing questions needed to
// authorize researchers.
type RelationshipLookup interface {
	// Team returns domain.ErrTeamNotFound when teamKey does not exist.
	Team(ctx context.Context, teamKey string) (*domain.Team, error)
	// TeamsForResearcher lists the researcher's teams; a non-empty studyKey
	// restricts the result to teams running that study.
	TeamsForResearcher(ctx context.Context, researcherKey, studyKey string) ([]domain.Team, error)
	IsResearcherLinkedToParticipant(ctx context.Context, researcherKey string, participant ParticipantRef) (bool, error)
}

// Guard resolves relationship facts and applies Authorize.
type Guard struct {
	lookup RelationshipLookup
	log    zerolog.Logger
}

// NewGuard returns a Guard backed by the given relationship lookup.
func NewGuard(lookup RelationshipLookup, log zerolog.Logger) *Guard {
	return &Guard{lookup: lookup, log: log.With().Str("component", "access").Logger()}
}

// Check returns the decision for the request. A denial is returned as an
// error wrapping domain.ErrForbidden; lookup failures wrap the store error.
func (g *Guard) Check(ctx context.Context, actor Actor, op Operation, target Target) (Decision, error) {
	facts, err := g.facts(ctx, actor, op, target)
	if err != nil {
		return Decision{}, fmt.Errorf("authorize %s: %w", op, err)
	}

	d := Authorize(actor, op, target, facts)
	if !d.Allowed {
		g.log.Warn().
			Str("actor", actor.Key).
			Str("role", string(actor.Role)).
			Str("operation", string(op)).
			Str("user_key", target.UserKey).
			Str("study_key", target.StudyKey).
			Str("reason", d.Reason).
			Msg("access denied")
		return d, fmt.Errorf("%w: %s", domain.ErrForbidden, d.Reason)
	}
	return d, nil
}

func (g *Guard) facts(ctx context.Context, actor Actor, op Operation, target Target) (Facts, error) {
	var f Facts
	if actor.Role != domain.RoleResearcher || actor.Key == "" {
		return f, nil
	}

	switch op {
	case OpListParticipants, OpReadStats, OpReadHealthData:
		if target.TeamKey != "" {
			team, err := g.lookup.Team(ctx, target.TeamKey)
			if err != nil && !errors.Is(err, domain.ErrTeamNotFound) {
				return f, err
			}
			f.TeamMember = team != nil && team.HasResearcher(actor.Key)
			if !f.TeamMember || target.StudyKey == "" {
				return f, nil
			}
		}
		if target.StudyKey != "" {
			teams, err := g.lookup.TeamsForResearcher(ctx, actor.Key, target.StudyKey)
			if err != nil {
				return f, err
			}
			f.TeamMember = len(teams) > 0
		}
	case OpReadParticipant:
		linked, err := g.lookup.IsResearcherLinkedToParticipant(ctx, actor.Key, ParticipantRef{
			UserKey:        target.UserKey,
			ParticipantKey: target.ParticipantKey,
		})
		if err != nil {
			return f, err
		}
		f.Linked = linked
	}
	return f, nil
}
