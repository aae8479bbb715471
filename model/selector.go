package model

import "sort"

// Role is a seat in a deliberation protocol that one model fills.
type Role string

// Protocol roles.
const (
	RoleResponder     Role = "responder"
	RoleResearcher    Role = "researcher"
	RoleSynthesizer   Role = "synthesizer"
	RoleRatifier      Role = "ratifier"
	RoleArchitect     Role = "architect"
	RoleAuditor       Role = "auditor"
	RoleContextualist Role = "contextualist"
	RoleJudge         Role = "judge"
	RoleIdeaSynth     Role = "idea_synthesizer"
	RoleDrafter       Role = "drafter"
	RoleCritic        Role = "critic"
	RolePolisher      Role = "polisher"
	RoleReviewer      Role = "reviewer"
)

// DefaultRoles maps each role to its built-in model.
var DefaultRoles = map[Role]ModelName{
	RoleResponder:     ModelClaudeSonnet,
	RoleResearcher:    ModelPerplexityResearcher,
	RoleSynthesizer:   ModelGeminiPro,
	RoleRatifier:      ModelOpusSynthesis,
	RoleArchitect:     ModelGeminiArchitect,
	RoleAuditor:       ModelDeepSeekV3,
	RoleContextualist: ModelKimiResearcher,
	RoleJudge:         ModelOpusSynthesis,
	RoleIdeaSynth:     ModelClaudeSonnet,
	RoleDrafter:       ModelKimiSynthesis,
	RoleCritic:        ModelClaudeSonnet,
	RolePolisher:      ModelOpusSynthesis,
	RoleReviewer:      ModelDeepSeekV3,
}

// Selector resolves protocol roles to models with override support.
type Selector struct {
	defaults   map[Role]ModelName
	overrides  map[Role]ModelName
	globalOver ModelName
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// NewSelector creates a selector seeded with DefaultRoles.
func NewSelector(opts ...SelectorOption) *Selector {
	s := &Selector{
		defaults:  make(map[Role]ModelName, len(DefaultRoles)),
		overrides: make(map[Role]ModelName),
	}
	for r, m := range DefaultRoles {
		s.defaults[r] = m
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithRoleOverride sets the model for one role.
func WithRoleOverride(role Role, model ModelName) SelectorOption {
	return func(s *Selector) {
		s.overrides[role] = model
	}
}

// WithRoleOverrides sets several role overrides at once. Empty values are
// ignored.
func WithRoleOverrides(overrides map[string]string) SelectorOption {
	return func(s *Selector) {
		for role, model := range overrides {
			if model == "" {
				continue
			}
			s.overrides[Role(role)] = ModelName(model)
		}
	}
}

// WithGlobalOverride forces every role onto one model.
func WithGlobalOverride(model ModelName) SelectorOption {
	return func(s *Selector) {
		s.globalOver = model
	}
}

// Select returns the model for role.
// Priority order: global override > role override > default > claude-sonnet.
func (s *Selector) Select(role Role) ModelName {
	if s.globalOver != "" {
		return s.globalOver
	}
	if m, ok := s.overrides[role]; ok {
		return m
	}
	if m, ok := s.defaults[role]; ok {
		return m
	}
	return ModelClaudeSonnet
}

// Roles returns every role the selector knows, sorted.
func (s *Selector) Roles() []Role {
	set := make(map[Role]bool, len(s.defaults)+len(s.overrides))
	for r := range s.defaults {
		set[r] = true
	}
	for r := range s.overrides {
		set[r] = true
	}
	out := make([]Role, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone returns a copy of the selector with the same configuration.
func (s *Selector) Clone() *Selector {
	overrides := make(map[Role]ModelName, len(s.overrides))
	for k, v := range s.overrides {
		overrides[k] = v
	}
	defaults := make(map[Role]ModelName, len(s.defaults))
	for k, v := range s.defaults {
		defaults[k] = v
	}
	return &Selector{
		defaults:   defaults,
		overrides:  overrides,
		globalOver: s.globalOver,
	}
}
