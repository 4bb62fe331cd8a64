// Package authz decides whether a principal may touch a task. Rules are
// an ordered list of pure predicates; the first rule that matches wins
// and everything after it is skipped.
package authz

import (
	"strings"

	"github.com/taskterm/taskterm/pkg/cluster"
	"github.com/taskterm/taskterm/pkg/config"
)

// Deny reasons. Root-owned containers get a distinguished reason.
const (
	ReasonUnauthorized     = "unauthorized access to container"
	ReasonUnauthorizedRoot = "unauthorized access to root container"
)

// Surface identifies which part of the API an authorization request is
// for. The sandbox surface can be configured exempt from enforcement.
type Surface string

const (
	SurfaceTerminal Surface = "terminal"
	SurfaceSandbox  Surface = "sandbox"
)

// Principal is the authenticated operator.
type Principal struct {
	Name   string
	Groups []string
}

// InGroup reports whether the principal belongs to any of the groups.
func (p Principal) InGroup(groups []string) bool {
	for _, g := range p.Groups {
		for _, candidate := range groups {
			if g == candidate {
				return true
			}
		}
	}
	return false
}

// Decision is the outcome of one authorization evaluation. Decisions are
// computed fresh per operation and never stored.
type Decision struct {
	Allowed bool
	Reason  string
}

// UnauthorizedError carries a deny decision across the request boundary.
type UnauthorizedError struct {
	Reason string
}

func (e *UnauthorizedError) Error() string { return e.Reason }

// Request carries everything a single evaluation needs.
type Request struct {
	Principal   Principal
	Task        *cluster.Task
	Surface     Surface
	AccessToken string
}

// rule inspects a request and either produces a decision or passes.
type rule func(e *Evaluator, req Request) (Decision, bool)

// Evaluator applies the ordered rule list.
type Evaluator struct {
	cfg    config.AuthConfig
	tokens *TokenService
	rules  []rule
}

// NewEvaluator creates an Evaluator. tokens may be nil when delegation is
// not configured.
func NewEvaluator(cfg config.AuthConfig, tokens *TokenService) *Evaluator {
	return &Evaluator{
		cfg:    cfg,
		tokens: tokens,
		rules: []rule{
			(*Evaluator).enforcementDisabled,
			(*Evaluator).allowListLabel,
			(*Evaluator).taskOwner,
			(*Evaluator).superAdmin,
			(*Evaluator).accessToken,
		},
	}
}

// Authorize evaluates the rule list for one request. Falls through to a
// deny whose reason distinguishes root-owned containers.
func (e *Evaluator) Authorize(req Request) Decision {
	for _, r := range e.rules {
		if decision, matched := r(e, req); matched {
			return decision
		}
	}
	reason := ReasonUnauthorized
	if req.Task != nil && req.Task.User == "root" {
		reason = ReasonUnauthorizedRoot
	}
	return Decision{Allowed: false, Reason: reason}
}

func (e *Evaluator) enforcementDisabled(req Request) (Decision, bool) {
	if !e.cfg.Enabled {
		return Decision{Allowed: true}, true
	}
	if req.Surface == SurfaceSandbox && e.cfg.AllSandboxesGranted {
		return Decision{Allowed: true}, true
	}
	return Decision{}, false
}

// allowListLabel matches only when the principal appears in the task's
// comma-separated allow-list label. A label listing other people does not
// short-circuit the owner and super-admin rules below.
func (e *Evaluator) allowListLabel(req Request) (Decision, bool) {
	value, ok := req.Task.Label(e.cfg.AllowedLabel)
	if !ok {
		return Decision{}, false
	}
	for _, name := range strings.Split(value, ",") {
		if strings.TrimSpace(name) == req.Principal.Name {
			return Decision{Allowed: true}, true
		}
	}
	return Decision{}, false
}

func (e *Evaluator) taskOwner(req Request) (Decision, bool) {
	if req.Task.User != "" && req.Task.User == req.Principal.Name {
		return Decision{Allowed: true}, true
	}
	return Decision{}, false
}

func (e *Evaluator) superAdmin(req Request) (Decision, bool) {
	if len(e.cfg.SuperAdminGroups) > 0 && req.Principal.InGroup(e.cfg.SuperAdminGroups) {
		return Decision{Allowed: true}, true
	}
	return Decision{}, false
}

func (e *Evaluator) accessToken(req Request) (Decision, bool) {
	if req.AccessToken == "" || e.tokens == nil {
		return Decision{}, false
	}
	if err := e.tokens.Validate(req.AccessToken, req.Task.ID); err == nil {
		return Decision{Allowed: true}, true
	}
	return Decision{}, false
}
