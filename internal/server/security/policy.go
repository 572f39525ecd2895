package security

import "fmt"

type requirementKind int

// The zero kind is authenticatedOnly so an unset Requirement fails closed.
const (
	authenticatedOnly requirementKind = iota
	public
	requiresRole
)

// Requirement is the access rule declared for one route.
type Requirement struct {
	kind requirementKind
	role string
}

func Public() Requirement {
	return Requirement{kind: public}
}

func AuthenticatedOnly() Requirement {
	return Requirement{kind: authenticatedOnly}
}

func RequiresRole(role string) Requirement {
	return Requirement{kind: requiresRole, role: role}
}

func (r Requirement) String() string {
	switch r.kind {
	case public:
		return "public"
	case requiresRole:
		return fmt.Sprintf("role(%s)", r.role)
	default:
		return "authenticated"
	}
}

type DenyReason int

const (
	DenyNone DenyReason = iota
	DenyUnauthenticated
	DenyForbidden
)

func (d DenyReason) String() string {
	switch d {
	case DenyUnauthenticated:
		return "unauthenticated"
	case DenyForbidden:
		return "forbidden"
	default:
		return "none"
	}
}

type Decision struct {
	Allowed bool
	Reason  DenyReason
}

var (
	allow           = Decision{Allowed: true}
	denyUnauthentic = Decision{Reason: DenyUnauthenticated}
	denyForbidden   = Decision{Reason: DenyForbidden}
)

// Authorize decides a request from its SecurityContext and Requirement
// alone. Anonymous callers of any protected route are always
// DenyUnauthenticated, never DenyForbidden, so role names are not revealed.
func Authorize(sc SecurityContext, req Requirement) Decision {
	switch req.kind {
	case public:
		return allow
	case requiresRole:
		if !sc.IsAuthenticated() {
			return denyUnauthentic
		}
		if sc.HasRole(req.role) {
			return allow
		}
		return denyForbidden
	default:
		if !sc.IsAuthenticated() {
			return denyUnauthentic
		}
		return allow
	}
}
