package store

import (
	"context"
	"sort"

	"github.com/sells-group/lender-match/internal/model"
)

type notFoundError struct{}

func (notFoundError) Error() string  { return "not found" }
func (notFoundError) NotFound() bool { return true }

// ErrNotFound is returned (wrapped) when a requested record does not exist.
var ErrNotFound error = notFoundError{}

type conflictError struct{}

func (conflictError) Error() string { return "already exists" }

// ErrConflict is returned (wrapped) when an insert collides with a unique
// key, such as a second lender with the same slug.
var ErrConflict error = conflictError{}

// PolicyFilter specifies criteria for listing policies.
type PolicyFilter struct {
	LenderID   string `json:"lender_id,omitempty"`
	ActiveOnly bool   `json:"active_only,omitempty"`
}

// ApplicationFilter specifies criteria for listing applications.
type ApplicationFilter struct {
	Status model.ApplicationStatus `json:"status,omitempty"`
	Limit  int                     `json:"limit,omitempty"`
	Offset int                     `json:"offset,omitempty"`
}

// DefaultListLimit caps list queries that do not set a limit.
const DefaultListLimit = 50

// Store defines the persistence interface for lenders, policies,
// applications and match runs.
type Store interface {
	// Lenders
	CreateLender(ctx context.Context, l model.Lender) (*model.Lender, error)
	GetLender(ctx context.Context, id string) (*model.Lender, error)
	GetLenderBySlug(ctx context.Context, slug string) (*model.Lender, error)
	ListLenders(ctx context.Context) ([]model.Lender, error)

	// Policies. Storing or activating an active version retires the other
	// active versions of the same lender and policy name.
	CreatePolicy(ctx context.Context, p model.PolicyRecord) (*model.PolicyRecord, error)
	GetPolicy(ctx context.Context, id string) (*model.PolicyRecord, error)
	ListPolicies(ctx context.Context, filter PolicyFilter) ([]model.PolicyRecord, error)
	ActivePolicies(ctx context.Context) ([]model.PolicyRecord, error)
	SetPolicyActive(ctx context.Context, id string, active bool) error

	// Applications
	CreateApplication(ctx context.Context, app model.Application) (*model.Application, error)
	GetApplication(ctx context.Context, id string) (*model.Application, error)
	ListApplications(ctx context.Context, filter ApplicationFilter) ([]model.Application, error)
	UpdateApplicationStatus(ctx context.Context, id string, status model.ApplicationStatus) error

	// Match runs
	SaveMatchRun(ctx context.Context, run model.MatchRun) (*model.MatchRun, error)
	GetLatestMatchRun(ctx context.Context, applicationID string) (*model.MatchRun, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// attachPolicies groups policies under their lenders, keeping policy order.
func attachPolicies(lenders []model.Lender, policies []model.PolicyRecord) {
	idx := make(map[string]int, len(lenders))
	for i := range lenders {
		idx[lenders[i].ID] = i
		lenders[i].Policies = []model.PolicyRecord{}
	}
	for _, p := range policies {
		if i, ok := idx[p.LenderID]; ok {
			lenders[i].Policies = append(lenders[i].Policies, p)
		}
	}
}

// sortPolicies orders policies by lender name, policy name, version and id
// so that policy-set hashes are stable across backends.
func sortPolicies(ps []model.PolicyRecord) {
	sort.SliceStable(ps, func(i, j int) bool {
		a, b := ps[i], ps[j]
		if a.LenderName != b.LenderName {
			return a.LenderName < b.LenderName
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		if a.Version != b.Version {
			return a.Version < b.Version
		}
		return a.ID < b.ID
	})
}

func listLimit(n int) int {
	if n <= 0 {
		return DefaultListLimit
	}
	return n
}
