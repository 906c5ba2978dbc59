package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status  Status
	Checks  map[string]CheckResult
	Members int
}

// Service coordinates health checks.
type Service struct {
	db      DBPinger
	members MembershipCounter
}

// New creates a Service. members can be nil.
func New(db DBPinger, members MembershipCounter) *Service {
	return &Service{db: db, members: members}
}

// Check runs health checks against all components.
// A node with an empty membership cannot serve operations and reports degraded.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if err := s.db.Ping(ctx); err != nil {
		checks["database"] = CheckError
	} else {
		checks["database"] = CheckOK
	}

	members := 0
	if s.members != nil {
		members = s.members.Len()
		if members == 0 {
			checks["membership"] = CheckError
		} else {
			checks["membership"] = CheckOK
		}
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks, Members: members}
}
