package common

// Role identifiers gate the privileged operations of the protocol. Grants
// live in state and are seeded from configuration at boot; governance of the
// grant set itself is out of scope.
const (
	// RoleProtocolAdmin may liquidate defaulted loans, deposit royalties,
	// mint settlement tokens and register asset references.
	RoleProtocolAdmin = "ROLE_PROTOCOL_ADMIN"
	// RoleLoanApprover may activate applied loans.
	RoleLoanApprover = "ROLE_LOAN_APPROVER"
)
