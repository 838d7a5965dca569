package rbac

const (
	PermQuizCreate     = "quiz:create"
	PermQuizView       = "quiz:view"
	PermAttemptStart   = "attempt:start"
	PermAttemptAnswer  = "attempt:answer"
	PermAttemptSubmit  = "attempt:submit"
	PermAttemptViewOwn = "attempt:view-own"
	PermAttemptViewAll = "attempt:view-all"
	PermAttemptGrade   = "attempt:grade"
	PermEventsRead     = "events:read"
)

// RolePermissions is the policy enforced by Can and Require.
var RolePermissions = Policy{
	"student": {
		PermQuizView,
		PermAttemptStart,
		PermAttemptAnswer,
		PermAttemptSubmit,
		PermAttemptViewOwn,
	},
	"teacher": {
		PermQuizCreate,
		PermQuizView,
		PermAttemptViewAll,
		PermAttemptGrade,
		PermEventsRead,
	},
	"admin": {"*"},
}
