// Package policy holds the authorization rules for tasks and users. Every
// function is pure: it looks only at the actor, the task snapshot and the
// requested target, and never touches storage.
package policy

import (
	"strings"
	"time"

	"task-service/internal/model"
)

type Code string

const (
	CodeForbidden         Code = "forbidden"
	CodeInvalidTransition Code = "invalid_transition"
	CodeMissingEvidence   Code = "missing_evidence"
	CodeConfirmRequired   Code = "confirmation_required"
	CodeLocked            Code = "locked"
)

type Decision struct {
	Allowed bool
	Code    Code
	Reason  string
}

func allow() Decision {
	return Decision{Allowed: true}
}

func deny(code Code, reason string) Decision {
	return Decision{Code: code, Reason: reason}
}

// Actor is the identity a decision is made for.
type Actor = model.Principal

func isCreator(actor Actor, task *model.Task) bool {
	return task.CreatorID == actor.UserID
}

func isTerminal(status model.TaskStatus) bool {
	return status == model.TaskStatusCompleted || status == model.TaskStatusCancelled
}

// CanTransition gates changeTaskStatus. confirmed must be true for the
// completed -> in-progress revert.
func CanTransition(actor Actor, task *model.Task, target model.TaskStatus, confirmed bool) Decision {
	if !target.Valid() {
		return deny(CodeInvalidTransition, "unknown status "+string(target))
	}
	current := task.Status
	if current == target {
		return deny(CodeInvalidTransition, "task is already "+string(target))
	}

	if current == model.TaskStatusCompleted {
		if target == model.TaskStatusInProgress {
			if !actor.IsAdmin() && !task.IsAssignee(actor.UserID) {
				return deny(CodeForbidden, "only the assignee or an admin can reopen a completed task")
			}
			if !confirmed {
				return deny(CodeConfirmRequired, "reopening a completed task must be confirmed")
			}
			return allow()
		}
		if !actor.IsAdmin() {
			return deny(CodeForbidden, "only an admin can change the status of a completed task")
		}
		return completedExit(task, target)
	}

	switch target {
	case model.TaskStatusInProgress:
		if current != model.TaskStatusUnassigned && current != model.TaskStatusAssigned {
			return deny(CodeInvalidTransition, "cannot start a task that is "+string(current))
		}
		if task.IsAssignee(actor.UserID) {
			return allow()
		}
		if actor.IsAdmin() {
			if !task.HasAssignee() {
				return deny(CodeInvalidTransition, "task must be assigned before it can start")
			}
			return allow()
		}
		return deny(CodeForbidden, "only the assignee can start this task")

	case model.TaskStatusCompleted:
		if current != model.TaskStatusInProgress {
			return deny(CodeInvalidTransition, "only an in-progress task can be completed")
		}
		if !actor.IsAdmin() && !task.IsAssignee(actor.UserID) {
			return deny(CodeForbidden, "only the assignee or an admin can complete this task")
		}
		if missing := task.MissingEvidence(); len(missing) > 0 {
			return deny(CodeMissingEvidence, "missing before completion: "+strings.Join(missing, ", "))
		}
		return allow()

	case model.TaskStatusCancelled:
		if !isCreator(actor, task) && actor.Role != model.RoleAdmin && actor.Role != model.RoleManager {
			return deny(CodeForbidden, "only the creator, a manager or an admin can cancel this task")
		}
		return allow()

	case model.TaskStatusAssigned:
		if current == model.TaskStatusCancelled {
			return reopenCancelled(actor, task, target)
		}
		if current != model.TaskStatusUnassigned {
			return deny(CodeInvalidTransition, "cannot move a "+string(current)+" task back to assigned")
		}
		if !task.HasAssignee() {
			return deny(CodeInvalidTransition, "task has no assignee")
		}
		if !actor.IsPrivileged() {
			return deny(CodeForbidden, "only a supervisor, manager or admin can mark a task assigned")
		}
		return allow()

	case model.TaskStatusUnassigned:
		if current == model.TaskStatusCancelled {
			return reopenCancelled(actor, task, target)
		}
		if !actor.IsPrivileged() {
			return deny(CodeForbidden, "only a supervisor, manager or admin can unassign a task")
		}
		return allow()
	}

	return deny(CodeInvalidTransition, "unsupported transition")
}

func completedExit(task *model.Task, target model.TaskStatus) Decision {
	if target == model.TaskStatusAssigned && !task.HasAssignee() {
		return deny(CodeInvalidTransition, "task has no assignee")
	}
	return allow()
}

func reopenCancelled(actor Actor, task *model.Task, target model.TaskStatus) Decision {
	if !actor.IsAdmin() {
		return deny(CodeForbidden, "only an admin can reopen a cancelled task")
	}
	if target == model.TaskStatusAssigned && !task.HasAssignee() {
		return deny(CodeInvalidTransition, "task has no assignee")
	}
	return allow()
}

// CanEdit gates updateTask. Admins may edit anything; managers, supervisors
// and the current assignee may edit tasks that are not completed.
func CanEdit(actor Actor, task *model.Task) Decision {
	if actor.IsAdmin() {
		return allow()
	}
	if task.Status == model.TaskStatusCompleted {
		return deny(CodeLocked, "completed tasks can only be edited by an admin")
	}
	if actor.IsManager() || actor.IsSupervisor() || task.IsAssignee(actor.UserID) {
		return allow()
	}
	return deny(CodeForbidden, "you cannot edit this task")
}

// CanDelete: admin deletes anything, a manager anything but completed tasks,
// everyone else only open tasks they created.
func CanDelete(actor Actor, task *model.Task) Decision {
	switch actor.Role {
	case model.RoleAdmin:
		return allow()
	case model.RoleManager:
		if task.Status == model.TaskStatusCompleted {
			return deny(CodeLocked, "managers cannot delete completed tasks")
		}
		return allow()
	case model.RoleSupervisor, model.RoleTechnician, model.RoleContractor:
		if !isCreator(actor, task) {
			return deny(CodeForbidden, "you can only delete tasks you created")
		}
		if isTerminal(task.Status) {
			return deny(CodeLocked, "completed or cancelled tasks cannot be deleted")
		}
		return allow()
	default:
		return deny(CodeForbidden, "unknown role")
	}
}

// CanCreateTask allows every known role. Technicians and contractors may
// only create tasks for themselves.
func CanCreateTask(actor Actor, assignee *model.Profile) Decision {
	if !actor.Role.Valid() {
		return deny(CodeForbidden, "unknown role")
	}
	if assignee == nil || actor.IsPrivileged() {
		return allow()
	}
	if assignee.ID != actor.UserID {
		return deny(CodeForbidden, "you can only assign tasks you create to yourself")
	}
	return allow()
}

// CanAssign gates assignTask and assignee changes made through updateTask.
// assignee is nil when the assignment is being cleared.
func CanAssign(actor Actor, task *model.Task, assignee *model.Profile) Decision {
	if task.Status == model.TaskStatusCompleted && !actor.IsAdmin() {
		return deny(CodeLocked, "only an admin can reassign a completed task")
	}
	if task.Status == model.TaskStatusCancelled && !actor.IsAdmin() {
		return deny(CodeLocked, "cancelled tasks cannot be reassigned")
	}

	if actor.IsPrivileged() {
		if assignee != nil && assignee.Role.Outranks(actor.Role) {
			return deny(CodeForbidden, "cannot assign work to a higher role")
		}
		return allow()
	}

	// Technicians and contractors may claim an unassigned task or release
	// their own.
	if assignee != nil {
		if assignee.ID != actor.UserID {
			return deny(CodeForbidden, "you can only assign tasks to yourself")
		}
		if task.HasAssignee() && !task.IsAssignee(actor.UserID) {
			return deny(CodeForbidden, "task is already assigned to someone else")
		}
		return allow()
	}
	if !task.IsAssignee(actor.UserID) {
		return deny(CodeForbidden, "you can only release tasks assigned to you")
	}
	return allow()
}

// CanBulkReassign adds the bulk-selection rule on top of CanAssign: a task
// that already has an assignee is only picked up by an admin, or by a
// privileged role once it is past its due date.
func CanBulkReassign(actor Actor, task *model.Task, assignee *model.Profile, now time.Time) Decision {
	if d := CanAssign(actor, task, assignee); !d.Allowed {
		return d
	}
	if !task.HasAssignee() || actor.IsAdmin() {
		return allow()
	}
	if actor.IsPrivileged() && task.IsOverdue(now) {
		return allow()
	}
	return deny(CodeLocked, "task is already assigned")
}

// CanUploadPhoto follows the edit rule: evidence is part of the task.
func CanUploadPhoto(actor Actor, task *model.Task) Decision {
	if task.Status == model.TaskStatusCancelled && !actor.IsAdmin() {
		return deny(CodeLocked, "cannot attach photos to a cancelled task")
	}
	return CanEdit(actor, task)
}

// CanChangeRole requires the actor to outrank both the current and the new
// role. Admins may grant any role, including admin, to anyone but themselves.
func CanChangeRole(actor Actor, target *model.Profile, newRole model.Role) Decision {
	if !newRole.Valid() {
		return deny(CodeForbidden, "unknown role "+string(newRole))
	}
	if target.ID == actor.UserID {
		return deny(CodeForbidden, "you cannot change your own role")
	}
	if actor.IsAdmin() {
		return allow()
	}
	if !actor.IsPrivileged() {
		return deny(CodeForbidden, "you cannot change roles")
	}
	if !actor.Role.Outranks(target.Role) || !actor.Role.Outranks(newRole) {
		return deny(CodeForbidden, "you can only manage roles below your own")
	}
	return allow()
}

// CanCreateUser gates the privileged create-user function.
func CanCreateUser(actor Actor, role model.Role) Decision {
	if !role.Valid() {
		return deny(CodeForbidden, "unknown role "+string(role))
	}
	if !actor.IsPrivileged() {
		return deny(CodeForbidden, "only supervisors, managers and admins can create users")
	}
	if actor.IsAdmin() || actor.Role.Outranks(role) {
		return allow()
	}
	return deny(CodeForbidden, "you can only create users below your own role")
}

func CanListEmails(actor Actor) Decision {
	if !actor.IsPrivileged() {
		return deny(CodeForbidden, "only supervisors, managers and admins can view emails")
	}
	return allow()
}
