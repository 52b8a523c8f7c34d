package models

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Edit rule error codes.
var (
	ErrBlockedNeedsReason       = validation.NewError("blocked_needs_reason", "a blocked ticket needs a reason")
	ErrPriorityOneNeedsAssignee = validation.NewError("priority_one_needs_assignee", "a critical ticket needs an assignee")
)

// ValidateEdit checks the cross-field rules a ticket must satisfy after an edit:
// blocked tickets carry a reason and priority 1 tickets have an assignee.
func ValidateEdit(t Ticket) error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Title, validation.Required.Error("title is required")),
		validation.Field(&t.Status, validation.By(func(any) error {
			if !t.Status.Valid() {
				return validation.NewError("invalid_status", "unknown status")
			}
			return nil
		})),
		validation.Field(&t.Priority, validation.Min(PriorityCritical), validation.Max(PriorityMinimal)),
		validation.Field(&t.BlockedReason, validation.When(t.Status == StatusBlocked,
			validation.By(notBlank(ErrBlockedNeedsReason)))),
		validation.Field(&t.Assignee, validation.When(t.Priority == PriorityCritical,
			validation.By(func(v any) error {
				a, _ := v.(*string)
				if a == nil || strings.TrimSpace(*a) == "" {
					return ErrPriorityOneNeedsAssignee
				}
				return nil
			}))),
	)
}

func notBlank(errCode validation.Error) validation.RuleFunc {
	return func(v any) error {
		s, _ := v.(string)
		if strings.TrimSpace(s) == "" {
			return errCode
		}
		return nil
	}
}
