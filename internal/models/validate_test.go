package models

import (
	"errors"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

func baseTicket() Ticket {
	return Ticket{ID: "T1", Title: "Fix login", Status: StatusOpen, Priority: 3}
}

func fieldErr(t *testing.T, err error, field string) error {
	t.Helper()
	var errs validation.Errors
	if !errors.As(err, &errs) {
		t.Fatalf("expected validation.Errors, got %v", err)
	}
	return errs[field]
}

func TestValidateEdit_BlockedWithoutReason(t *testing.T) {
	tk := baseTicket()
	tk.Status = StatusBlocked
	err := ValidateEdit(tk)
	if err == nil {
		t.Fatal("blocked ticket without reason should fail")
	}
	if fe := fieldErr(t, err, "_blockedReason"); fe == nil {
		t.Errorf("expected _blockedReason error, got %v", err)
	}
}

func TestValidateEdit_BlockedWhitespaceReason(t *testing.T) {
	tk := baseTicket()
	tk.Status = StatusBlocked
	tk.BlockedReason = "   "
	if err := ValidateEdit(tk); err == nil {
		t.Fatal("whitespace reason should fail")
	}
}

func TestValidateEdit_BlockedWithReason(t *testing.T) {
	tk := baseTicket()
	tk.Status = StatusBlocked
	tk.BlockedReason = "waiting on vendor"
	if err := ValidateEdit(tk); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateEdit_InProgressWithoutReason(t *testing.T) {
	tk := baseTicket()
	tk.Status = StatusInProgress
	if err := ValidateEdit(tk); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateEdit_PriorityOneNeedsAssignee(t *testing.T) {
	tk := baseTicket()
	tk.Priority = PriorityCritical
	err := ValidateEdit(tk)
	if err == nil {
		t.Fatal("priority 1 without assignee should fail")
	}
	if fe := fieldErr(t, err, "assignee"); fe == nil {
		t.Errorf("expected assignee error, got %v", err)
	}

	tk.Assignee = Ptr("  ")
	if err := ValidateEdit(tk); err == nil {
		t.Fatal("whitespace assignee should fail")
	}

	tk.Assignee = Ptr("Alice Johnson")
	if err := ValidateEdit(tk); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateEdit_LowPriorityWithoutAssignee(t *testing.T) {
	tk := baseTicket()
	tk.Priority = PriorityMinimal
	if err := ValidateEdit(tk); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPatchApply_LeavingBlockedDropsReason(t *testing.T) {
	tk := baseTicket()
	tk.Status = StatusBlocked
	tk.BlockedReason = "vendor"

	out := Patch{Status: Ptr(StatusOpen)}.Apply(tk)
	if out.BlockedReason != "" {
		t.Errorf("blocked reason = %q, want empty", out.BlockedReason)
	}
	if tk.BlockedReason != "vendor" {
		t.Error("Apply must not mutate its input")
	}
}

func TestPatchApply_EmptyAssigneeClears(t *testing.T) {
	tk := baseTicket()
	tk.Assignee = Ptr("Bob")
	out := Patch{Assignee: Ptr("")}.Apply(tk)
	if out.Assignee != nil {
		t.Errorf("assignee = %q, want nil", *out.Assignee)
	}
}

func TestFilterPatchMerge(t *testing.T) {
	f := Filters{SearchText: "login", Statuses: []Status{StatusOpen}}
	out := FilterPatch{Tags: []string{"bug"}}.Merge(f)
	if out.SearchText != "login" || len(out.Statuses) != 1 || len(out.Tags) != 1 {
		t.Errorf("merge lost fields: %+v", out)
	}
	out = FilterPatch{Statuses: []Status{}}.Merge(out)
	if len(out.Statuses) != 0 {
		t.Errorf("empty slice should clear statuses: %+v", out.Statuses)
	}
}
