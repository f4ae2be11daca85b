package escalation

import "testing"

func TestCanTransition(t *testing.T) {
	all := []Status{StatusOpen, StatusInProgress, StatusEscalated, StatusResolved}
	allowed := map[[2]Status]bool{
		{StatusOpen, StatusInProgress}:      true,
		{StatusOpen, StatusEscalated}:       true,
		{StatusOpen, StatusResolved}:        true,
		{StatusInProgress, StatusEscalated}: true,
		{StatusInProgress, StatusResolved}:  true,
	}

	for _, from := range all {
		for _, to := range all {
			got := CanTransition(from, to).Allowed
			want := allowed[[2]Status{from, to}]
			if got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestCanTransition_UnknownSource(t *testing.T) {
	res := CanTransition(Status("archived"), StatusOpen)
	if res.Allowed {
		t.Fatal("expected unknown status to be rejected")
	}
	if res.Reason != `unknown escalation status "archived"` {
		t.Errorf("Reason = %q", res.Reason)
	}
}

func TestStatusPredicates(t *testing.T) {
	tests := []struct {
		status       Status
		wantActive   bool
		wantTerminal bool
	}{
		{StatusOpen, true, false},
		{StatusInProgress, true, false},
		{StatusEscalated, false, true},
		{StatusResolved, false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsActive(); got != tt.wantActive {
				t.Errorf("IsActive() = %v, want %v", got, tt.wantActive)
			}
			if got := tt.status.IsTerminal(); got != tt.wantTerminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.wantTerminal)
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	if st, err := ParseStatus(" In_Progress "); err != nil || st != StatusInProgress {
		t.Errorf("ParseStatus() = %q, %v", st, err)
	}
	if _, err := ParseStatus("closed"); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestInitialStatus(t *testing.T) {
	if InitialStatus() != StatusOpen {
		t.Errorf("InitialStatus() = %q, want %q", InitialStatus(), StatusOpen)
	}
}
