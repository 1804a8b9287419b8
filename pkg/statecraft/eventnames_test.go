package statecraft

import "testing"

func TestEventNameFormattersMatchExpectedShape(t *testing.T) {
	cases := []struct {
		got, want string
	}{
		{StateEnterEventType("door", "open"), "door.state.open.enter"},
		{StateExitEventType("door", "open"), "door.state.open.exit"},
		{ActionStartEventType("door", "log"), "door.action.log.start"},
		{ActionFinishEventType("door", "log"), "door.action.log.finish"},
		{GuardPassEventType("door", "isPositive"), "door.guard.isPositive.pass"},
		{GuardFailEventType("door", "isPositive"), "door.guard.isPositive.fail"},
		{TransitionEventType("door", "closed", "OPEN", "open"), "door.transition.closed.OPEN.open"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Fatalf("expected %q, got %q", tc.want, tc.got)
		}
	}
}

func TestGuardNameFromFailEventTypeRoundTrips(t *testing.T) {
	name, ok := GuardNameFromFailEventType("door", GuardFailEventType("door", "isPositive"))
	if !ok || name != "isPositive" {
		t.Fatalf("expected isPositive, got %q ok=%v", name, ok)
	}
}

func TestGuardNameFromFailEventTypeRejectsMismatchedMachineOrShape(t *testing.T) {
	if _, ok := GuardNameFromFailEventType("other", GuardFailEventType("door", "isPositive")); ok {
		t.Fatalf("expected a mismatched machine id to fail")
	}
	if _, ok := GuardNameFromFailEventType("door", GuardPassEventType("door", "isPositive")); ok {
		t.Fatalf("expected a .pass event type not to match the .fail shape")
	}
}
