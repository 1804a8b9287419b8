package statecraft

import "strings"

// Internal event type names the engine raises on itself during a step
// ("<machineId>.state.<key>.enter", etc.). These are the
// event types that show up in MachineEvent.Type for Source == Internal
// records, and the names a behavior's RequiredContext or a guard keyed off
// evt.Type can match against. Exported so pkg/statecraft/engine (which
// actually emits them during a step) and the root Machine facade (which
// scans for guard-fail types) share one definition.

func StateEnterEventType(machineID, stateKey string) string {
	return machineID + ".state." + stateKey + ".enter"
}

func StateExitEventType(machineID, stateKey string) string {
	return machineID + ".state." + stateKey + ".exit"
}

func ActionStartEventType(machineID, name string) string {
	return machineID + ".action." + name + ".start"
}

func ActionFinishEventType(machineID, name string) string {
	return machineID + ".action." + name + ".finish"
}

func GuardPassEventType(machineID, name string) string {
	return machineID + ".guard." + name + ".pass"
}

func GuardFailEventType(machineID, name string) string {
	return machineID + ".guard." + name + ".fail"
}

func TransitionEventType(machineID, from, event, to string) string {
	return machineID + ".transition." + from + "." + event + "." + to
}

// GuardNameFromFailEventType extracts "<name>" out of
// "<machineId>.guard.<name>.fail", used when scanning the event log for
// validation-guard failures. Returns "", false if typ does not
// match the expected shape for the given machineID.
func GuardNameFromFailEventType(machineID, typ string) (string, bool) {
	prefix := machineID + ".guard."
	if !strings.HasPrefix(typ, prefix) {
		return "", false
	}
	rest := strings.TrimPrefix(typ, prefix)
	if !strings.HasSuffix(rest, ".fail") {
		return "", false
	}
	return strings.TrimSuffix(rest, ".fail"), true
}
