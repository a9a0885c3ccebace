package scheduler

import "syscall"

// UnknownTermination is the sentinel status for terminations that carry
// neither a plain exit code nor a signal number.
const UnknownTermination = 127

// TranslateExitStatus normalizes a runner termination status to a single
// shell-style integer. The backend already reports plain exits as their
// code and signal deaths as 128+signal, so values in [0,255] pass through
// unchanged; anything unrepresentable maps to UnknownTermination. The
// translation is total and idempotent on already-translated values.
func TranslateExitStatus(status int) int {
	if status >= 0 && status <= 255 {
		return status
	}
	return UnknownTermination
}

// TranslateWaitStatus reduces a raw syscall wait status to a shell-style
// integer: exit n → n, signal s → 128+s, anything else → 127.
func TranslateWaitStatus(ws syscall.WaitStatus) int {
	switch {
	case ws.Exited():
		return ws.ExitStatus()
	case ws.Signaled():
		return 128 + int(ws.Signal())
	default:
		return UnknownTermination
	}
}
