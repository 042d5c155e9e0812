// Package safety decides whether a proposed action may run. Every action
// passes through the validator's state machine; destructive operations are
// blocked outright, sensitive ones are held for the confirmation gate, and
// the emergency stop can veto everything at any time.
package safety

import (
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/kestrelhq/kestrel/api/schemas"
	"github.com/kestrelhq/kestrel/internal/config"
)

// State is the validation state of a proposed action.
type State string

const (
	StateProposed            State = "proposed"
	StateValidated           State = "validated"
	StateRejected            State = "rejected"
	StateConfirmationPending State = "confirmation_pending"
	StateApproved            State = "approved"
	StateDenied              State = "denied"
)

// Decision is the validator's verdict on one action.
type Decision struct {
	State  State
	Reason string
}

// sensitiveKeywords force confirmation when they appear in the action's
// rendered description, regardless of the action's own safety level. The
// match is a case-insensitive substring scan, so "del" also catches
// "delete" and "rm -rf" is covered by "rm"; the multi-word entries stay in
// the list to keep its intent readable.
var sensitiveKeywords = []string{
	"delete",
	"remove",
	"format",
	"rm",
	"del",
	"sudo",
	"admin",
	"password",
	"credit card",
	"system32",
	"registry",
	"rm -rf",
	"del /f",
	"format c:",
	"passphrase",
	"social security",
	"ssn",
	"bank",
	"paypal",
	"private key",
	"secret",
	"credential",
	"wallet",
}

// destructiveFileOps are file operations that cannot be undone.
var destructiveFileOps = map[string]bool{
	"delete": true,
	"remove": true,
	"format": true,
	"wipe":   true,
}

// dangerousCommandFragments mark shell commands that are never allowed to
// run unconfirmed, and in safe mode not at all.
var dangerousCommandFragments = []string{
	"rm -rf",
	"rm -fr",
	"mkfs",
	"dd if=",
	"format c:",
	"del /f",
	"shutdown",
	"reboot",
	":(){",
	"chmod -r 777 /",
}

// safeZones are directory names (relative to the user's home) where
// destructive file operations are permitted after confirmation.
var safeZones = []string{
	"desktop",
	"documents",
	"downloads",
	"pictures",
}

// Validator applies the safety rules to proposed actions.
type Validator struct {
	cfg    config.SafetyConfig
	logger *zap.Logger
}

// NewValidator builds the validator.
func NewValidator(cfg config.SafetyConfig, logger *zap.Logger) *Validator {
	return &Validator{cfg: cfg, logger: logger.Named("safety")}
}

// Validate runs the ordered rule set over the action. Rules are evaluated
// first-match: outright rejections, then forced confirmations, then the
// level gate. Anything that falls through is validated.
func (v *Validator) Validate(action schemas.Action) Decision {
	// Rule 1: destructive file operations outside the safe zones are
	// rejected before confirmation is even considered, in any mode.
	if fo, ok := action.(schemas.FileOperation); ok {
		if destructiveFileOps[strings.ToLower(fo.Operation)] && !inSafeZone(fo.Path) {
			v.logger.Warn("Destructive file operation rejected",
				zap.String("operation", fo.Operation), zap.String("path", fo.Path))
			return Decision{State: StateRejected, Reason: "destructive file operation outside safe zones"}
		}
	}

	// Rule 2: dangerous system commands.
	if sc, ok := action.(schemas.SystemCommand); ok {
		if frag := matchDangerous(sc.Command); frag != "" {
			if v.cfg.SafeMode {
				v.logger.Warn("Dangerous system command rejected",
					zap.String("fragment", frag))
				return Decision{State: StateRejected, Reason: "dangerous system command: " + frag}
			}
			return Decision{State: StateConfirmationPending, Reason: "dangerous system command: " + frag}
		}
	}

	// Rule 3: sensitive keywords force confirmation at any safety level.
	// Whether the pending state then prompts or auto-approves is the
	// gate's call, not the validator's.
	if kw := matchSensitive(action.Describe()); kw != "" {
		return Decision{State: StateConfirmationPending, Reason: "sensitive keyword: " + kw}
	}

	// Rule 4: the highest safety level is always confirmed.
	if action.SafetyLevel() >= schemas.SafetyConfirmed {
		return Decision{State: StateConfirmationPending, Reason: "high-risk action class"}
	}

	// Rule 5: with safe mode off nothing is auto-approved; a human
	// confirms every action instead.
	if !v.cfg.SafeMode {
		return Decision{State: StateConfirmationPending, Reason: "safe mode disabled"}
	}

	return Decision{State: StateValidated}
}

// matchSensitive returns the first sensitive keyword found in the text.
func matchSensitive(text string) string {
	lower := strings.ToLower(text)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			return kw
		}
	}
	return ""
}

// matchDangerous returns the first dangerous fragment found in the command.
func matchDangerous(command string) string {
	lower := strings.ToLower(command)
	for _, frag := range dangerousCommandFragments {
		if strings.Contains(lower, frag) {
			return frag
		}
	}
	return ""
}

// inSafeZone reports whether the path sits under one of the safe zone
// directories. Matching is by path segment name, so both absolute and
// home-relative forms work.
func inSafeZone(path string) bool {
	clean := filepath.ToSlash(strings.ToLower(filepath.Clean(path)))
	for _, seg := range strings.Split(clean, "/") {
		for _, zone := range safeZones {
			if seg == zone {
				return true
			}
		}
	}
	return false
}
