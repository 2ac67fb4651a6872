package score

// Mods is the client mod bitmask.
type Mods uint32

const (
	ModNoFail    Mods = 1 << 0
	ModEasy      Mods = 1 << 1
	ModHidden    Mods = 1 << 3
	ModHardRock  Mods = 1 << 4
	ModSuddenDth Mods = 1 << 5
	ModDoubleTm  Mods = 1 << 6
	ModRelax     Mods = 1 << 7
	ModHalfTime  Mods = 1 << 8
	ModNightcore Mods = 1 << 9
	ModFlashlite Mods = 1 << 10
	ModAuto      Mods = 1 << 11
	ModSpunOut   Mods = 1 << 12
	ModAutopilot Mods = 1 << 13
	ModPerfect   Mods = 1 << 14
	ModScoreV2   Mods = 1 << 29
)

// alternateScoring marks the exclusive alternate-scoring mods. A score may
// carry at most one of them, and only on a mode that supports it.
var alternateScoring = [...]Mods{ModRelax, ModAutopilot}

func (m Mods) Has(mod Mods) bool {
	return m&mod != 0
}

// NoFailEquivalent reports whether the mask carries a mod under which the
// client cannot fail out of a play. Passes under these mods are exempt from
// the replay requirement.
func (m Mods) NoFailEquivalent() bool {
	return m.Has(ModNoFail) || m.AlternateScoring()
}

// AlternateScoring reports whether the mask carries any alternate-scoring mod.
func (m Mods) AlternateScoring() bool {
	for _, mod := range alternateScoring {
		if m.Has(mod) {
			return true
		}
	}
	return false
}

// Validate applies the server's mod legality rules:
// unsubmittable mods are rejected outright, at most one exclusive
// alternate-scoring mod may be set, and the mode must support it.
func (m Mods) Validate(mode Mode) error {
	if m.Has(ModAuto) {
		return ErrModsUnsubmittable
	}

	exclusive := 0
	for _, mod := range alternateScoring {
		if m.Has(mod) {
			exclusive++
		}
	}
	if exclusive > 1 {
		return ErrModsExclusive
	}

	if m.Has(ModAutopilot) && mode != ModeStandard {
		return ErrModsUnsupportedMode
	}
	if m.Has(ModRelax) && mode == ModeMania {
		return ErrModsUnsupportedMode
	}

	return nil
}
