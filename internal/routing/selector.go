package routing

import "sync"

// Provisional notes shown until a coverage score replaces them.
const (
	NoteDirect         = "Most direct route"
	NoteSafeLit        = "Paved route along main streets"
	NoteCoolShaded     = "Quieter side-street route"
	NoteCoolShadedMain = "Paved route"
	NoteFallbackPrefix = "Fallback: "
)

// Select picks one candidate for mode.
//
//   - DIRECT prefers the direct candidate, then paved.
//   - SAFE_LIT prefers paved and only uses direct when paved is absent.
//   - COOL_SHADED prefers the second paved alternative, then the first,
//     then paved.
//
// When the preferred and named fallback are both missing, any remaining
// candidate is used with a fallback note. An empty set yields ErrNoRoute.
func Select(set CandidateSet, mode Mode) (Selection, error) {
	if set.Empty() {
		return Selection{}, ErrNoRoute
	}

	var alt0, alt1 *Candidate
	if len(set.PavedAlt) > 0 {
		alt0 = &set.PavedAlt[0]
	}
	if len(set.PavedAlt) > 1 {
		alt1 = &set.PavedAlt[1]
	}

	switch mode {
	case ModeDirect:
		if set.Direct.Valid() {
			return chosen(mode, set.Direct, NoteDirect, false), nil
		}
		if set.Paved.Valid() {
			return chosen(mode, set.Paved, NoteDirect, true), nil
		}
		return lastResort(mode, NoteDirect, alt0)

	case ModeSafeLit:
		if set.Paved.Valid() {
			return chosen(mode, set.Paved, NoteSafeLit, false), nil
		}
		if set.Direct.Valid() {
			return chosen(mode, set.Direct, NoteSafeLit, true), nil
		}
		return lastResort(mode, NoteSafeLit, alt0)

	case ModeCoolShaded:
		if alt1.Valid() {
			return chosen(mode, alt1, NoteCoolShaded, false), nil
		}
		if alt0.Valid() {
			return chosen(mode, alt0, NoteCoolShadedMain, false), nil
		}
		if set.Paved.Valid() {
			return chosen(mode, set.Paved, NoteCoolShadedMain, true), nil
		}
		return lastResort(mode, NoteCoolShadedMain, set.Direct)

	default:
		return Selection{}, ErrUnknownMode
	}
}

func lastResort(mode Mode, note string, candidates ...*Candidate) (Selection, error) {
	for _, c := range candidates {
		if c.Valid() {
			return chosen(mode, c, note, true), nil
		}
	}
	return Selection{}, ErrNoRoute
}

func chosen(mode Mode, c *Candidate, note string, fallback bool) Selection {
	if fallback {
		note = NoteFallbackPrefix + note
	}
	return Selection{
		Mode:      mode,
		Candidate: *c,
		Note:      note,
		Fallback:  fallback,
	}
}

// ModeState holds the single active safety mode. Setting a mode clears
// the previous one.
type ModeState struct {
	mu     sync.RWMutex
	active Mode
}

// NewModeState returns a state with mode active.
func NewModeState(mode Mode) *ModeState {
	return &ModeState{active: mode}
}

// Set activates mode, replacing whichever mode was active.
func (s *ModeState) Set(mode Mode) error {
	if _, err := ParseMode(string(mode)); err != nil {
		return err
	}
	s.mu.Lock()
	s.active = mode
	s.mu.Unlock()
	return nil
}

// Active returns the active mode.
func (s *ModeState) Active() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Is reports whether mode is the active one.
func (s *ModeState) Is(mode Mode) bool {
	return s.Active() == mode
}
