package score

import "errors"

var (
	ErrModsUnsubmittable   = errors.New("mod combination is not submittable")
	ErrModsExclusive       = errors.New("more than one exclusive alternate-scoring mod set")
	ErrModsUnsupportedMode = errors.New("alternate-scoring mod not supported by game mode")
)
