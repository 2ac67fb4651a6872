package medal

// Medal is an unlockable achievement granted on score acceptance.
type Medal struct {
	ID        int64
	Name      string
	Condition Condition
}
