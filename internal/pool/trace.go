package pool

type (
	Stats struct {
		Limit   int
		MinSize int
		Idle    int
		InUse   int
	}
	// Trace hooks are optional. OnChange is called with the pool lock held
	// and must not call back into the pool.
	Trace struct {
		OnCreate func(n int) func(created int, err error)
		OnPing   func(err error)
		OnChange func(Stats)
	}
)
