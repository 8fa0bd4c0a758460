package ledger

// journal records undo steps for the mutations of one call. Rolling back
// replays them newest first, restoring every touched field and map entry.
type journal struct {
	undo []func()
}

func (j *journal) record(fn func()) {
	j.undo = append(j.undo, fn)
}

func (j *journal) rollback() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
}

// set assigns v to *p and records the previous value.
func set[T any](j *journal, p *T, v T) {
	old := *p
	j.record(func() { *p = old })
	*p = v
}

// setEntry writes m[k] = v, deleting the entry when v is the zero value so
// maps stay sparse. The previous presence and value are recorded.
func setEntry[K comparable, V comparable](j *journal, m map[K]V, k K, v V) {
	old, had := m[k]
	j.record(func() {
		if had {
			m[k] = old
		} else {
			delete(m, k)
		}
	})
	var zero V
	if v == zero {
		delete(m, k)
	} else {
		m[k] = v
	}
}
