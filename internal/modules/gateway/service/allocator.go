package service

// allocator раздаёт наименьшее свободное значение из [start, end].
// Сам по себе не потокобезопасен: все вызовы идут под мьютексом оркестратора.
type allocator struct {
	start, end int
	used       map[int]bool
}

func newAllocator(start, end int) *allocator {
	return &allocator{
		start: start,
		end:   end,
		used:  make(map[int]bool),
	}
}

func (a *allocator) acquire() (int, bool) {
	for v := a.start; v <= a.end; v++ {
		if !a.used[v] {
			a.used[v] = true
			return v, true
		}
	}
	return 0, false
}

func (a *allocator) release(v int) {
	delete(a.used, v)
}

func (a *allocator) inUse(v int) bool {
	return a.used[v]
}
