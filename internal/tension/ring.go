package tension

import "iter"

// Ring кольцевой буфер фиксированной емкости; при переполнении перезаписывает самый старый элемент
type Ring[T any] struct {
	buf   []T
	head  int // индекс следующей записи
	count int
}

// NewRing создает буфер емкостью capacity (минимум 1)
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push добавляет элемент
func (r *Ring[T]) Push(v T) {
	r.buf[r.head] = v
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

// Len количество валидных элементов
func (r *Ring[T]) Len() int { return r.count }

// Cap емкость буфера
func (r *Ring[T]) Cap() int { return len(r.buf) }

// at возвращает i-й элемент от самого старого
func (r *Ring[T]) at(i int) T {
	start := (r.head - r.count + len(r.buf)) % len(r.buf)
	return r.buf[(start+i)%len(r.buf)]
}

// Last итерирует по последним k элементам от старых к новым
func (r *Ring[T]) Last(k int) iter.Seq[T] {
	return func(yield func(T) bool) {
		n := min(max(k, 0), r.count)
		for i := r.count - n; i < r.count; i++ {
			if !yield(r.at(i)) {
				return
			}
		}
	}
}

// Backward итерирует от самого нового к самому старому
func (r *Ring[T]) Backward() iter.Seq[T] {
	return func(yield func(T) bool) {
		for i := r.count - 1; i >= 0; i-- {
			if !yield(r.at(i)) {
				return
			}
		}
	}
}

// Slice копирует последние k элементов
func (r *Ring[T]) Slice(k int) []T {
	if k > r.count {
		k = r.count
	}
	if k < 0 {
		k = 0
	}
	out := make([]T, 0, k)
	for v := range r.Last(k) {
		out = append(out, v)
	}
	return out
}
