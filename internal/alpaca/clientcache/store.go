package clientcache

// Store is the backing map of a Cache. The Cache serializes all access, so
// implementations need not be safe for concurrent use.
type Store[K comparable, V any] interface {
	Get(k K) (V, bool)
	Set(k K, v V)
	Delete(k K)
	Clear()
	Len() int
}

// MapStore is the default in-process Store.
type MapStore[K comparable, V any] struct {
	m map[K]V
}

func NewMapStore[K comparable, V any]() *MapStore[K, V] {
	return &MapStore[K, V]{m: make(map[K]V)}
}

func (s *MapStore[K, V]) Get(k K) (V, bool) {
	v, ok := s.m[k]
	return v, ok
}

func (s *MapStore[K, V]) Set(k K, v V) { s.m[k] = v }
func (s *MapStore[K, V]) Delete(k K)   { delete(s.m, k) }
func (s *MapStore[K, V]) Clear()       { clear(s.m) }
func (s *MapStore[K, V]) Len() int     { return len(s.m) }
