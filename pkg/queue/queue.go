// Package queue реализует ограниченную очередь передачи данных между
// сетевыми горутинами и real-time callback'ом аудио хоста.
//
// Очередь стыкует два домена времени: сетевая сторона может ждать,
// сторона callback'а не может блокироваться никогда. Поэтому чтение
// существует в двух видах (TryPop и PopWait), а запись не блокируется
// и при переполнении вытесняет самый старый элемент - свежие данные
// всегда важнее залежавшихся.
package queue

import (
	"sync"
	"sync/atomic"
)

// DefaultCapacity - емкость очереди по умолчанию.
const DefaultCapacity = 64

// Statistics содержит счетчики работы очереди с момента создания.
type Statistics struct {
	Pushed  uint64 // Принято элементов
	Popped  uint64 // Выдано элементов
	Dropped uint64 // Вытеснено при переполнении и отброшено при закрытии
}

// Queue - ограниченная FIFO очередь для одного писателя и одного
// читателя. Очередь одноразовая: после Close запись и блокирующее
// чтение возвращают false.
type Queue[T any] struct {
	ch     chan T
	stopCh chan struct{}

	// Счетчики обновляются атомарно, снимок доступен через Stats
	pushed  atomic.Uint64
	popped  atomic.Uint64
	dropped atomic.Uint64

	closeOnce sync.Once
}

// New создает очередь емкостью capacity элементов.
// При capacity <= 0 используется DefaultCapacity.
func New[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue[T]{
		ch:     make(chan T, capacity),
		stopCh: make(chan struct{}),
	}
}

// Push кладет элемент в очередь, не блокируясь. При переполнении
// самый старый элемент вытесняется, новый сохраняется всегда.
// Возвращает false, если произошло вытеснение или очередь закрыта.
func (q *Queue[T]) Push(v T) bool {
	select {
	case <-q.stopCh:
		return false
	default:
	}

	select {
	case q.ch <- v:
		q.pushed.Add(1)
		return true
	default:
	}

	// Очередь заполнена: освобождаем место за счет самого старого.
	select {
	case <-q.ch:
		q.dropped.Add(1)
	default:
	}

	select {
	case q.ch <- v:
		q.pushed.Add(1)
	default:
		// Возможно только при конкурирующих писателях
		q.dropped.Add(1)
	}
	return false
}

// TryPop забирает самый старый элемент, если он есть. Не блокируется,
// поэтому безопасен для вызова из real-time callback'а.
func (q *Queue[T]) TryPop() (T, bool) {
	select {
	case v := <-q.ch:
		q.popped.Add(1)
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// PopWait блокируется до появления элемента или закрытия очереди.
// Возвращает false, когда очередь закрыта.
func (q *Queue[T]) PopWait() (T, bool) {
	select {
	case v := <-q.ch:
		q.popped.Add(1)
		return v, true
	case <-q.stopCh:
		var zero T
		return zero, false
	}
}

// Close закрывает очередь и отбрасывает накопленные элементы.
// Повторные вызовы безопасны.
func (q *Queue[T]) Close() {
	q.closeOnce.Do(func() {
		close(q.stopCh)
		for {
			select {
			case <-q.ch:
				q.dropped.Add(1)
			default:
				return
			}
		}
	})
}

// Closed сообщает, была ли очередь закрыта.
func (q *Queue[T]) Closed() bool {
	select {
	case <-q.stopCh:
		return true
	default:
		return false
	}
}

// Len возвращает текущее число элементов в очереди.
func (q *Queue[T]) Len() int { return len(q.ch) }

// Cap возвращает емкость очереди.
func (q *Queue[T]) Cap() int { return cap(q.ch) }

// Stats возвращает снимок счетчиков очереди.
func (q *Queue[T]) Stats() Statistics {
	return Statistics{
		Pushed:  q.pushed.Load(),
		Popped:  q.popped.Load(),
		Dropped: q.dropped.Load(),
	}
}
