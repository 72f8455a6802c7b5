package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestQueueFIFOOrder проверяет порядок выдачи элементов.
func TestQueueFIFOOrder(t *testing.T) {
	q := New[int](8)

	for i := 1; i <= 5; i++ {
		require.True(t, q.Push(i), "запись в незаполненную очередь не должна вытеснять")
	}

	for i := 1; i <= 5; i++ {
		v, ok := q.TryPop()
		require.True(t, ok, "элемент %d должен быть в очереди", i)
		assert.Equal(t, i, v, "элементы должны выдаваться в порядке записи")
	}

	_, ok := q.TryPop()
	assert.False(t, ok, "пустая очередь не должна выдавать элементы")
}

// TestQueueEviction проверяет вытеснение самого старого элемента
// при переполнении. Проверяет:
// - Новый элемент сохраняется всегда
// - Вытесняется именно самый старый
// - Счетчик Dropped отражает число вытеснений
func TestQueueEviction(t *testing.T) {
	q := New[int](4)

	for i := 1; i <= 10; i++ {
		q.Push(i)
	}

	assert.Equal(t, 4, q.Len(), "очередь не должна превышать емкость")

	// После вытеснений остаются четыре последних элемента
	for want := 7; want <= 10; want++ {
		v, ok := q.TryPop()
		require.True(t, ok)
		assert.Equal(t, want, v)
	}

	stats := q.Stats()
	assert.Equal(t, uint64(10), stats.Pushed)
	assert.Equal(t, uint64(6), stats.Dropped, "шесть старых элементов должны быть вытеснены")
}

// TestQueuePushReportsEviction проверяет возвращаемое значение Push.
func TestQueuePushReportsEviction(t *testing.T) {
	q := New[string](1)

	assert.True(t, q.Push("первый"))
	assert.False(t, q.Push("второй"), "запись с вытеснением должна возвращать false")

	v, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, "второй", v, "сохраняется новый элемент, а не старый")
}

// TestQueueTryPopNonBlocking проверяет, что TryPop возвращается сразу
// на пустой очереди. Это контракт для real-time callback'а.
func TestQueueTryPopNonBlocking(t *testing.T) {
	q := New[[]byte](4)

	start := time.Now()
	_, ok := q.TryPop()
	elapsed := time.Since(start)

	assert.False(t, ok)
	assert.Less(t, elapsed, 10*time.Millisecond, "TryPop не должен блокироваться")
}

// TestQueuePopWait проверяет блокирующее чтение:
// - PopWait ждет появления элемента
// - PopWait возвращает false после Close
func TestQueuePopWait(t *testing.T) {
	t.Run("дожидается элемента", func(t *testing.T) {
		q := New[int](4)

		done := make(chan int, 1)
		go func() {
			v, ok := q.PopWait()
			if ok {
				done <- v
			}
			close(done)
		}()

		time.Sleep(20 * time.Millisecond)
		q.Push(42)

		select {
		case v := <-done:
			assert.Equal(t, 42, v)
		case <-time.After(time.Second):
			t.Fatal("PopWait не дождался элемента")
		}
	})

	t.Run("возвращается после закрытия", func(t *testing.T) {
		q := New[int](4)

		done := make(chan bool, 1)
		go func() {
			_, ok := q.PopWait()
			done <- ok
		}()

		time.Sleep(20 * time.Millisecond)
		q.Close()

		select {
		case ok := <-done:
			assert.False(t, ok, "после Close блокирующее чтение возвращает false")
		case <-time.After(time.Second):
			t.Fatal("PopWait не завершился после Close")
		}
	})
}

// TestQueueClose проверяет семантику закрытия:
// - Накопленные элементы отбрасываются
// - Push после Close возвращает false и ничего не записывает
// - Повторный Close безопасен
func TestQueueClose(t *testing.T) {
	q := New[int](8)

	q.Push(1)
	q.Push(2)
	q.Push(3)

	q.Close()
	q.Close()

	assert.True(t, q.Closed())
	assert.Equal(t, 0, q.Len(), "закрытие отбрасывает накопленные элементы")

	assert.False(t, q.Push(4))
	_, ok := q.TryPop()
	assert.False(t, ok)

	stats := q.Stats()
	assert.Equal(t, uint64(3), stats.Pushed)
	assert.Equal(t, uint64(3), stats.Dropped, "отброшенные при закрытии элементы учитываются в Dropped")
}

// TestQueueDefaultCapacity проверяет емкость по умолчанию.
func TestQueueDefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New[int](0).Cap())
	assert.Equal(t, DefaultCapacity, New[int](-5).Cap())
	assert.Equal(t, 16, New[int](16).Cap())
}

// TestQueueConcurrentProducerConsumer гоняет очередь между двумя
// горутинами и проверяет инвариант счетчиков: каждый принятый элемент
// либо выдан, либо отброшен.
func TestQueueConcurrentProducerConsumer(t *testing.T) {
	const total = 500

	q := New[int](16)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			if _, ok := q.PopWait(); !ok {
				return
			}
		}
	}()

	for i := 0; i < total; i++ {
		q.Push(i)
	}
	q.Close()
	wg.Wait()

	stats := q.Stats()
	assert.Equal(t, uint64(total), stats.Pushed)
	assert.Equal(t, stats.Pushed, stats.Popped+stats.Dropped,
		"каждый элемент должен быть либо выдан, либо отброшен")
}
