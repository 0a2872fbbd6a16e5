package pool

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// BufferPool пул байтовых буферов фиксированного размера
type BufferPool struct {
	size int
	pool sync.Pool
}

// NewBufferPool создает пул буферов по size байт
func NewBufferPool(size int) *BufferPool {
	bp := &BufferPool{size: size}
	bp.pool.New = func() interface{} {
		buf := make([]byte, size)
		return &buf
	}
	return bp
}

// Get получает буфер длиной size из пула
func (bp *BufferPool) Get() *[]byte {
	buf := bp.pool.Get().(*[]byte)
	*buf = (*buf)[:bp.size]
	return buf
}

// Put возвращает буфер в пул; чужие размеры отбрасываются
func (bp *BufferPool) Put(buf *[]byte) {
	if buf == nil || cap(*buf) < bp.size {
		return
	}
	bp.pool.Put(buf)
}

// Workers число воркеров по умолчанию
func Workers(n int) int {
	if n > 0 {
		return n
	}
	return runtime.GOMAXPROCS(0)
}

// Run выполняет fn для каждого индекса 0..n-1, не более чем в workers горутинах.
// Первая ошибка отменяет контекст оставшихся задач и возвращается.
func Run(ctx context.Context, workers, n int, fn func(ctx context.Context, i int) error) error {
	if n <= 0 {
		return ctx.Err()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(Workers(workers), n))
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
