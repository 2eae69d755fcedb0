package stream

import "context"

// Executor は待ち時間のある処理を制御ループの外で実行する
type Executor func(task func())

// Inline は処理をその場で実行する
func Inline(task func()) { task() }

// Serial は投入順に一つずつ処理するワーカーを起動する
// 投入は実行中の処理を待たずに上限なしのキューへ積まれる
// ctx が終わるとワーカーは停止し、以降の投入は捨てられる
func Serial(ctx context.Context) Executor {
	in := make(chan func())
	work := make(chan func())

	// キューの管理
	go func() {
		var queue []func()
		for {
			var out chan func()
			var next func()
			if len(queue) > 0 {
				out, next = work, queue[0]
			}
			select {
			case <-ctx.Done():
				return
			case task := <-in:
				queue = append(queue, task)
			case out <- next:
				queue[0] = nil
				queue = queue[1:]
			}
		}
	}()

	// ワーカー
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case task := <-work:
				task()
			}
		}
	}()

	return func(task func()) {
		select {
		case in <- task:
		case <-ctx.Done():
		}
	}
}
