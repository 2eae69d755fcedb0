package stream

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"
)

func TestSerialOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	exec := Serial(ctx)

	var (
		mu  sync.Mutex
		got []int
		wg  sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		exec(func() {
			defer wg.Done()
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	wg.Wait()

	want := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("実行順が一致しません: got %v, want %v", got, want)
	}
}

// TestSerialDoesNotBlockSubmitter は実行中の処理が止まっていても投入が返ることをテストする
func TestSerialDoesNotBlockSubmitter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	exec := Serial(ctx)

	release := make(chan struct{})
	exec(func() { <-release })

	// 制御ループのイベントバッファより多く積む
	const n = eventBuffer * 4
	var ran sync.WaitGroup
	ran.Add(n)
	submitted := make(chan struct{})
	go func() {
		for i := 0; i < n; i++ {
			exec(ran.Done)
		}
		close(submitted)
	}()

	select {
	case <-submitted:
	case <-time.After(2 * time.Second):
		t.Fatal("投入がワーカーの完了を待っています")
	}

	close(release)
	done := make(chan struct{})
	go func() {
		ran.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("積まれた処理が実行されていません")
	}
}

func TestSerialStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	exec := Serial(ctx)
	cancel()

	returned := make(chan struct{})
	go func() {
		exec(func() {})
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("停止後の投入が返りません")
	}
}
