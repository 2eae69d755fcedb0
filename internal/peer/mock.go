package peer

import (
	"context"
	"sync"
)

// MockFactory はテスト用の Factory
type MockFactory struct {
	mu          sync.Mutex
	SupportErr  error
	AnswerErr   error
	AnswerSDP   string
	BitrateBPS  uint64
	connections []*MockConnection
}

// NewMockFactory は新しい MockFactory を作成する
// アンサーは answerSDP を customize に通したものになる
func NewMockFactory(answerSDP string) *MockFactory {
	return &MockFactory{AnswerSDP: answerSDP}
}

// Supported は SupportErr を返す
func (f *MockFactory) Supported() error {
	return f.SupportErr
}

// NewConnection はモックの接続を作成する
func (f *MockFactory) NewConnection(cb Callbacks) (Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &MockConnection{factory: f, Callbacks: cb}
	f.connections = append(f.connections, c)
	return c, nil
}

// Connections は作成された接続を返す
func (f *MockFactory) Connections() []*MockConnection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*MockConnection(nil), f.connections...)
}

// MockConnection はテスト用の Connection
type MockConnection struct {
	factory   *MockFactory
	Callbacks Callbacks

	mu     sync.Mutex
	offers []string
	closes int
}

// Answer はオファーを記録してアンサーを返す
func (c *MockConnection) Answer(_ context.Context, offer string, customize func(string) string) (string, error) {
	c.mu.Lock()
	c.offers = append(c.offers, offer)
	c.mu.Unlock()

	if c.factory.AnswerErr != nil {
		return "", c.factory.AnswerErr
	}
	answer := c.factory.AnswerSDP
	if customize != nil {
		answer = customize(answer)
	}
	return answer, nil
}

// Bitrate は設定されたビットレートを返す
func (c *MockConnection) Bitrate() (uint64, bool) {
	return c.factory.BitrateBPS, c.factory.BitrateBPS > 0
}

// Close は閉じた回数を記録する
func (c *MockConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

// Offers は受け取ったオファーを返す
func (c *MockConnection) Offers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.offers...)
}

// Closes は Close が呼ばれた回数を返す
func (c *MockConnection) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}
