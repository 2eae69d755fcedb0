package server

import "sync"

// MockController は受け取った操作を記録する Controller
type MockController struct {
	mu    sync.Mutex
	calls []string
}

// NewMockController は新しい MockController を作成する
func NewMockController() *MockController {
	return &MockController{}
}

func (m *MockController) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

// Calls は記録した操作を返す
func (m *MockController) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *MockController) Watch(id string)                    { m.record("watch " + id) }
func (m *MockController) Stop()                              { m.record("stop") }
func (m *MockController) ListStreams()                       { m.record("list") }
func (m *MockController) ChangeParameter(name, value string) { m.record("change " + name + "=" + value) }
func (m *MockController) Toggle(name string)                 { m.record("toggle " + name) }
func (m *MockController) ZoomIn()                            { m.record("zoom in") }
func (m *MockController) ZoomOut()                           { m.record("zoom out") }
func (m *MockController) ListMedia()                         { m.record("media") }
func (m *MockController) RemoveMedia(file string)            { m.record("remove " + file) }
func (m *MockController) ClearMedia()                        { m.record("remove") }
func (m *MockController) RestartCamera()                     { m.record("restart") }
