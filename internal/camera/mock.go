package camera

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"
)

// MockClient はテスト用の Control 実装
// 要求をパラメータ表に反映して返し、送信された要求を記録する
type MockClient struct {
	mu      sync.Mutex
	params  Parameters
	media   *MediaListing
	calls   []string
	failErr error
}

// NewMockClient は初期パラメータを持つ MockClient を作成する
func NewMockClient(initial Parameters) *MockClient {
	return &MockClient{
		params: initial.Clone(),
		media:  &MediaListing{Files: []MediaFile{}},
	}
}

// SetFailure は以降の要求を err で失敗させる。nil で解除する
func (m *MockClient) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

// SetMedia は録画フォルダの内容を設定する
func (m *MockClient) SetMedia(listing *MediaListing) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.media = listing
}

// Calls は送信された要求のクエリを返す
func (m *MockClient) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// Display は現在のパラメータを返す
func (m *MockClient) Display(_ context.Context) (Parameters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "")
	if m.failErr != nil {
		return nil, m.failErr
	}
	return m.params.Clone(), nil
}

// Change はパラメータ表を更新して返す
func (m *MockClient) Change(_ context.Context, name, value string) (Parameters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	query, err := Query(name, value)
	if err != nil {
		return nil, err
	}
	m.calls = append(m.calls, query)
	if m.failErr != nil {
		return nil, m.failErr
	}

	switch {
	case name == "resolution":
		w, h, _ := SplitResolution(value)
		m.params["width"] = strconv.Itoa(w)
		m.params["height"] = strconv.Itoa(h)
	case name == "time" || IsAction(name):
	default:
		m.params[name] = value
	}
	return m.params.Clone(), nil
}

// Restart は再起動要求を記録する
func (m *MockClient) Restart(ctx context.Context) (Parameters, error) {
	return m.Change(ctx, "restart", "")
}

// SyncTime は時刻合わせ要求を記録する
func (m *MockClient) SyncTime(ctx context.Context, t time.Time) (Parameters, error) {
	return m.Change(ctx, "time", strconv.FormatInt(t.Unix(), 10))
}

// Media は録画フォルダの内容を返す
func (m *MockClient) Media(_ context.Context) (*MediaListing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "media")
	if m.failErr != nil {
		return nil, m.failErr
	}
	return m.copyMedia(), nil
}

// Remove はファイルを一覧から取り除く
func (m *MockClient) Remove(_ context.Context, name string) (*MediaListing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	query, _ := Query("remove", name)
	m.calls = append(m.calls, query)
	if m.failErr != nil {
		return nil, m.failErr
	}
	if name != "" && !m.media.Has(name) {
		return nil, errors.New("ファイルが見つかりません")
	}

	kept := []MediaFile{}
	for _, f := range m.media.Files {
		if name != "" && f.Name != name {
			kept = append(kept, f)
		}
	}
	m.media.Files = kept
	return m.copyMedia(), nil
}

func (m *MockClient) copyMedia() *MediaListing {
	listing := &MediaListing{FreeGiB: m.media.FreeGiB}
	listing.Files = append([]MediaFile{}, m.media.Files...)
	return listing
}
