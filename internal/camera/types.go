package camera

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrUnknownParameter はカメラが受け付けないパラメータ名
	ErrUnknownParameter = errors.New("不明なパラメータ")
	// ErrUnknownModel はセンサーモード表に存在しないカメラモデル
	ErrUnknownModel = errors.New("不明なカメラモデル")
	// ErrUnknownMode はモデルに存在しないセンサーモード
	ErrUnknownMode = errors.New("不明なセンサーモード")
)

// Parameters はカメラが最後に報告したパラメータ名と値の対応
// 値は数値も含めて文字列で保持する（例: "1280", "0x00000000"）
type Parameters map[string]string

// Get は値を取得する
func (p Parameters) Get(name string) (string, bool) {
	v, ok := p[name]
	return v, ok
}

// Int は値を整数として取得する
func (p Parameters) Int(name string) (int, bool) {
	v, ok := p[name]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Model はカメラモデル名を返す（例: imx219）
func (p Parameters) Model() string {
	return p["model"]
}

// Resolution は "幅x高さ" 形式の現在の解像度を返す
func (p Parameters) Resolution() string {
	w, okW := p["width"]
	h, okH := p["height"]
	if !okW || !okH {
		return ""
	}
	return w + "x" + h
}

// Clone はコピーを返す
func (p Parameters) Clone() Parameters {
	c := make(Parameters, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}

// Diff は next で値が変わったキーをソートして返す
func (p Parameters) Diff(next Parameters) []string {
	var changed []string
	for k, v := range next {
		if old, ok := p[k]; !ok || old != v {
			changed = append(changed, k)
		}
	}
	for k := range p {
		if _, ok := next[k]; !ok {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}

// ParseParameters はカメラのJSON応答を Parameters に変換する
func ParseParameters(body []byte) (Parameters, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("パラメータの解析に失敗: %w", err)
	}

	params := make(Parameters, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case json.Number:
			params[k] = val.String()
		case string:
			params[k] = val
		case bool:
			if val {
				params[k] = "1"
			} else {
				params[k] = "0"
			}
		case nil:
			params[k] = ""
		default:
			params[k] = fmt.Sprint(val)
		}
	}
	return params, nil
}

// MediaFile は録画フォルダ内のファイル
type MediaFile struct {
	Name string `json:"name"`
	Size string `json:"size,omitempty"`
}

// MediaListing は録画フォルダの状態
type MediaListing struct {
	FreeGiB float64     `json:"free_gib"`
	Files   []MediaFile `json:"files"`
}

// Has は指定したファイルが一覧に含まれるかを返す
func (m *MediaListing) Has(name string) bool {
	for _, f := range m.Files {
		if f.Name == name {
			return true
		}
	}
	return false
}

// ParseMediaListing はフォルダ操作の応答を解析する
// 先頭に空き容量（数値または [数値]）があればそれを読み、残りを [名前, サイズ] または名前として扱う
// 空き容量のない名前だけの一覧や空の配列も受け付ける
func ParseMediaListing(body []byte) (*MediaListing, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw []any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("メディア一覧の解析に失敗: %w", err)
	}

	listing := &MediaListing{Files: []MediaFile{}}
	entries := raw
	if len(raw) > 0 {
		free, ok, err := parseFreeSpace(raw[0])
		if err != nil {
			return nil, err
		}
		if ok {
			listing.FreeGiB = free
			entries = raw[1:]
		}
	}

	for _, entry := range entries {
		switch v := entry.(type) {
		case string:
			listing.Files = append(listing.Files, MediaFile{Name: v})
		case []any:
			if len(v) == 0 {
				continue
			}
			file := MediaFile{Name: fmt.Sprint(v[0])}
			if len(v) > 1 {
				file.Size = fmt.Sprint(v[1])
			}
			listing.Files = append(listing.Files, file)
		}
	}
	return listing, nil
}

// parseFreeSpace は一覧の先頭要素が空き容量ならその値を返す
// ファイル名やファイルの組なら false を返す
func parseFreeSpace(v any) (float64, bool, error) {
	if arr, ok := v.([]any); ok {
		if len(arr) == 0 {
			return 0, false, nil
		}
		v = arr[0]
	}
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false, fmt.Errorf("空き容量の解析に失敗: %w", err)
		}
		return f, true, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false, nil
		}
		return f, true, nil
	default:
		return 0, false, fmt.Errorf("空き容量の形式が不正です: %v", v)
	}
}

// Control はカメラ制御エンドポイントへの操作を表す
type Control interface {
	// Display は現在のパラメータを取得する
	Display(ctx context.Context) (Parameters, error)

	// Change はパラメータを変更し、変更後のパラメータを返す
	Change(ctx context.Context, name, value string) (Parameters, error)

	// Restart はカメラのパイプラインを再起動する
	Restart(ctx context.Context) (Parameters, error)

	// SyncTime はカメラの時計を合わせる
	SyncTime(ctx context.Context, t time.Time) (Parameters, error)

	// Media は録画フォルダの一覧を取得する
	Media(ctx context.Context) (*MediaListing, error)

	// Remove はファイルを削除する。name が空なら全て削除する
	Remove(ctx context.Context, name string) (*MediaListing, error)
}
