package camera

import (
	"errors"
	"reflect"
	"testing"
)

func TestQuery(t *testing.T) {
	testCases := []struct {
		name      string
		param     string
		value     string
		want      string
		expectErr bool
	}{
		{"解像度は幅と高さに分解", "resolution", "1280x720", "width=1280&height=720", false},
		{"通常の値", "framerate", "30", "framerate=30", false},
		{"エスケープ", "image_effect", "water colour", "image_effect=water+colour", false},
		{"値なしの操作", "restart", "", "restart", false},
		{"フォルダ一覧", "media", "", "media", false},
		{"ファイル削除", "remove", "video 1.mkv", "remove=video+1.mkv", false},
		{"全削除", "remove", "", "remove", false},
		{"不明なパラメータ", "warp", "1", "", true},
		{"空の値", "bitrate", "", "", true},
		{"不正な解像度", "resolution", "1280", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Query(tc.param, tc.value)
			if tc.expectErr {
				if err == nil {
					t.Errorf("エラーが期待されましたが、%q が返されました", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("予期しないエラー: %v", err)
			}
			if got != tc.want {
				t.Errorf("クエリが一致しません: got %q, want %q", got, tc.want)
			}
		})
	}

	if _, err := Query("warp", "1"); !errors.Is(err, ErrUnknownParameter) {
		t.Errorf("ErrUnknownParameter が期待されました: %v", err)
	}
}

func TestToggleNext(t *testing.T) {
	testCases := []struct {
		name    string
		param   string
		current string
		want    string
	}{
		{"hflip オン", "hflip", "0", "1"},
		{"hflip オフ", "hflip", "1", "0"},
		{"record オン", "record", "0", "1"},
		{"stats オフから", "stats", StatsOff, StatsOn},
		{"stats 既定値から", "stats", StatsDefault, StatsOn},
		{"stats オンから", "stats", StatsOn, StatsOff},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ToggleNext(tc.param, tc.current)
			if err != nil {
				t.Fatalf("予期しないエラー: %v", err)
			}
			if got != tc.want {
				t.Errorf("次の値が一致しません: got %q, want %q", got, tc.want)
			}
		})
	}

	if _, err := ToggleNext("bitrate", "1"); err == nil {
		t.Error("切り替え式でないパラメータでエラーが期待されました")
	}
}

func TestZoomMode(t *testing.T) {
	testCases := []struct {
		name   string
		model  string
		mode   string
		delta  int
		want   string
		wantOK bool
	}{
		{"auto から拡大", "imx219", "0", 1, "5", true},
		{"モード5から拡大", "imx219", "5", 1, "6", true},
		{"モード1から拡大", "imx219", "1", 1, "7", true},
		{"最大からは拡大しない", "imx219", "7", 1, "", false},
		{"モード6から縮小", "imx219", "6", -1, "5", true},
		{"フル画角からは縮小しない", "imx477", "2", -1, "", false},
		{"フル画角から拡大", "ov5647", "4", 1, "5", true},
		{"ov9281 はズーム不可", "ov9281", "0", 1, "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := Parameters{"model": tc.model, "sensor_mode": tc.mode}
			got, ok := ZoomMode(p, tc.delta)
			if ok != tc.wantOK || got != tc.want {
				t.Errorf("got (%q, %v), want (%q, %v)", got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestSlowLinkBitrate(t *testing.T) {
	testCases := []struct {
		name    string
		bitrate string
		lost    int
		want    int
		wantOK  bool
	}{
		{"損失が多い", "4000000", 501, 3000000, true},
		{"損失が閾値ちょうど", "4000000", 500, 0, false},
		{"ビットレートが下限", "1000000", 900, 0, false},
		{"ビットレートが下限を少し超える", "1000001", 900, 1, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := SlowLinkBitrate(Parameters{"bitrate": tc.bitrate}, tc.lost)
			if ok != tc.wantOK || got != tc.want {
				t.Errorf("got (%d, %v), want (%d, %v)", got, ok, tc.want, tc.wantOK)
			}
		})
	}

	if _, ok := SlowLinkBitrate(Parameters{}, 1000); ok {
		t.Error("ビットレート不明なら変更しないはずです")
	}
}

func TestParseParameters(t *testing.T) {
	params, err := ParseParameters([]byte(`{"model":"imx219","width":1280,"height":720,"bitrate":4000000,"stats":"0x0000065d","persistent":true}`))
	if err != nil {
		t.Fatalf("解析に失敗: %v", err)
	}
	want := Parameters{
		"model": "imx219", "width": "1280", "height": "720", "bitrate": "4000000",
		"stats": "0x0000065d", "persistent": "1",
	}
	if !reflect.DeepEqual(params, want) {
		t.Errorf("got %v, want %v", params, want)
	}
	if params.Resolution() != "1280x720" {
		t.Errorf("解像度が一致しません: %q", params.Resolution())
	}

	if _, err := ParseParameters([]byte(`[1,2]`)); err == nil {
		t.Error("オブジェクト以外でエラーが期待されました")
	}
}

func TestParametersDiff(t *testing.T) {
	before := Parameters{"width": "800", "height": "608", "hflip": "0", "stale": "x"}
	after := Parameters{"width": "1280", "height": "608", "hflip": "0", "vflip": "1"}

	got := before.Diff(after)
	want := []string{"stale", "vflip", "width"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if len(after.Diff(after.Clone())) != 0 {
		t.Error("同じ内容なら差分はないはずです")
	}
}

func TestParseMediaListing(t *testing.T) {
	testCases := []struct {
		name      string
		body      string
		free      float64
		files     []MediaFile
		expectErr bool
	}{
		{
			name:  "入れ子の空き容量",
			body:  `[[3.5], ["a.mkv", "10 MiB"], ["b.mkv", "2 MiB"]]`,
			free:  3.5,
			files: []MediaFile{{Name: "a.mkv", Size: "10 MiB"}, {Name: "b.mkv", Size: "2 MiB"}},
		},
		{
			name:  "名前のみ",
			body:  `[7, "a.mkv"]`,
			free:  7,
			files: []MediaFile{{Name: "a.mkv"}},
		},
		{
			name:  "空のフォルダ",
			body:  `["1.25"]`,
			free:  1.25,
			files: []MediaFile{},
		},
		{
			name:  "空き容量のない名前の一覧",
			body:  `["a.mkv", "b.mp4"]`,
			files: []MediaFile{{Name: "a.mkv"}, {Name: "b.mp4"}},
		},
		{
			name:  "空き容量のない組の一覧",
			body:  `[["a.mkv", "10 MiB"]]`,
			files: []MediaFile{{Name: "a.mkv", Size: "10 MiB"}},
		},
		{name: "空の配列", body: `[]`, files: []MediaFile{}},
		{name: "配列でない応答", body: `{"media": 1}`, expectErr: true},
		{name: "不正な空き容量", body: `[{"x":1}]`, expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			listing, err := ParseMediaListing([]byte(tc.body))
			if tc.expectErr {
				if err == nil {
					t.Error("エラーが期待されました")
				}
				return
			}
			if err != nil {
				t.Fatalf("解析に失敗: %v", err)
			}
			if listing.FreeGiB != tc.free {
				t.Errorf("空き容量: got %v, want %v", listing.FreeGiB, tc.free)
			}
			if !reflect.DeepEqual(listing.Files, tc.files) {
				t.Errorf("ファイル: got %+v, want %+v", listing.Files, tc.files)
			}
		})
	}
}
