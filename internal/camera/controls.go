package camera

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// 値を伴うパラメータ
var valueParameters = map[string]bool{
	// Quality
	"resolution": true, "width": true, "height": true, "framerate": true,
	"bitrate": true, "bitrate_mode": true, "sensor_mode": true,
	// Effects
	"brightness": true, "contrast": true, "saturation": true, "sharpness": true,
	"drc": true, "image_effect": true, "awb_mode": true, "awb_gain_blue": true,
	"awb_gain_red": true,
	// Settings
	"exposure_mode": true, "metering_mode": true, "exposure_compensation": true,
	"iso": true, "shutter_speed": true, "video_stabilisation": true, "gain": true,
	"awb": true,
	// Orientation
	"rotation": true, "hflip": true, "vflip": true, "video_direction": true,
	// Controls
	"logging_level": true, "stats": true, "rtsp": true, "record": true, "format": true,
	"max_files": true, "max_size_bytes": true, "max_size_time": true,
	"continuation": true, "persistent": true, "time": true,
}

// 値を伴わない操作
var actions = map[string]bool{
	"restart": true,
	"media":   true,
	"remove":  true,
}

// IsKnown はカメラが受け付けるパラメータか操作かを返す
func IsKnown(name string) bool {
	return valueParameters[name] || actions[name]
}

// IsAction は値を伴わない操作かを返す
func IsAction(name string) bool {
	return actions[name]
}

// Query はパラメータ変更要求のクエリ文字列を組み立てる
// resolution は width と height に分解し、操作は値なしで送る
func Query(name, value string) (string, error) {
	if !IsKnown(name) {
		return "", fmt.Errorf("%w: %s", ErrUnknownParameter, name)
	}

	if actions[name] {
		if name == "remove" && value != "" {
			return "remove=" + url.QueryEscape(value), nil
		}
		return name, nil
	}

	if name == "resolution" {
		w, h, err := SplitResolution(value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("width=%d&height=%d", w, h), nil
	}

	if value == "" {
		return "", fmt.Errorf("%s の値が空です", name)
	}
	return name + "=" + url.QueryEscape(value), nil
}

// SplitResolution は "1280x720" を幅と高さに分解する
func SplitResolution(value string) (int, int, error) {
	parts := strings.Split(strings.ToLower(value), "x")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("解像度の形式が不正です: %q", value)
	}
	w, errW := strconv.Atoi(parts[0])
	h, errH := strconv.Atoi(parts[1])
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 0, 0, fmt.Errorf("解像度の形式が不正です: %q", value)
	}
	return w, h, nil
}

// 統計表示のオン/オフ値
const (
	StatsOff     = "0x00000000"
	StatsDefault = "0x0000040c"
	StatsOn      = "0x0000065d"
)

// ToggleNext は切り替え式パラメータの次の値を確認済みの値から求める
func ToggleNext(name, current string) (string, error) {
	switch name {
	case "video_stabilisation", "hflip", "vflip", "rtsp", "record",
		"continuation", "persistent", "format":
		if current == "0" || current == "" {
			return "1", nil
		}
		return "0", nil
	case "stats":
		if current == StatsOff || current == StatsDefault || current == "" {
			return StatsOn, nil
		}
		return StatsOff, nil
	}
	return "", fmt.Errorf("%s は切り替え式のパラメータではありません", name)
}

// ズームで辿るセンサーモードの順序
var zoomLadder = []string{"0", "5", "6", "1", "7"}

// センサーモードからズーム段階への対応
var zoomLevels = map[string]int{
	"0": 0, "2": 0, "3": 0, "4": 0,
	"5": 1,
	"6": 2,
	"1": 3,
	"7": 4,
}

// ZoomLevel は確認済みのセンサーモードに対応するズーム段階を返す
func ZoomLevel(p Parameters) (level int, max int, ok bool) {
	if !CapabilitiesOf(p.Model()).Zoom {
		return 0, 0, false
	}
	level, ok = zoomLevels[p["sensor_mode"]]
	return level, len(zoomLadder) - 1, ok
}

// ZoomMode は delta 段階ズームしたときのセンサーモードを返す
// 端に達している場合は ok=false
func ZoomMode(p Parameters, delta int) (string, bool) {
	level, max, ok := ZoomLevel(p)
	if !ok {
		return "", false
	}
	next := level + delta
	if next < 0 || next > max {
		return "", false
	}
	return zoomLadder[next], true
}

// SlowLinkBitrate は回線品質の低下通知に対して下げたビットレートを返す
// 損失が500以下、またはビットレートが1Mbps以下なら変更しない
func SlowLinkBitrate(p Parameters, lost int) (int, bool) {
	bitrate, ok := p.Int("bitrate")
	if !ok || lost <= 500 || bitrate <= 1000000 {
		return 0, false
	}
	return bitrate - 1000000, true
}
