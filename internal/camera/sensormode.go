package camera

import "fmt"

// Preset は解像度プリセット
type Preset struct {
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Aspect string `json:"aspect"`
}

// Value は "幅x高さ" 形式の値を返す
func (p Preset) Value() string {
	return fmt.Sprintf("%dx%d", p.Width, p.Height)
}

// ResolutionPresets は表示順の解像度プリセット
var ResolutionPresets = []Preset{
	{Name: "wxga", Width: 1280, Height: 800, Aspect: "16:10"},
	{Name: "hd", Width: 1280, Height: 720, Aspect: "16:9"},
	{Name: "xga", Width: 1024, Height: 768, Aspect: "4:3"},
	{Name: "qhd", Width: 960, Height: 544, Aspect: "16:9"},
	{Name: "svga", Width: 800, Height: 608, Aspect: "4:3"},
	{Name: "wvga", Width: 800, Height: 448, Aspect: "16:9"},
	{Name: "vga", Width: 640, Height: 480, Aspect: "4:3"},
	{Name: "st", Width: 640, Height: 400, Aspect: "16:10"},
	{Name: "cga", Width: 320, Height: 200, Aspect: "16:10"},
	{Name: "lynx", Width: 160, Height: 100, Aspect: "16:10"},
}

// ModeOptions はセンサーモードで選択できるフレームレートと解像度
type ModeOptions struct {
	Framerates []int    `json:"framerates"`
	Visible    []string `json:"visible"`
	Hidden     []string `json:"hidden"`
}

// modeEntry はセンサーモード表の1行
type modeEntry struct {
	framerates []int
	// 現在の解像度が 1280x720 のときに使うフレームレート（モード6のみ）
	framerates720 []int
	visible       []string
}

var (
	fps60to5   = []int{60, 55, 50, 45, 40, 35, 30, 25, 20, 15, 10, 5}
	fps30to1   = []int{30, 29, 28, 27, 26, 25, 24, 23, 22, 21, 20, 19, 18, 17, 16, 15, 14, 13, 12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1}
	fps15to1   = []int{15, 14, 13, 12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1}
	fps40to1   = []int{40, 39, 38, 37, 36, 35, 34, 33, 32, 31, 30, 29, 28, 27, 26, 25, 24, 23, 22, 21, 20, 19, 18, 17, 16, 15, 14, 13, 12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1}
	fps60to40  = []int{60, 55, 50, 45, 40}
	fps90to40  = []int{90, 85, 80, 75, 70, 65, 60, 55, 50, 45, 40}
	fps200to40 = []int{200, 190, 180, 170, 160, 150, 140, 130, 120, 110, 100, 90, 80, 70, 60, 50, 40}
	fps210to10 = []int{210, 190, 170, 150, 130, 110, 90, 70, 50, 30, 10}
	fps420to20 = []int{420, 380, 340, 300, 260, 220, 180, 140, 100, 60, 20}
	fps480to40 = []int{480, 440, 400, 360, 320, 280, 240, 200, 160, 120, 80, 40}
)

// Raspberry Pi カメラ (ov5647 / imx219 / imx477) のモード表
var piModes = map[int]modeEntry{
	0: {framerates: fps60to5, visible: []string{"hd", "xga", "qhd", "svga", "wvga", "vga"}},      // auto
	1: {framerates: fps30to1, visible: []string{"hd", "qhd", "wvga"}},                             // 1920x1080 16:9 0.1-30fps partial
	2: {framerates: fps15to1, visible: []string{"xga", "svga", "vga"}},                            // 3280x2464 4:3 0.1-15fps full
	3: {framerates: fps15to1, visible: []string{"xga", "svga", "vga"}},                            // 3280x2464 4:3 0.1-15fps full
	4: {framerates: fps40to1, visible: []string{"xga", "svga", "vga"}},                            // 1640x1232 4:3 0.1-40fps full
	5: {framerates: fps40to1, visible: []string{"hd", "qhd", "wvga"}},                             // 1640x922 16:9 0.1-40fps partial
	6: {framerates: fps90to40, framerates720: fps60to40, visible: []string{"hd", "qhd", "wvga"}}, // 1280x720 16:9 40-90fps partial
	7: {framerates: fps200to40, visible: []string{"vga"}},                                         // 640x480 4:3 40-200fps partial
}

// ov9281 は全モードで16:10系のプリセットを表示する
var ov9281Visible = []string{"wxga", "hd", "st", "cga", "lynx"}

var ov9281Modes = map[int]modeEntry{
	0:  {framerates: fps60to5, visible: ov9281Visible},
	1:  {framerates: fps60to5, visible: ov9281Visible},
	2:  {framerates: fps210to10, visible: ov9281Visible},
	3:  {framerates: fps420to20, visible: ov9281Visible},
	4:  {framerates: fps480to40, visible: ov9281Visible},
	5:  {framerates: fps60to5, visible: ov9281Visible},
	6:  {framerates: fps60to5, visible: ov9281Visible},
	7:  {framerates: fps60to5, visible: ov9281Visible},
	8:  {framerates: fps60to5, visible: ov9281Visible},
	9:  {framerates: fps60to5, visible: ov9281Visible},
	10: {framerates: fps60to5, visible: ov9281Visible},
	11: {framerates: fps60to5, visible: ov9281Visible},
	12: {framerates: fps60to5, visible: ov9281Visible},
	13: {framerates: fps60to5, visible: ov9281Visible},
	14: {framerates: fps60to5, visible: ov9281Visible},
	15: {framerates: fps60to5, visible: ov9281Visible},
	16: {framerates: fps60to5, visible: ov9281Visible},
	17: {framerates: fps60to5, visible: ov9281Visible},
	18: {framerates: fps210to10, visible: ov9281Visible},
	19: {framerates: fps420to20, visible: ov9281Visible},
	20: {framerates: fps480to40, visible: ov9281Visible},
	21: {framerates: fps60to5, visible: ov9281Visible},
	22: {framerates: fps60to5, visible: ov9281Visible},
}

// モデルごとのモード表
var modeTables = map[string]map[int]modeEntry{
	"ov5647": piModes,
	"imx219": piModes,
	"imx477": piModes,
	"ov9281": ov9281Modes,
}

// Lookup はモデルとセンサーモードから選択肢を返す
// resolution は現在の解像度（"1280x720" など）で、モード6の選択肢に影響する
func Lookup(model string, mode int, resolution string) (ModeOptions, error) {
	table, ok := modeTables[model]
	if !ok {
		return ModeOptions{}, fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}
	entry, ok := table[mode]
	if !ok {
		return ModeOptions{}, fmt.Errorf("%w: %s モード %d", ErrUnknownMode, model, mode)
	}

	framerates := entry.framerates
	if entry.framerates720 != nil && resolution == "1280x720" {
		framerates = entry.framerates720
	}

	visible := make(map[string]bool, len(entry.visible))
	for _, name := range entry.visible {
		visible[name] = true
	}
	opts := ModeOptions{
		Framerates: append([]int(nil), framerates...),
		Visible:    []string{},
		Hidden:     []string{},
	}
	for _, preset := range ResolutionPresets {
		if visible[preset.Name] {
			opts.Visible = append(opts.Visible, preset.Name)
		} else {
			opts.Hidden = append(opts.Hidden, preset.Name)
		}
	}
	return opts, nil
}

// センサーモードの説明
var (
	ov5647Labels = []string{
		"auto",
		"1920x1080 16:9 0.1-30fps partial",
		"2592x1944 4:3 0.1-15fps full",
		"2592x1944 4:3 0.1666-1fps full",
		"1296x972 4:3 1-42fps full",
		"1296x730 16:9 1-49fps full",
		"640x480 4:3 42.1-60fps full",
		"640x480 4:3 60.1-90fps full",
	}
	imxLabels = []string{
		"auto",
		"1920x1080 16:9 0.1-30fps partial",
		"3280x2464 4:3 0.1-15fps full",
		"3280x2464 4:3 0.1-15fps full",
		"1640x1232 4:3 0.1-40fps full",
		"1640x922 16:9 0.1-40fps partial",
		"1280x720 16:9 40-90fps partial",
		"640x480 4:3 40-200fps partial",
	}
	ov9281Labels = []string{
		"1280x800 GREY 60fps 1lane",
		"1280x720 GREY 60fps 1lane",
		"640x400 GREY 210fps 1lane",
		"320x200 GREY 420fps 1lane",
		"160x100 GREY 480fps 1lane",
		"1280x800 GREY 480fps 2lanes",
		"1280x800 Y10P 480fps 2lanes",
		"1280x800 GREY 60fps 1lane ETM",
		"1280x720 GREY 60fps 1lane ETM",
		"640x400 GREY 60fps 1lane ETM",
		"320x200 GREY 60fps 1lane ETM",
		"1280x800 GREY 60fps 2lanes ETM",
		"1280x800 Y10P 60fps 2lanes ETM",
		"1280x720 GREY 60fps 2lanes ETM",
		"640x400 GREY 60fps 2lanes ETM",
		"320x200 GREY 60fps 2lanes ETM",
		"1280x800 BA81 60fps 1lane",
		"1280x720 BA81 60fps 1lane",
		"640x400 BA81 210fps 1lane",
		"320x200 BA81 420fps 1lane",
		"160x100 BA81 480fps 1lane",
		"1280x800 BA81 480fps 2lanes",
		"1280x800 pBAA 480fps 1lane",
	}
)

var modeLabels = map[string][]string{
	"ov5647": ov5647Labels,
	"imx219": imxLabels,
	"imx477": imxLabels,
	"ov9281": ov9281Labels,
}

// SensorModeLabels はモデルのセンサーモード説明を番号順に返す
func SensorModeLabels(model string) []string {
	return append([]string(nil), modeLabels[model]...)
}

// ShutterSpeed はシャッタースピードの選択肢（マイクロ秒）
type ShutterSpeed struct {
	Value int    `json:"value"`
	Label string `json:"label"`
}

var (
	piShutterSpeeds = []ShutterSpeed{
		{21317838, "maximum"}, {20000000, "20 s"}, {15000000, "15 s"}, {10000000, "10 s"},
		{9000000, "9 s"}, {8000000, "8 s"}, {7000000, "7 s"}, {6000000, "6 s"},
		{5000000, "5 s"}, {4000000, "4 s"}, {3000000, "3 s"}, {2000000, "2 s"},
		{1000000, "1 s"}, {900000, "900 ms"}, {800000, "800 ms"}, {700000, "700 ms"},
		{600000, "600 ms"}, {500000, "500 ms"}, {400000, "400 ms"}, {300000, "300 ms"},
		{200000, "200 ms"}, {100000, "100 ms"}, {90000, "90 ms"}, {80000, "80 ms"},
		{70000, "70 ms"}, {60000, "60 ms"}, {50000, "50 ms"}, {40000, "40 ms"},
		{30000, "30 ms"}, {20000, "20 ms"}, {10000, "10 ms"}, {9000, "9 ms"},
		{8000, "8 ms"}, {7000, "7 ms"}, {6000, "6 ms"}, {5000, "5 ms"},
		{4000, "4 ms"}, {3000, "3 ms"}, {2000, "2 ms"}, {1000, "1 ms"},
		{900, "900 us"}, {800, "800 us"}, {700, "700 us"}, {600, "600 us"},
		{500, "500 us"}, {400, "400 us"}, {300, "300 us"}, {200, "200 us"},
		{100, "100 us"}, {1, "minimum"}, {0, "auto"},
	}
	ov9281ShutterSpeeds = []ShutterSpeed{
		{30000, "30 ms"}, {20000, "20 ms"}, {10000, "10 ms"}, {9000, "9 ms"},
		{8000, "8 ms"}, {7000, "7 ms"}, {6000, "6 ms"}, {5000, "5 ms"},
		{4000, "4 ms"}, {3000, "3 ms"}, {2000, "2 ms"}, {1000, "1 ms"},
		{900, "900 us"}, {800, "800 us"}, {700, "700 us"}, {600, "600 us"},
		{500, "500 us"}, {400, "400 us"}, {300, "300 us"}, {200, "200 us"},
		{100, "100 us"}, {1, "minimum"}, {0, "auto"},
	}
)

var shutterSpeeds = map[string][]ShutterSpeed{
	"ov5647": piShutterSpeeds,
	"imx219": piShutterSpeeds,
	"imx477": piShutterSpeeds,
	"ov9281": ov9281ShutterSpeeds,
}

// ShutterSpeeds はモデルで選択できるシャッタースピードを返す
func ShutterSpeeds(model string) []ShutterSpeed {
	return append([]ShutterSpeed(nil), shutterSpeeds[model]...)
}

// Capabilities はモデルごとに表示する操作項目
type Capabilities struct {
	Effects        bool `json:"effects"`
	Exposure       bool `json:"exposure"`
	Stabilisation  bool `json:"video_stabilisation"`
	Rotation       bool `json:"rotation"`
	VideoDirection bool `json:"video_direction"`
	Zoom           bool `json:"zoom"`
	Gain           bool `json:"gain"`
	AWB            bool `json:"awb"`
}

var capabilities = map[string]Capabilities{
	"ov5647": {Effects: true, Exposure: true, Stabilisation: true, Rotation: true, VideoDirection: true, Zoom: true},
	"imx219": {Effects: true, Exposure: true, Stabilisation: true, Rotation: true, VideoDirection: true, Zoom: true},
	"imx477": {Effects: true, Exposure: true, Rotation: true, VideoDirection: true, Zoom: true},
	"ov9281": {Gain: true, AWB: true},
}

// CapabilitiesOf はモデルの操作項目を返す。不明なモデルは全て false
func CapabilitiesOf(model string) Capabilities {
	return capabilities[model]
}
