package camera

import (
	"errors"
	"reflect"
	"testing"
)

func TestLookupImx219Mode6(t *testing.T) {
	opts, err := Lookup("imx219", 6, "1280x720")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}

	wantFramerates := []int{60, 55, 50, 45, 40}
	if !reflect.DeepEqual(opts.Framerates, wantFramerates) {
		t.Errorf("framerates: got %v, want %v", opts.Framerates, wantFramerates)
	}
	wantVisible := []string{"hd", "qhd", "wvga"}
	if !reflect.DeepEqual(opts.Visible, wantVisible) {
		t.Errorf("visible: got %v, want %v", opts.Visible, wantVisible)
	}
	for _, name := range []string{"xga", "svga", "vga"} {
		if !contains(opts.Hidden, name) {
			t.Errorf("4:3 preset %s should be hidden, hidden=%v", name, opts.Hidden)
		}
	}

	// 1280x720 以外では 40-90fps の選択肢
	opts, err = Lookup("imx219", 6, "960x544")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	wantFramerates = []int{90, 85, 80, 75, 70, 65, 60, 55, 50, 45, 40}
	if !reflect.DeepEqual(opts.Framerates, wantFramerates) {
		t.Errorf("framerates: got %v, want %v", opts.Framerates, wantFramerates)
	}
}

func TestLookupTable(t *testing.T) {
	testCases := []struct {
		name        string
		model       string
		mode        int
		firstFPS    int
		lastFPS     int
		count       int
		wantVisible []string
	}{
		{"imx219 auto", "imx219", 0, 60, 5, 12, []string{"hd", "xga", "qhd", "svga", "wvga", "vga"}},
		{"ov5647 1080p", "ov5647", 1, 30, 1, 30, []string{"hd", "qhd", "wvga"}},
		{"imx477 full", "imx477", 3, 15, 1, 15, []string{"xga", "svga", "vga"}},
		{"imx219 binned 4:3", "imx219", 4, 40, 1, 40, []string{"xga", "svga", "vga"}},
		{"imx219 vga", "imx219", 7, 200, 40, 17, []string{"vga"}},
		{"ov9281 60fps", "ov9281", 13, 60, 5, 12, []string{"wxga", "hd", "st", "cga", "lynx"}},
		{"ov9281 210fps", "ov9281", 18, 210, 10, 11, []string{"wxga", "hd", "st", "cga", "lynx"}},
		{"ov9281 420fps", "ov9281", 3, 420, 20, 11, []string{"wxga", "hd", "st", "cga", "lynx"}},
		{"ov9281 480fps", "ov9281", 20, 480, 40, 12, []string{"wxga", "hd", "st", "cga", "lynx"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opts, err := Lookup(tc.model, tc.mode, "")
			if err != nil {
				t.Fatalf("Lookup failed: %v", err)
			}
			if len(opts.Framerates) != tc.count {
				t.Errorf("count: got %d, want %d", len(opts.Framerates), tc.count)
			}
			if opts.Framerates[0] != tc.firstFPS || opts.Framerates[len(opts.Framerates)-1] != tc.lastFPS {
				t.Errorf("range: got %d..%d, want %d..%d", opts.Framerates[0], opts.Framerates[len(opts.Framerates)-1], tc.firstFPS, tc.lastFPS)
			}
			if !reflect.DeepEqual(opts.Visible, tc.wantVisible) {
				t.Errorf("visible: got %v, want %v", opts.Visible, tc.wantVisible)
			}
			if len(opts.Visible)+len(opts.Hidden) != len(ResolutionPresets) {
				t.Errorf("visible+hidden should cover all presets: %v %v", opts.Visible, opts.Hidden)
			}
		})
	}
}

func TestLookupUnknown(t *testing.T) {
	if _, err := Lookup("webcam", 0, ""); !errors.Is(err, ErrUnknownModel) {
		t.Errorf("Expected ErrUnknownModel, got %v", err)
	}
	if _, err := Lookup("imx219", 8, ""); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("Expected ErrUnknownMode, got %v", err)
	}
	if _, err := Lookup("ov9281", 23, ""); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("Expected ErrUnknownMode, got %v", err)
	}
}

func TestLookupReturnsCopy(t *testing.T) {
	opts, _ := Lookup("imx219", 0, "")
	opts.Framerates[0] = 999

	again, _ := Lookup("imx219", 0, "")
	if again.Framerates[0] != 60 {
		t.Fatalf("table was mutated through a lookup result: %v", again.Framerates)
	}
}

func TestModelTables(t *testing.T) {
	if got := len(SensorModeLabels("ov9281")); got != 23 {
		t.Errorf("ov9281 labels: got %d, want 23", got)
	}
	if got := SensorModeLabels("imx219")[6]; got != "1280x720 16:9 40-90fps partial" {
		t.Errorf("imx219 mode 6 label: got %q", got)
	}
	if got := ShutterSpeeds("ov9281"); got[0].Value != 30000 || got[len(got)-1].Label != "auto" {
		t.Errorf("ov9281 shutter speeds: got %v", got)
	}
	if SensorModeLabels("webcam") != nil && len(SensorModeLabels("webcam")) != 0 {
		t.Error("unknown model should have no labels")
	}

	caps := CapabilitiesOf("imx477")
	if !caps.Zoom || caps.Stabilisation {
		t.Errorf("imx477 capabilities: %+v", caps)
	}
	if caps := CapabilitiesOf("ov9281"); caps.Zoom || !caps.Gain || !caps.AWB {
		t.Errorf("ov9281 capabilities: %+v", caps)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
