package peer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/h264writer"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

// sink は受信トラックの保存先
type sink struct {
	path   string
	writer media.Writer
}

// SinkExtension はコーデックに対応する保存ファイルの拡張子を返す
// 保存できないコーデックは空文字
func SinkExtension(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case strings.ToLower(webrtc.MimeTypeVP8), strings.ToLower(webrtc.MimeTypeVP9):
		return ".ivf"
	case strings.ToLower(webrtc.MimeTypeH264):
		return ".h264"
	case strings.ToLower(webrtc.MimeTypeOpus):
		return ".ogg"
	}
	return ""
}

// openSink はコーデックに応じたファイルを dir に作成する
func openSink(dir, mimeType string) (*sink, error) {
	ext := SinkExtension(mimeType)
	if ext == "" {
		return nil, fmt.Errorf("保存できないコーデックです: %s", mimeType)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("録画ディレクトリの作成に失敗: %w", err)
	}

	name := fmt.Sprintf("stream-%s%s", time.Now().Format("20060102-150405.000"), ext)
	path := filepath.Join(dir, name)

	var (
		w   media.Writer
		err error
	)
	switch ext {
	case ".ivf":
		w, err = ivfwriter.New(path, ivfwriter.WithCodec(mimeType))
	case ".h264":
		w, err = h264writer.New(path)
	case ".ogg":
		w, err = oggwriter.New(path, 48000, 2)
	}
	if err != nil {
		return nil, fmt.Errorf("録画ファイルの作成に失敗: %w", err)
	}
	return &sink{path: path, writer: w}, nil
}

func (s *sink) WriteRTP(pkt *rtp.Packet) error {
	return s.writer.WriteRTP(pkt)
}

func (s *sink) Close() error {
	return s.writer.Close()
}
