// Package logging はアプリケーション全体で共有するロガーファクトリを提供します。
//
// 各コンポーネントはファクトリからスコープ付きの LeveledLogger を生成します。
// WebRTC スタック(pion)にも同じファクトリを渡すため、出力先とレベルは一箇所で決まります。
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pion/logging"
)

// スコープ名
const (
	ScopeStream = "stream"
	ScopeJanus  = "janus"
	ScopePeer   = "peer"
	ScopeCamera = "camera"
	ScopeServer = "server"
	ScopeCLI    = "cli"
)

var levels = map[string]logging.LogLevel{
	"disabled": logging.LogLevelDisabled,
	"error":    logging.LogLevelError,
	"warn":     logging.LogLevelWarn,
	"info":     logging.LogLevelInfo,
	"debug":    logging.LogLevelDebug,
	"trace":    logging.LogLevelTrace,
}

// ParseLevel はログレベル名を変換する
func ParseLevel(name string) (logging.LogLevel, error) {
	level, ok := levels[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return logging.LogLevelDisabled, fmt.Errorf("不明なログレベル: %q", name)
	}
	return level, nil
}

// NewFactory は既定レベルとスコープ別レベルからファクトリを作成する
// w が nil の場合は標準エラー出力に書き込む
func NewFactory(w io.Writer, level string, scopes map[string]string) (logging.LoggerFactory, error) {
	defaultLevel, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = os.Stderr
	}

	factory := logging.NewDefaultLoggerFactory()
	factory.Writer = w
	factory.DefaultLogLevel = defaultLevel
	if factory.ScopeLevels == nil {
		factory.ScopeLevels = make(map[string]logging.LogLevel)
	}
	for scope, name := range scopes {
		scopeLevel, err := ParseLevel(name)
		if err != nil {
			return nil, fmt.Errorf("スコープ %s: %w", scope, err)
		}
		factory.ScopeLevels[scope] = scopeLevel
	}

	return factory, nil
}

// Discard はテスト用に何も出力しないファクトリを返す
func Discard() logging.LoggerFactory {
	factory := logging.NewDefaultLoggerFactory()
	factory.Writer = io.Discard
	factory.DefaultLogLevel = logging.LogLevelDisabled
	return factory
}
