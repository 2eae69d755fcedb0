// Package janus は Janus WebRTC ゲートウェイのシグナリングを扱います。
//
// ゲートウェイとのセッション作成、プラグインへのアタッチ、
// プラグインへのメッセージ送信と非同期イベントの受信を担当します。
//
// トランスポート:
//   - HTTP: リクエストは POST、イベントはロングポーリング（resty）
//   - WebSocket: "janus-protocol" サブプロトコル（gorilla/websocket）
//
// セッションはキープアライブを定期的に送信し、ゲートウェイとの接続が
// 失われた場合はセッション宛てのイベントとして通知します。
package janus
