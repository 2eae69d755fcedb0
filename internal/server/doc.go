// Package server は、カメラ操作パネルのHTTPサーバーを提供します。
//
// ストリームコントローラの表示先(View)として状態を保持し、
// JSON API とサーバー送信イベントで利用者に公開します。
//
// 責務:
//   - HTTPサーバーの起動とグレースフルシャットダウン
//   - 埋め込みのAPI定義による要求の検証
//   - 操作要求のコントローラへの転送
//   - 状態変化のイベント配信
//   - 操作パネル(HTML)の配信
//
// 操作要求は非同期に処理されます。API は 202 を返し、
// 結果は /api/events に流れます。
package server
