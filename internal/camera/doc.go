// Package camera はカメラ制御エンドポイントとのやり取りを担う
//
// # 責務
// - カメラ制御HTTPエンドポイントへのパラメータ変更要求
// - カメラが報告したパラメータ(Parameters)の解釈
// - 録画ファイル一覧・削除などフォルダ操作の結果の解釈
// - センサーモードごとのフレームレート・解像度プリセットの静的テーブル
//
// # 仕様
//   - リクエストは GET /?<parameter>=<value> もしくは GET /?<action> の形式
//   - 応答はパラメータのフラットなJSONオブジェクト、またはメディアファイルの一覧
//   - Parameters はサーバーが確認した値のみを保持し、推測で書き換えない
//   - センサーモード表は実行時に導出しない読み取り専用のデータ
package camera
