// Package stream はストリームのライフサイクルを制御します。
//
// セッション作成、プラグインへのアタッチ、マウントポイントの一覧取得と視聴、
// オファーへの応答、再生開始と停止、後片付けまでを一つの状態機械として扱います。
//
// 仕様:
//   - 全ての状態遷移は Run の制御ループ上で行う
//   - シグナリングとカメラへの要求はループの外で実行し、結果をイベントとして戻す
//   - カメラのパラメータはサーバーが確認した値のみを保持する
//   - 致命的なエラーの後はコントローラを作り直す（ErrReloadRequired）
package stream
