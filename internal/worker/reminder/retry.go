package reminder

import (
	"errors"
	"net/textproto"
	"time"
)

const (
	// initialBackoff は送信失敗後の初回再試行までの遅延（1分）。
	initialBackoff = time.Minute
	// maxBackoff は再試行遅延の上限（1時間）。
	maxBackoff = time.Hour
	// maxLastErrorLength はlast_errorに保存するメッセージの最大バイト数。
	maxLastErrorLength = 500
)

// CalculateBackoff は失敗回数に基づいて指数バックオフ遅延を計算する。
// 初回1分、2倍ずつ増加、最大1時間。
func CalculateBackoff(attempts int) time.Duration {
	delay := initialBackoff
	for i := 0; i < attempts; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// NextAttemptAt は送信失敗後の次回試行時刻を返す。
// attemptsは今回の失敗を含まない、これまでの失敗回数。
func NextAttemptAt(now time.Time, attempts int) time.Time {
	return now.Add(CalculateBackoff(attempts))
}

// IsPermanent はSMTPサーバーが5xxで拒否したかを返す。
// 恒久エラーでもリマインダーは未送信のまま残り、上限の間隔で再試行される。
func IsPermanent(err error) bool {
	var tpErr *textproto.Error
	return errors.As(err, &tpErr) && tpErr.Code >= 500
}

// truncateError はlast_errorに保存できる長さにエラーメッセージを切り詰める。
func truncateError(err error) string {
	msg := err.Error()
	if len(msg) <= maxLastErrorLength {
		return msg
	}
	// UTF-8の途中で切らないように後退する
	cut := maxLastErrorLength
	for cut > 0 && msg[cut]&0xC0 == 0x80 {
		cut--
	}
	return msg[:cut]
}
