package session

import "strconv"

// FormatRemaining は残り秒数を「125 секунд」の形式で返す。負の値は0として扱う。
func FormatRemaining(sec int) string {
	if sec < 0 {
		sec = 0
	}
	return strconv.Itoa(sec) + " " + pluralSeconds(sec)
}

// pluralSeconds はロシア語の数詞に合わせた「秒」の語形を返す。
func pluralSeconds(n int) string {
	mod10 := n % 10
	mod100 := n % 100
	switch {
	case mod10 == 1 && mod100 != 11:
		return "секунда"
	case mod10 >= 2 && mod10 <= 4 && (mod100 < 12 || mod100 > 14):
		return "секунды"
	default:
		return "секунд"
	}
}
