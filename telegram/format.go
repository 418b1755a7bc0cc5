package telegram

import (
	"fmt"
	"html"
	"time"

	"github.com/lovelive-bluebird/bluebird/model"
)

// Korea Standard Time has no daylight saving, a fixed zone avoids depending
// on tzdata in the container.
var kst = time.FixedZone("KST", 9*60*60)

const (
	// SystemNotice is posted to the chat when a publish fails, so that
	// readers know translations may be missing.
	SystemNotice = "<b>[시스템 공지]</b>\n\n" +
		"처리 중 오류가 발생하였습니다.\n" +
		"별도 공지 전까지, 번역이 정상적으로 게시되지 않을 수 있습니다.\n"

	AdminNoticeHeader = "<b>[관리자 공지]</b>"
)

// FormatPost renders the message body: the (translated) text, then the
// post time in KST and a link to the source.
func FormatPost(post model.Post, text string) string {
	dateStr := ""
	if post.CreatedAt != nil {
		dateStr = post.CreatedAt.In(kst).Format("01/02 15:04")
	}
	return fmt.Sprintf("%s\n\n<code>%s</code> | <i><a href='%s'>Link</a></i>",
		html.EscapeString(text), dateStr, html.EscapeString(post.Url))
}

// FormatAdminNotice prefixes an operator announcement with the admin header
// unless withHeader is false. The message is sent as HTML without escaping.
func FormatAdminNotice(message string, withHeader bool) string {
	if !withHeader {
		return message
	}
	return AdminNoticeHeader + "\n\n" + message
}
