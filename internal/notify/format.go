package notify

import (
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"onbid_bot/internal/model"
)

// MaxMessageLen is the Telegram limit on the length of one text message.
const MaxMessageLen = 4096

// NoNewItemsMessage is sent when a cycle found nothing new.
const NoNewItemsMessage = "🌀 새로 등록된 입찰공고가 없습니다."

const separator = "----------"

// FormatMessages renders the notification for items as Telegram HTML.
// Everything normally fits in one message; when it does not, the text is
// split between items so no item is cut in half.
func FormatMessages(items []model.Item) []string {
	if len(items) == 0 {
		return []string{NoNewItemsMessage}
	}

	header := fmt.Sprintf("🔔 %d개의 새로운 입찰공고가 등록되었습니다!\n\n", len(items))

	var (
		messages []string
		current  strings.Builder
		pending  int
	)
	current.WriteString(header)
	size := utf8.RuneCountInString(header)

	for _, it := range items {
		block := formatItem(it)
		n := utf8.RuneCountInString(block)
		if size+n > MaxMessageLen && pending > 0 {
			messages = append(messages, strings.TrimRight(current.String(), "\n"))
			current.Reset()
			size, pending = 0, 0
		}
		current.WriteString(block)
		size += n
		pending++
	}
	if pending > 0 {
		messages = append(messages, strings.TrimRight(current.String(), "\n"))
	}
	return messages
}

func formatItem(it model.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "입찰물건 : %s\n\n", html.EscapeString(it.Title))
	fmt.Fprintf(&b, "입찰기간 : %s\n\n", html.EscapeString(it.BidDate))
	if it.Link != "" {
		link := html.EscapeString(it.Link)
		fmt.Fprintf(&b, "공고보기 : <a href=\"%s\">%s</a>\n\n", link, link)
	} else {
		b.WriteString("공고보기 : -\n\n")
	}
	b.WriteString(separator + "\n\n")
	return b.String()
}
