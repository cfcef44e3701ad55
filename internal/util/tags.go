package util

import (
	"strings"
	"time"
)

// ResolveTags substitutes recipient tags in campaign text. Tags use the
// {{[name]}} form carried over from the desktop tooling this service
// replaced, so existing templates keep working.
//
//	{{[to]}}   full recipient address
//	{{[name]}} local part of the address
//	{{[date]}} resolution timestamp (YYYY-MM-DD HH:MM:SS)
//	{{[ide]}}  unique id for this send
func ResolveTags(text, recipient, sendID string, now time.Time) string {
	if text == "" || !strings.Contains(text, "{{[") {
		return text
	}
	local := recipient
	if at := strings.IndexByte(recipient, '@'); at > 0 {
		local = recipient[:at]
	}
	r := strings.NewReplacer(
		"{{[to]}}", recipient,
		"{{[name]}}", local,
		"{{[date]}}", now.Format("2006-01-02 15:04:05"),
		"{{[ide]}}", sendID,
	)
	return r.Replace(text)
}
