package httpapi

import (
	"net/http"
	"strings"
)

// NextLink はLinkヘッダ（RFC 8288）から rel="next" のURLを取り出す。
// 次ページが無い場合は空文字列を返す。
func NextLink(h http.Header) string {
	for _, header := range h.Values("Link") {
		for _, part := range strings.Split(header, ",") {
			segments := strings.Split(part, ";")
			if len(segments) < 2 {
				continue
			}
			target := strings.TrimSpace(segments[0])
			if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
				continue
			}
			for _, param := range segments[1:] {
				param = strings.TrimSpace(param)
				if !strings.HasPrefix(strings.ToLower(param), "rel=") {
					continue
				}
				rels := strings.Trim(param[len("rel="):], `"`)
				for _, rel := range strings.Fields(rels) {
					if strings.EqualFold(rel, "next") {
						return target[1 : len(target)-1]
					}
				}
			}
		}
	}
	return ""
}
