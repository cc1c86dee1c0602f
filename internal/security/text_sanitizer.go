package security

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	xhtml "golang.org/x/net/html"
)

// courseNameDisallowed はコース名に残さない文字。
// 英数字、ピリオド、アンダースコア、ハイフン、空白のみを許可する。
var courseNameDisallowed = regexp.MustCompile(`[^-a-zA-Z0-9._\s]`)

// TextSanitizer はCanvasから受け取った文字列を整える。
type TextSanitizer struct {
	strict *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *TextSanitizer {
	// タグの境界で単語がつながらないよう空白に置き換える
	policy := bluemonday.StrictPolicy()
	policy.AddSpaceWhenStrippingTag(true)
	return &TextSanitizer{strict: policy}
}

// CourseName はコース名から許可外の文字を取り除く。
// 山括弧も1文字ずつ除去するため "<Algorithms>" は "Algorithms" になる。
// 既存のプロジェクト名と一致させるため、タグとしての解釈はしない。
func (s *TextSanitizer) CourseName(raw string) string {
	return courseNameDisallowed.ReplaceAllString(raw, "")
}

// PlainText はHTML断片からタグを除いたテキストを取り出し、空白を1つに詰める。
// scriptとstyleの中身は捨てる。ロック理由など、ログに出すHTMLを読みやすくするために使う。
func (s *TextSanitizer) PlainText(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	text := xhtml.UnescapeString(s.strict.Sanitize(rawHTML))
	return strings.Join(strings.Fields(text), " ")
}
