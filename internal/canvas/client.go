// Package canvas はCanvas LMS APIから課題とコースを取得するクライアントを提供する。
// ページ送り（Linkヘッダ）を内部で辿り、常に全件を返す。
package canvas

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/hitoshi/coursesync/internal/model"
)

const (
	// DefaultBaseURL はCanvasの既定URL。
	DefaultBaseURL = "https://canvas.instructure.com"
	// perPage は1ページあたりの取得件数。
	perPage = "100"
	// maxPages はページ送りの上限。サーバーの不具合による無限ループを防ぐ。
	maxPages = 500
)

// Getter はJSONを取得するHTTPクライアントのインターフェース。
// httpapi.Client が実装する。
type Getter interface {
	GetJSON(ctx context.Context, rawURL string, query url.Values, out any) (next string, err error)
}

// TextSanitizer はCanvasが返す文字列を表示用に整えるインターフェース。
type TextSanitizer interface {
	// CourseName はコース名を許可文字のみに整える。
	CourseName(raw string) string
	// PlainText はHTML断片からテキストを取り出す。
	PlainText(rawHTML string) string
}

// Client はCanvas APIのクライアント。
type Client struct {
	api       Getter
	sanitizer TextSanitizer
	logger    *slog.Logger
	baseHost  string
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURLはページ送りのURLが同じホストを指しているかの検証に使う。
func NewClient(api Getter, sanitizer TextSanitizer, logger *slog.Logger, baseURL string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("CanvasのURLが不正です: %q", baseURL)
	}
	return &Client{
		api:       api,
		sanitizer: sanitizer,
		logger:    logger,
		baseHost:  u.Host,
	}, nil
}

// ListCourses はユーザーが受講しているコースを全件取得する。
// コース名はサニタイズ済みで返す。名前の無いコース（アクセス制限付き）は除外する。
func (c *Client) ListCourses(ctx context.Context) ([]model.Course, error) {
	var raw []model.Course
	if err := collect(ctx, c, "api/v1/courses", &raw); err != nil {
		return nil, fmt.Errorf("コース一覧の取得に失敗しました: %w", err)
	}

	courses := make([]model.Course, 0, len(raw))
	for _, course := range raw {
		if course.Name == "" {
			c.logger.Debug("名前の無いコースを除外します", slog.Int64("course_id", course.ID))
			continue
		}
		course.Name = c.sanitizer.CourseName(course.Name)
		courses = append(courses, course)
	}

	c.logger.Info("Canvasのコースを読み込みました", slog.Int("course_count", len(courses)))
	return courses, nil
}

// ListAssignments は指定コースの課題を提出状態付きで全件取得する。
func (c *Client) ListAssignments(ctx context.Context, courseID int64) ([]model.Assignment, error) {
	path := "api/v1/courses/" + strconv.FormatInt(courseID, 10) + "/assignments"

	var assignments []model.Assignment
	if err := collect(ctx, c, path, &assignments); err != nil {
		return nil, fmt.Errorf("コース %d の課題一覧の取得に失敗しました: %w", courseID, err)
	}

	for i := range assignments {
		if assignments[i].CourseID == 0 {
			assignments[i].CourseID = courseID
		}
		assignments[i].LockExplanation = c.sanitizer.PlainText(assignments[i].LockExplanation)
	}

	c.logger.Info("Canvasの課題を読み込みました",
		slog.Int64("course_id", courseID),
		slog.Int("assignment_count", len(assignments)),
	)
	return assignments, nil
}

// collect は最初のページから rel="next" を辿り、全ページの要素をoutに連結する。
func collect[T any](ctx context.Context, c *Client, path string, out *[]T) error {
	query := url.Values{}
	query.Set("per_page", perPage)
	query.Add("include[]", "submission")

	next := path
	for page := 0; next != ""; page++ {
		if page >= maxPages {
			return fmt.Errorf("ページ数が上限 %d を超えました", maxPages)
		}

		var items []T
		link, err := c.api.GetJSON(ctx, next, query, &items)
		if err != nil {
			return err
		}
		*out = append(*out, items...)

		if link != "" {
			if err := c.checkHost(link); err != nil {
				return err
			}
		}
		// 次ページのURLにはクエリが含まれている
		next, query = link, nil
	}
	return nil
}

// checkHost はページ送りのURLがCanvasと同じホストを指しているかを検証する。
func (c *Client) checkHost(link string) error {
	u, err := url.Parse(link)
	if err != nil {
		return fmt.Errorf("次ページのURLが不正です: %w", err)
	}
	if u.IsAbs() && u.Host != c.baseHost {
		return fmt.Errorf("次ページのURLが別のホストを指しています: %s", u.Host)
	}
	return nil
}
