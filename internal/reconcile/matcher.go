package reconcile

import "github.com/hitoshi/coursesync/internal/model"

// RenderContent は課題を表すタスク本文を生成する。
// 同じ課題からは常に同じ文字列が得られ、マッチングのキーになる。
func RenderContent(a *model.Assignment) string {
	return "[" + a.Name + "](" + a.HTMLURL + ") Due"
}

// ResolveProject は課題のコースIDからコース名とプロジェクトIDを解決する。
// どちらかが解決できない場合は ErrUnknownCourse または ErrUnknownProject を返す。
func ResolveProject(a *model.Assignment, courses model.CourseDirectory, projects model.ProjectDirectory) (courseName, projectID string, err error) {
	courseName, err = courses.Lookup(a.CourseID)
	if err != nil {
		return "", "", err
	}
	projectID, err = projects.Lookup(courseName)
	if err != nil {
		return courseName, "", err
	}
	return courseName, projectID, nil
}

// FindMatch はタスク一覧から課題を表すタスクを探す。
// 本文とプロジェクトIDの両方が一致した最初のタスクを返し、無ければnilを返す。
// 一致するタスクが複数ある場合は最初のタスクと ErrDuplicateTask を返す。
func FindMatch(a *model.Assignment, projectID string, tasks []model.Task) (*model.Task, error) {
	content := RenderContent(a)

	var match *model.Task
	count := 0
	for i := range tasks {
		if tasks[i].Content != content || tasks[i].ProjectID != projectID {
			continue
		}
		if match == nil {
			match = &tasks[i]
		}
		count++
	}

	if count > 1 {
		return match, model.NewDuplicateTaskError(content, projectID, count)
	}
	return match, nil
}
