package model

// Task はタスク管理サービスのタスクを表す。
// Due は正規化前のISO-8601文字列で、期限が無い場合はnil。
type Task struct {
	ID        string
	Content   string
	ProjectID string
	Due       *string
}

// TaskDraft はタスク作成要求の内容。
type TaskDraft struct {
	Content   string
	ProjectID string
	Due       *string
	Priority  int
	Labels    []string
}

// Project はタスクをまとめるプロジェクトを表す。1コースにつき1プロジェクト。
type Project struct {
	ID   string
	Name string
}

// ProjectDirectory はプロジェクト名からプロジェクトIDへの対応表。
type ProjectDirectory map[string]string

// NewProjectDirectory はプロジェクト一覧から対応表を構築する。
// 同名のプロジェクトが複数ある場合は先に現れたものを使う。
func NewProjectDirectory(projects []Project) ProjectDirectory {
	dir := make(ProjectDirectory, len(projects))
	for _, p := range projects {
		if _, exists := dir[p.Name]; !exists {
			dir[p.Name] = p.ID
		}
	}
	return dir
}

// Lookup はプロジェクト名に対応するプロジェクトIDを返す。
func (d ProjectDirectory) Lookup(name string) (string, error) {
	id, ok := d[name]
	if !ok {
		return "", NewUnknownProjectError(name)
	}
	return id, nil
}
