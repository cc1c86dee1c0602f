package model

// Course はLMSのコースを表す。
// Name はサニタイズ済みの表示名で、同名のプロジェクトに対応する。
type Course struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// CourseDirectory はコースIDからコース名への対応表。
type CourseDirectory map[int64]string

// NewCourseDirectory はコース一覧から対応表を構築する。
func NewCourseDirectory(courses []Course) CourseDirectory {
	dir := make(CourseDirectory, len(courses))
	for _, c := range courses {
		dir[c.ID] = c.Name
	}
	return dir
}

// Lookup はコースIDに対応するコース名を返す。
func (d CourseDirectory) Lookup(courseID int64) (string, error) {
	name, ok := d[courseID]
	if !ok {
		return "", NewUnknownCourseError(courseID)
	}
	return name, nil
}
