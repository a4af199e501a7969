package models

type NotificationKind string

const (
	NotificationQuizOpened      NotificationKind = "opened"
	NotificationQuizClosed      NotificationKind = "closed"
	NotificationAttemptGraded   NotificationKind = "graded"
	NotificationAttemptSubmit   NotificationKind = "submitted"
	NotificationGradingRequired NotificationKind = "grading_required"
)

// Audience describes who a notification is meant for. The delivery
// collaborator resolves it into concrete recipients.
type Audience struct {
	CourseID   string   `json:"course_id,omitempty"`
	Role       UserRole `json:"role,omitempty"`
	StudentIDs []string `json:"student_ids,omitempty"`
}

func CourseAudience(courseID string) Audience {
	return Audience{CourseID: courseID, Role: RoleStudent}
}

func StaffAudience(courseID string) Audience {
	return Audience{CourseID: courseID, Role: RoleTeacher}
}

func StudentAudience(courseID, studentID string) Audience {
	return Audience{CourseID: courseID, Role: RoleStudent, StudentIDs: []string{studentID}}
}
