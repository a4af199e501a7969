package services

type serviceManager struct {
	quiz      QuizService
	attempt   AttemptService
	analytics AnalyticsService
}

func NewServiceManager(quiz QuizService, attempt AttemptService, analytics AnalyticsService) ServiceManager {
	return &serviceManager{
		quiz:      quiz,
		attempt:   attempt,
		analytics: analytics,
	}
}

func (m *serviceManager) Quiz() QuizService {
	return m.quiz
}

func (m *serviceManager) Attempt() AttemptService {
	return m.attempt
}

func (m *serviceManager) Analytics() AnalyticsService {
	return m.analytics
}
