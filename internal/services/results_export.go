package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/SAP-F-2025/quiz-engine/internal/models"
	"github.com/SAP-F-2025/quiz-engine/internal/repositories"
)

const (
	resultsSheet = "Results"
	summarySheet = "Summary"
)

var resultHeaders = []string{
	"Attempt ID", "Student ID", "Attempt", "Status", "End Reason", "Started At", "Submitted At",
	"Time Spent (s)", "Score", "Possible", "Percentage", "Passed", "Pending Grades",
}

// ExportResults renders the quiz gradebook as an XLSX workbook with one row
// per completed attempt and a summary sheet.
func (s *analyticsService) ExportResults(ctx context.Context, quizID uint, caller models.Caller) ([]byte, error) {
	quiz, err := s.managedQuiz(ctx, quizID, caller, "export_results")
	if err != nil {
		return nil, err
	}
	attempts, err := s.repo.Attempt().ListByQuiz(ctx, quizID, repositories.AttemptFilters{})
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return nil, fmt.Errorf("failed to create Excel sheet: %w", err)
	}
	if err := writeResultsSheet(f, quiz, attempts); err != nil {
		return nil, err
	}

	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("failed to create Excel sheet: %w", err)
	}
	if err := writeSummarySheet(f, quiz, Aggregate(quiz, attempts)); err != nil {
		return nil, err
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}

	s.logger.Info("Quiz results exported", "quiz_id", quizID, "user_id", caller.ID, "attempts", len(attempts))
	return buf.Bytes(), nil
}

func writeResultsSheet(f *excelize.File, quiz *models.Quiz, attempts []*models.Attempt) error {
	if err := writeRow(f, resultsSheet, 1, toCells(resultHeaders)); err != nil {
		return err
	}
	if err := boldRow(f, resultsSheet, 1, len(resultHeaders)); err != nil {
		return err
	}

	row := 2
	for _, attempt := range attempts {
		if attempt.SubmittedAt == nil {
			continue
		}
		passed := ""
		if hasFinalScore(attempt) {
			passed = "no"
			if attempt.PercentageScore >= quiz.PassingScore {
				passed = "yes"
			}
		}
		values := []interface{}{
			attempt.ID,
			attempt.StudentID,
			attempt.AttemptNumber,
			string(attempt.Status),
			string(attempt.EndReason),
			attempt.StartedAt.Format(time.RFC3339),
			attempt.SubmittedAt.Format(time.RFC3339),
			attempt.TimeSpent,
			attempt.TotalScore,
			attempt.TotalPossible,
			round2(attempt.PercentageScore),
			passed,
			attempt.PendingManualGrades(),
		}
		if err := writeRow(f, resultsSheet, row, values); err != nil {
			return err
		}
		row++
	}

	if err := f.SetColWidth(resultsSheet, "A", "M", 16); err != nil {
		return fmt.Errorf("failed to format Excel sheet: %w", err)
	}
	return nil
}

func writeSummarySheet(f *excelize.File, quiz *models.Quiz, analytics *models.QuizAnalytics) error {
	rows := [][]interface{}{
		{"Quiz", quiz.Title},
		{"Course", quiz.CourseID},
		{"Total Points", quiz.TotalPoints()},
		{"Passing Score (%)", quiz.PassingScore},
		{"Attempts", analytics.AttemptCount},
		{"Completed", analytics.CompletionCount},
		{"Graded", analytics.GradedCount},
		{"Pending Grading", analytics.PendingGradingCount},
		{"Abandoned", analytics.AbandonedCount},
		{"Average Score (%)", round2(analytics.AverageScore)},
		{"Highest Score (%)", round2(analytics.HighestScore)},
		{"Lowest Score (%)", round2(analytics.LowestScore)},
		{"Average Time Spent (s)", analytics.AverageTimeSpent},
		{"Passed", analytics.PassCount},
		{"Pass Rate (%)", round2(analytics.PassRate * 100)},
	}
	for i, values := range rows {
		if err := writeRow(f, summarySheet, i+1, values); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(summarySheet, "A", "A", 24); err != nil {
		return fmt.Errorf("failed to format Excel sheet: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	for col, value := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("failed to resolve cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, value); err != nil {
			return fmt.Errorf("failed to write cell %s: %w", cell, err)
		}
	}
	return nil
}

func boldRow(f *excelize.File, sheet string, row, columns int) error {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create Excel style: %w", err)
	}
	first, _ := excelize.CoordinatesToCellName(1, row)
	last, _ := excelize.CoordinatesToCellName(columns, row)
	if err := f.SetCellStyle(sheet, first, last, style); err != nil {
		return fmt.Errorf("failed to style Excel row: %w", err)
	}
	return nil
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
