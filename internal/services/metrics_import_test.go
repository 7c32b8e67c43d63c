package services

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/serenityskeys/backend/internal/models"
)

func TestImportMetricsBasic(t *testing.T) {
	env := newTestEnv(t)
	csv := "Student,Date,WPM,Accuracy,Time (minutes)\nAda Lovelace,2025-03-01,42,96.5%,15\n"

	n, err := env.svc.ImportMetrics(context.Background(), []byte(csv))
	if err != nil {
		t.Fatalf("ImportMetrics: %v", err)
	}
	if n != 1 {
		t.Fatalf("want 1 imported, got %d", n)
	}

	var m models.Metric
	if err := env.db.First(&m).Error; err != nil {
		t.Fatalf("load metric: %v", err)
	}
	if m.WPM == nil || *m.WPM != 42 {
		t.Errorf("wpm: %v", m.WPM)
	}
	if m.Accuracy == nil || *m.Accuracy != 96.5 {
		t.Errorf("accuracy: %v", m.Accuracy)
	}
	if m.TimeSpent == nil || *m.TimeSpent != 15 {
		t.Errorf("time_spent: %v", m.TimeSpent)
	}
	if m.Source != MetricSourceTyping {
		t.Errorf("source: %q", m.Source)
	}
	if got := m.Date.UTC().Format(time.DateOnly); got != "2025-03-01" {
		t.Errorf("date: %s", got)
	}
	if m.Raw["Student"] != "Ada Lovelace" || m.Raw["Accuracy"] != "96.5%" {
		t.Errorf("raw row not captured: %v", m.Raw)
	}

	var st models.Student
	env.db.First(&st, m.StudentID)
	if st.Name != "Ada Lovelace" || st.ParentID == nil {
		t.Fatalf("student not created with parent: %+v", st)
	}
	var p models.Parent
	env.db.First(&p, *st.ParentID)
	if p.Name != placeholderParentName {
		t.Errorf("placeholder parent name: %q", p.Name)
	}
}

func TestImportMetricsMissingColumns(t *testing.T) {
	env := newTestEnv(t)
	csv := "Student,Date,Accuracy,Minutes\nAda,2025-03-01,96,15\n"

	_, err := env.svc.ImportMetrics(context.Background(), []byte(csv))
	wantCode(t, err, KindValidation, "MISSING_COLUMNS")
	e, _ := AsError(err)
	if !reflect.DeepEqual(e.Details["missing"], []string{"wpm"}) {
		t.Errorf("missing: %v", e.Details["missing"])
	}

	var students int64
	env.db.Model(&models.Student{}).Count(&students)
	if students != 0 {
		t.Errorf("no rows should be processed, %d students created", students)
	}

	_, err = env.svc.ImportMetrics(context.Background(), []byte("Date,Speed,Accuracy,Time\n"))
	e, _ = AsError(err)
	if e == nil || !reflect.DeepEqual(e.Details["missing"], []string{"student"}) {
		t.Errorf("want student missing, got %v", err)
	}
}

func TestImportMetricsSkipsBadRows(t *testing.T) {
	env := newTestEnv(t)
	csv := "Name,Timestamp,Speed,Accuracy,Time\n" +
		"Ada,not a date,40,90,10\n" +
		",2025-03-02,40,90,10\n" +
		"Ada,2025-03-03,fast,n/a,\n" +
		"Ada,03/04/2025,41.9,91,12\n"

	n, err := env.svc.ImportMetrics(context.Background(), []byte(csv))
	if err != nil {
		t.Fatalf("ImportMetrics: %v", err)
	}
	if n != 2 {
		t.Fatalf("want 2 imported, got %d", n)
	}

	var rows []models.Metric
	env.db.Order("date asc").Find(&rows)
	if rows[0].WPM != nil || rows[0].Accuracy != nil || rows[0].TimeSpent != nil {
		t.Errorf("unparseable numbers should be null: %+v", rows[0])
	}
	if rows[1].WPM == nil || *rows[1].WPM != 41 {
		t.Errorf("wpm should truncate 41.9 to 41, got %v", rows[1].WPM)
	}
	if rows[0].StudentID != rows[1].StudentID {
		t.Error("same name should resolve to one student")
	}
	var students int64
	env.db.Model(&models.Student{}).Count(&students)
	if students != 1 {
		t.Errorf("want 1 student, got %d", students)
	}
}

func TestImportMetricsMatchesExistingStudents(t *testing.T) {
	env := newTestEnv(t)
	username := "Ada_Types"
	byUser := models.Student{Name: "Ada", TypingUsername: &username}
	env.db.Create(&byUser)
	byName := env.student(t, "Grace Hopper")

	csv := "Typing.com Username,Student Name,Date,WPM,Accuracy,Time_Spent\n" +
		"ada_types,Someone Else,2025-03-01,30,88,10\n" +
		",grace hopper,2025-03-01,35,90,10\n" +
		"gh_types,GRACE HOPPER,2025-03-02,36,91,10\n"
	n, err := env.svc.ImportMetrics(context.Background(), []byte(csv))
	if err != nil {
		t.Fatalf("ImportMetrics: %v", err)
	}
	if n != 3 {
		t.Fatalf("want 3, got %d", n)
	}

	var count int64
	env.db.Model(&models.Metric{}).Where("student_id = ?", byUser.ID).Count(&count)
	if count != 1 {
		t.Errorf("username match: want 1 metric, got %d", count)
	}
	env.db.Model(&models.Metric{}).Where("student_id = ?", byName.ID).Count(&count)
	if count != 2 {
		t.Errorf("name match: want 2 metrics, got %d", count)
	}

	var grace models.Student
	env.db.First(&grace, byName.ID)
	if grace.TypingUsername == nil || *grace.TypingUsername != "gh_types" {
		t.Errorf("username should be attached on name match: %v", grace.TypingUsername)
	}
}

func TestImportMetricsLatin1(t *testing.T) {
	env := newTestEnv(t)
	// "José" in ISO-8859-1
	csv := []byte("Student,Date,WPM,Accuracy,Time\nJos\xe9,2025-03-01,20,80,5\n")

	n, err := env.svc.ImportMetrics(context.Background(), csv)
	if err != nil || n != 1 {
		t.Fatalf("ImportMetrics: n=%d err=%v", n, err)
	}
	var st models.Student
	env.db.First(&st)
	if st.Name != "José" {
		t.Errorf("want José, got %q", st.Name)
	}
}

func TestImportMetricsEmpty(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.ImportMetrics(context.Background(), nil)
	wantCode(t, err, KindValidation, "EMPTY_FILE")
}
