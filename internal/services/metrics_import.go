package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/serenityskeys/backend/internal/models"
	"github.com/serenityskeys/backend/internal/telemetry"
)

const (
	MetricSourceTyping = "typing.com"

	placeholderParentName = "CSV Import Parent"
)

// headerAliases maps lower-cased CSV headers to canonical column names.
var headerAliases = map[string]string{
	"student":             "student",
	"student name":        "student",
	"name":                "student",
	"date":                "date",
	"timestamp":           "date",
	"date/time":           "date",
	"datetime":            "date",
	"wpm":                 "wpm",
	"speed":               "wpm",
	"accuracy":            "accuracy",
	"time":                "time_spent",
	"minutes":             "time_spent",
	"time_spent":          "time_spent",
	"time (minutes)":      "time_spent",
	"typing_username":     "typing_username",
	"username":            "typing_username",
	"typing user":         "typing_username",
	"typing.com username": "typing_username",
}

var requiredColumns = []string{"date", "wpm", "accuracy", "time_spent"}

// ImportMetrics loads typing metrics from a CSV upload and returns the number
// of rows stored. All rows are committed together.
func (s *Service) ImportMetrics(ctx context.Context, data []byte) (int, error) {
	text, err := decodeUpload(data)
	if err != nil {
		return 0, Validation("INVALID_ENCODING", "File could not be decoded")
	}

	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, Validation("EMPTY_FILE", "CSV file is empty")
		}
		return 0, Validation("INVALID_CSV", "CSV header could not be read")
	}
	cols, missing := mapHeader(header)
	if len(missing) > 0 {
		return 0, Validation("MISSING_COLUMNS", "Missing required columns: "+strings.Join(missing, ", ")).
			WithDetails(map[string]any{"missing": missing})
	}

	imported := 0
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resolver := &studentResolver{tx: tx, cache: map[string]uint{}}
		line := 1
		for {
			rec, err := r.Read()
			line++
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return Validation("INVALID_CSV", fmt.Sprintf("CSV parse error on line %d", line)).
					WithDetails(map[string]any{"line": line})
			}
			row := rowValues(cols, rec)

			studentID, ok, err := resolver.resolve(row["student"], row["typing_username"])
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			date, ok := parseMetricDate(row["date"], s.loc())
			if !ok {
				s.log.Debug("metrics_import_row_skipped", zap.Int("line", line), zap.String("date", row["date"]))
				continue
			}

			m := models.Metric{
				StudentID: studentID,
				Date:      date,
				WPM:       parseInt(row["wpm"]),
				Accuracy:  parseFloat(row["accuracy"]),
				TimeSpent: parseFloat(row["time_spent"]),
				Source:    MetricSourceTyping,
				Raw:       rawRow(header, rec),
			}
			if err := tx.Create(&m).Error; err != nil {
				return err
			}
			imported++
		}
	})
	if err != nil {
		return 0, err
	}

	telemetry.MetricsImported.Add(float64(imported))
	s.log.Info("metrics_imported", zap.Int("rows", imported))
	return imported, nil
}

// decodeUpload returns the upload as UTF-8, reading it as Latin-1 when it is not valid UTF-8.
func decodeUpload(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return string(data), nil
	}
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// mapHeader returns column index -> canonical name and the sorted list of
// missing required columns.
func mapHeader(header []string) (map[int]string, []string) {
	cols := make(map[int]string, len(header))
	have := map[string]bool{}
	for i, h := range header {
		if canon, ok := headerAliases[strings.ToLower(strings.TrimSpace(h))]; ok {
			if !have[canon] {
				cols[i] = canon
				have[canon] = true
			}
		}
	}
	var missing []string
	for _, c := range requiredColumns {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	if !have["student"] && !have["typing_username"] {
		missing = append(missing, "student")
	}
	sort.Strings(missing)
	return cols, missing
}

func rowValues(cols map[int]string, rec []string) map[string]string {
	out := make(map[string]string, len(cols))
	for i, canon := range cols {
		if i < len(rec) {
			out[canon] = strings.TrimSpace(rec[i])
		}
	}
	return out
}

func rawRow(header []string, rec []string) datatypes.JSONMap {
	raw := datatypes.JSONMap{}
	for i, h := range header {
		if i < len(rec) {
			raw[h] = rec[i]
		} else {
			raw[h] = ""
		}
	}
	return raw
}

// parseMetricDate parses free-form dates and returns midnight UTC of the
// calendar day as written. Naive values are read in loc.
func parseMetricDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	t, err := dateparse.ParseIn(s, loc)
	if err != nil {
		return time.Time{}, false
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
}

func parseInt(s string) *int {
	f := parseFloat(s)
	if f == nil {
		return nil
	}
	n := int(*f)
	return &n
}

func parseFloat(s string) *float64 {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

// studentResolver finds or creates the student a CSV row belongs to.
type studentResolver struct {
	tx    *gorm.DB
	cache map[string]uint
}

// resolve returns ok=false when the row names no student at all.
func (r *studentResolver) resolve(name, username string) (uint, bool, error) {
	name = strings.TrimSpace(name)
	username = strings.TrimSpace(username)
	if name == "" && username == "" {
		return 0, false, nil
	}
	key := strings.ToLower(username) + "\x00" + strings.ToLower(name)
	if id, ok := r.cache[key]; ok {
		return id, true, nil
	}

	var st models.Student
	found := false
	if username != "" {
		err := r.tx.Where("LOWER(typing_username) = ?", strings.ToLower(username)).Order("id").First(&st).Error
		if err == nil {
			found = true
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, err
		}
	}
	if !found && name != "" {
		err := r.tx.Where("LOWER(name) = ?", strings.ToLower(name)).Order("id").First(&st).Error
		if err == nil {
			found = true
			if username != "" && st.TypingUsername == nil {
				if err := r.tx.Model(&st).Update("typing_username", username).Error; err != nil {
					return 0, false, err
				}
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, err
		}
	}
	if !found {
		var err error
		if st, err = r.create(name, username); err != nil {
			return 0, false, err
		}
	}
	r.cache[key] = st.ID
	return st.ID, true, nil
}

func (r *studentResolver) create(name, username string) (models.Student, error) {
	parent := models.Parent{
		Name:  placeholderParentName,
		Email: "placeholder+" + strings.ReplaceAll(uuid.NewString(), "-", "") + "@serenitykeys.com",
	}
	if err := r.tx.Create(&parent).Error; err != nil {
		return models.Student{}, err
	}
	st := models.Student{ParentID: &parent.ID, Name: name}
	if st.Name == "" {
		st.Name = username
	}
	if username != "" {
		st.TypingUsername = &username
	}
	if err := r.tx.Create(&st).Error; err != nil {
		return models.Student{}, err
	}
	return st, nil
}
