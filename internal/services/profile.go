package services

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/serenityskeys/backend/internal/models"
)

type ProfileInput struct {
	ParentName     string
	ParentEmail    string
	ParentPhone    string
	StudentID      *uint
	StudentName    string
	TypingUsername string
}

type ProfileResult struct {
	ParentID  uint `json:"parent_id"`
	StudentID uint `json:"student_id"`
}

// UpsertProfile creates or updates a parent (keyed by email) and one of their students.
func (s *Service) UpsertProfile(ctx context.Context, in ProfileInput) (ProfileResult, error) {
	email, ok := NormEmail(in.ParentEmail)
	if !ok {
		return ProfileResult{}, Validation("INVALID_EMAIL", "parent_email is not a valid email address")
	}
	phone := ""
	if raw := strings.TrimSpace(in.ParentPhone); raw != "" {
		if phone = NormPhone(raw); phone == "" {
			return ProfileResult{}, Validation("INVALID_PHONE", "parent_phone is not a valid phone number")
		}
	}
	parentName := strings.TrimSpace(in.ParentName)
	studentName := strings.TrimSpace(in.StudentName)
	username := strings.TrimSpace(in.TypingUsername)

	var res ProfileResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var parent models.Parent
		err := tx.Where("email = ?", email).First(&parent).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			parent = models.Parent{Name: parentName, Email: email, Phone: phone}
			if err := tx.Create(&parent).Error; err != nil {
				if IsDuplicate(err) {
					return Conflict("PARENT_EXISTS", "A parent with this email already exists")
				}
				return err
			}
		case err != nil:
			return err
		default:
			updates := map[string]any{"name": parentName}
			if phone != "" {
				updates["phone"] = phone
			}
			if err := tx.Model(&parent).Updates(updates).Error; err != nil {
				return err
			}
		}

		var student models.Student
		if in.StudentID != nil {
			if err := tx.First(&student, *in.StudentID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return Validation("STUDENT_NOT_FOUND", "Student not found").
						WithDetails(map[string]any{"student_id": *in.StudentID})
				}
				return err
			}
			updates := map[string]any{"name": studentName}
			if student.ParentID == nil {
				updates["parent_id"] = parent.ID
			}
			if username != "" {
				updates["typing_username"] = username
			}
			if err := tx.Model(&student).Updates(updates).Error; err != nil {
				return err
			}
		} else {
			student = models.Student{ParentID: &parent.ID, Name: studentName}
			if username != "" {
				student.TypingUsername = &username
			}
			if err := tx.Create(&student).Error; err != nil {
				return err
			}
		}

		res = ProfileResult{ParentID: parent.ID, StudentID: student.ID}
		return nil
	})
	if err != nil {
		return ProfileResult{}, err
	}
	s.log.Info("profile_upserted", zap.Uint("parent_id", res.ParentID), zap.Uint("student_id", res.StudentID))
	return res, nil
}
