package service

import (
	"strings"
	"time"

	"task-service/internal/model"
	"task-service/internal/utils"
)

func normalizeTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" {
		return "", invalid("title is required")
	}
	return title, nil
}

func normalizeEquipment(raw string) (string, error) {
	equipment := utils.NormalizeEquipmentNumber(raw)
	if equipment == "" {
		return "", invalid("equipment number is required")
	}
	return equipment, nil
}

func normalizeLocation(raw *string) (*string, error) {
	location := utils.TrimOptional(raw)
	if location != nil && !utils.ValidMapLink(*location) {
		return nil, invalid("location must be a map link")
	}
	return location, nil
}

func normalizeNotificationNum(raw *string) (*string, error) {
	if utils.TrimOptional(raw) == nil {
		return nil, nil
	}
	num := utils.NormalizeNotificationNum(*raw)
	if !utils.ValidNotificationNum(num) {
		return nil, invalid("notification number must be 10 digits starting with 41")
	}
	return &num, nil
}

func validateTypeOfWork(t *model.TypeOfWork) error {
	if t != nil && !t.Valid() {
		return invalid("unknown type of work " + string(*t))
	}
	return nil
}

func normalizePriority(p model.TaskPriority) (model.TaskPriority, error) {
	if p == "" {
		return model.TaskPriorityMedium, nil
	}
	if !p.Valid() {
		return "", invalid("unknown priority " + string(p))
	}
	return p, nil
}

// normalizeDueDate truncates to a calendar date and rejects dates before today.
func normalizeDueDate(due *time.Time, now time.Time) (*time.Time, error) {
	if due == nil {
		return nil, nil
	}
	date := time.Date(due.Year(), due.Month(), due.Day(), 0, 0, 0, 0, time.UTC)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if date.Before(today) {
		return nil, invalid("due date cannot be in the past")
	}
	return &date, nil
}
