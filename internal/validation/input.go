package validation

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Константы валидации
const (
	MinNameLength        = 2
	MaxNameLength        = 100
	MinTitleLength       = 3
	MaxTitleLength       = 200
	MinDescriptionLength = 3
	MaxDescriptionLength = 5000
	MinMessageLength     = 1
	MaxMessageLength     = 5000
	MaxServiceLength     = 50
	MaxServicesCount     = 50
	MinBudget            = 0.0
	MaxBudget            = 100000000.0
	MinRating            = 1
	MaxRating            = 5
	MaxTaskImages        = 5
)

// ValidateLength проверяет длину строки в рунах.
func ValidateLength(fieldName, value string, min, max int) error {
	length := utf8.RuneCountInString(value)
	if min > 0 && length < min {
		return fmt.Errorf("%s должен быть не менее %d символов", fieldName, min)
	}
	if max > 0 && length > max {
		return fmt.Errorf("%s должен быть не более %d символов", fieldName, max)
	}
	return nil
}

// ValidateCoordinates проверяет, что координаты заданы двумя конечными числами
// в допустимых диапазонах долготы и широты.
func ValidateCoordinates(longitude, latitude float64) error {
	if math.IsNaN(longitude) || math.IsInf(longitude, 0) {
		return fmt.Errorf("долгота должна быть конечным числом")
	}
	if math.IsNaN(latitude) || math.IsInf(latitude, 0) {
		return fmt.Errorf("широта должна быть конечным числом")
	}
	if longitude < -180 || longitude > 180 {
		return fmt.Errorf("долгота должна быть в диапазоне от -180 до 180")
	}
	if latitude < -90 || latitude > 90 {
		return fmt.Errorf("широта должна быть в диапазоне от -90 до 90")
	}
	return nil
}

// ValidateBudget проверяет бюджет задачи.
func ValidateBudget(budget float64) error {
	if math.IsNaN(budget) || math.IsInf(budget, 0) {
		return fmt.Errorf("бюджет должен быть конечным числом")
	}
	if budget < MinBudget {
		return fmt.Errorf("бюджет не может быть отрицательным")
	}
	if budget > MaxBudget {
		return fmt.Errorf("бюджет превышает допустимый максимум")
	}
	return nil
}

// ValidateRating проверяет оценку задачи.
func ValidateRating(rating int) error {
	if rating < MinRating || rating > MaxRating {
		return fmt.Errorf("оценка должна быть от %d до %d", MinRating, MaxRating)
	}
	return nil
}

// ValidateServices проверяет список ключевых слов услуг.
func ValidateServices(services []string) error {
	if len(services) > MaxServicesCount {
		return fmt.Errorf("слишком много услуг, максимум %d", MaxServicesCount)
	}
	for _, service := range services {
		if strings.TrimSpace(service) == "" {
			return fmt.Errorf("название услуги не может быть пустым")
		}
		if err := ValidateLength("название услуги", service, 1, MaxServiceLength); err != nil {
			return err
		}
	}
	return nil
}

// ValidateEmail проверяет формат email.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email обязателен")
	}

	email = strings.ToLower(strings.TrimSpace(email))

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return fmt.Errorf("некорректный формат email")
	}

	localPart, domainPart := parts[0], parts[1]

	if len(localPart) == 0 || len(localPart) > 64 {
		return fmt.Errorf("локальная часть email должна быть от 1 до 64 символов")
	}
	if len(domainPart) == 0 || len(domainPart) > 255 {
		return fmt.Errorf("доменная часть email должна быть от 1 до 255 символов")
	}

	localRegex := regexp.MustCompile(`^[a-z0-9._+-]+$`)
	if !localRegex.MatchString(localPart) {
		return fmt.Errorf("локальная часть email содержит недопустимые символы")
	}

	domainRegex := regexp.MustCompile(`^[a-z0-9.-]+\.[a-z]{2,}$`)
	if !domainRegex.MatchString(domainPart) {
		return fmt.Errorf("доменная часть email имеет некорректный формат")
	}

	return nil
}
