package coordinator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"courtbook/internal/model"
)

// SlotRef identifies a catalog slot. It decodes from either "08:00-09:00" or
// {"time": "08:00-09:00", ...}; any client-supplied rate is ignored.
type SlotRef string

func (s *SlotRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var obj struct {
			Time string `json:"time"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		*s = SlotRef(obj.Time)
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = SlotRef(str)
	return nil
}

// ReservationForm is the customer booking form.
type ReservationForm struct {
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Contact  string  `json:"contact"`
	Date     string  `json:"date"`
	TimeSlot SlotRef `json:"timeSlot"`
}

// Validate checks the form fields that do not depend on the catalog.
func (f ReservationForm) Validate() error {
	var problems []string
	if utf8.RuneCountInString(strings.TrimSpace(f.Name)) < 2 {
		problems = append(problems, "name must be at least 2 characters")
	}
	if addr, err := mail.ParseAddress(strings.TrimSpace(f.Email)); err != nil || addr.Address != strings.TrimSpace(f.Email) {
		problems = append(problems, "invalid email format")
	}
	if strings.TrimSpace(f.Contact) == "" {
		problems = append(problems, "contact number is required")
	}
	if _, err := model.ParseDate(f.Date); err != nil {
		problems = append(problems, "date must be YYYY-MM-DD")
	}
	if strings.TrimSpace(string(f.TimeSlot)) == "" {
		problems = append(problems, "time slot is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", model.ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

func (f ReservationForm) customer() model.Customer {
	return model.Customer{Name: f.Name, Email: f.Email, Phone: f.Contact}
}
