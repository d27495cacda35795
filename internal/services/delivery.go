package services

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrDeliveryInvalid is wrapped by DeliveryValidationError.
var ErrDeliveryInvalid = errors.New("delivery: invalid address")

// DeliveryValidationError lists every problem with a delivery address.
type DeliveryValidationError struct {
	Problems []string
}

func (e *DeliveryValidationError) Error() string {
	if e == nil || len(e.Problems) == 0 {
		return ErrDeliveryInvalid.Error()
	}
	return fmt.Sprintf("%s: %s", ErrDeliveryInvalid.Error(), strings.Join(e.Problems, "; "))
}

func (e *DeliveryValidationError) Unwrap() error { return ErrDeliveryInvalid }

// titleCase builds a new Caser per call; Casers are not safe for concurrent use.
func titleCase(value string) string {
	return cases.Title(language.Und).String(strings.ToLower(value))
}

// DeliveryRules checks addresses against the cities the marketplace delivers to.
type DeliveryRules struct {
	cities map[string]struct{}
}

func NewDeliveryRules(serviceableCities []string) DeliveryRules {
	rules := DeliveryRules{cities: make(map[string]struct{}, len(serviceableCities))}
	for _, city := range serviceableCities {
		if c := strings.ToLower(strings.TrimSpace(city)); c != "" {
			rules.cities[c] = struct{}{}
		}
	}
	return rules
}

// Normalize trims addr, validates it and returns it with the city title-cased.
func (r DeliveryRules) Normalize(addr DeliveryAddress) (DeliveryAddress, error) {
	addr.Name = strings.TrimSpace(addr.Name)
	addr.Phone = strings.TrimSpace(addr.Phone)
	addr.Address = strings.TrimSpace(addr.Address)
	addr.City = strings.TrimSpace(addr.City)
	addr.Pincode = strings.TrimSpace(addr.Pincode)
	addr.Landmark = strings.TrimSpace(addr.Landmark)

	var problems []string
	for _, field := range []struct {
		label string
		value string
	}{
		{"Name", addr.Name},
		{"Phone", addr.Phone},
		{"Address", addr.Address},
		{"City", addr.City},
		{"Pincode", addr.Pincode},
	} {
		if field.value == "" {
			problems = append(problems, field.label+" is required")
		}
	}

	if addr.City != "" && !r.Serviceable(addr.City) {
		problems = append(problems, r.unserviceableMessage())
	}
	if addr.Pincode != "" && (len(addr.Pincode) != 6 || !allDigits(addr.Pincode)) {
		problems = append(problems, "Pincode must be 6 digits")
	}
	if addr.Phone != "" && !validPhone(addr.Phone) {
		problems = append(problems, "Invalid phone number")
	}

	if len(problems) > 0 {
		return DeliveryAddress{}, &DeliveryValidationError{Problems: problems}
	}
	addr.City = titleCase(addr.City)
	return addr, nil
}

// Serviceable reports whether the marketplace delivers to city. Every city is serviceable when no
// list is configured.
func (r DeliveryRules) Serviceable(city string) bool {
	if len(r.cities) == 0 {
		return true
	}
	_, ok := r.cities[strings.ToLower(strings.TrimSpace(city))]
	return ok
}

func (r DeliveryRules) unserviceableMessage() string {
	return "Sorry! We currently deliver only in " + r.cityList() + "."
}

func (r DeliveryRules) cityList() string {
	names := make([]string, 0, len(r.cities))
	for city := range r.cities {
		names = append(names, titleCase(city))
	}
	slices.Sort(names)
	if len(names) == 1 {
		return names[0] + " city"
	}
	return strings.Join(names, ", ")
}

func validPhone(phone string) bool {
	digits := strings.ReplaceAll(phone, "+", "")
	return len(phone) >= 10 && digits != "" && allDigits(digits)
}

func allDigits(value string) bool {
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
