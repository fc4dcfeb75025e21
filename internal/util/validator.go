package util

import (
	"errors"
	"net/mail"
	"strings"
)

// ValidateEmail devuelve error para emails vacíos o mal formados.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return errors.New("email obligatorio")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return errors.New("email inválido")
	}
	return nil
}

// ValidatePassword exige el largo mínimo de clave.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return errors.New("la clave debe tener al menos 8 caracteres")
	}
	return nil
}

// RequireString exige un valor no vacío.
func RequireString(value, field string) error {
	if strings.TrimSpace(value) == "" {
		return errors.New(field + " obligatorio")
	}
	return nil
}
